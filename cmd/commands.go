// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"pitchscope/internal/analysis"
	"pitchscope/internal/engine"
	"pitchscope/internal/source"
	"pitchscope/internal/transport"
	"pitchscope/internal/transport/udp"
	"pitchscope/internal/tui"

	"github.com/spf13/cobra"
)

const defaultAmplitude = 0.25

// sourceOptions select between a WAV file argument and synthesised tones.
type sourceOptions struct {
	tones     []float64
	seconds   float64
	amplitude float64
}

func (s *sourceOptions) register(cmd *cobra.Command, seconds float64) {
	cmd.Flags().Float64SliceVar(&s.tones, "tone", nil,
		"Analyse synthesised sines at these frequencies instead of a file, e.g. --tone 440,660")
	cmd.Flags().Float64Var(&s.seconds, "seconds", seconds,
		"Length of the synthesised tone; 0 never ends")
	cmd.Flags().Float64Var(&s.amplitude, "amplitude", defaultAmplitude,
		"Amplitude of each synthesised sine relative to full scale")
}

// open returns the selected source, a display name and a close function.
func (s *sourceOptions) open(args []string, sampleRate float64) (source.Rewinder, string, func() error, error) {
	noop := func() error { return nil }
	switch {
	case len(args) > 0 && len(s.tones) > 0:
		return nil, "", noop, errors.New("give either a WAV file or --tone, not both")
	case len(args) > 0:
		w, err := source.OpenWAV(args[0])
		if err != nil {
			return nil, "", noop, err
		}
		return w, filepath.Base(args[0]), w.Close, nil
	case len(s.tones) > 0:
		for _, f := range s.tones {
			if !(f > 0) || f >= sampleRate/2 {
				return nil, "", noop, fmt.Errorf("tone %g Hz must lie between 0 and %g Hz", f, sampleRate/2)
			}
		}
		name := fmt.Sprintf("tone %v Hz", s.tones)
		return source.NewTone(sampleRate, s.amplitude, s.seconds, s.tones...), name, noop, nil
	default:
		return nil, "", noop, errors.New("a WAV file or --tone is required")
	}
}

func newAnalyzeCommand(g *globalOptions) *cobra.Command {
	var (
		src   sourceOptions
		every int
		width int
	)
	c := &cobra.Command{
		Use:   "analyze [file.wav]",
		Short: "Analyse a WAV file or synthesised tone and print the labels",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < 0 {
				return fmt.Errorf("--every must not be negative, got %d", every)
			}
			s, name, closeSrc, err := src.open(args, g.cfg.Audio.SampleRate)
			if err != nil {
				return err
			}
			defer closeSrc()

			ecfg, err := g.cfg.EngineConfig()
			if err != nil {
				return err
			}
			eng, err := engine.New(s, ecfg, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tui.Title("pitchscope analyze"))
			fmt.Fprintln(out, tui.Session(name, eng.Geometry(), eng.Settings()))

			var last *analysis.Result
			err = eng.Run(cmd.Context(), false, func(res *analysis.Result) error {
				last = res
				if every > 0 && (res.Sequence-1)%uint64(every) == 0 {
					fmt.Fprint(out, tui.Result(res, width))
				}
				return nil
			})
			if err != nil {
				return err
			}
			if last == nil {
				return errors.New("source produced no frames")
			}
			fmt.Fprintln(out, tui.Title("final"))
			fmt.Fprint(out, tui.Result(last, width))
			return nil
		},
	}
	src.register(c, 2)
	c.Flags().IntVar(&every, "every", 30, "Print every Nth frame; 0 prints only the final frame")
	c.Flags().IntVar(&width, "width", 64, "Width of the spectrum sparkline; 0 hides it")
	return c
}

func newServeCommand(g *globalOptions) *cobra.Command {
	var (
		src   sourceOptions
		loop  bool
		every int
	)
	c := &cobra.Command{
		Use:   "serve [file.wav]",
		Short: "Analyse in real time and publish results over WebSocket and UDP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, name, closeSrc, err := src.open(args, g.cfg.Audio.SampleRate)
			if err != nil {
				return err
			}
			defer closeSrc()
			var in source.Source = s
			if loop {
				in = source.Loop(s)
			}

			ecfg, err := g.cfg.EngineConfig()
			if err != nil {
				return err
			}
			geom := analysis.Geometry{
				Bins:       ecfg.FFTSize / 2,
				SampleRate: s.SampleRate(),
				FFTSize:    ecfg.FFTSize,
			}

			transports, err := g.openTransports(geom, ecfg.Settings.Normalized(), every)
			if err != nil {
				return err
			}
			defer transports.Close()

			eng, err := engine.New(in, ecfg, transports)
			if err != nil {
				return err
			}
			logger.Infof("Serving %s", name)

			err = eng.Run(cmd.Context(), true, nil)
			if errors.Is(err, context.Canceled) {
				logger.Infof("Stopped after %d frames", eng.Frames())
				return nil
			}
			return err
		},
	}
	src.register(c, 0)
	c.Flags().BoolVar(&loop, "loop", false, "Restart the source when it ends")
	c.Flags().IntVar(&every, "every", 60, "Log every Nth frame")
	return c
}

// openTransports starts the transports enabled in the configuration plus a
// logging transport.
func (g *globalOptions) openTransports(geom analysis.Geometry, settings analysis.Settings, every int) (transport.Multi, error) {
	tc := g.cfg.Transport
	transports := transport.Multi{transport.NewLoggingTransport(every)}

	if tc.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(tc.WebSocketAddress, transport.NewHello(geom, settings))
		if err := ws.Start(); err != nil {
			ws.Close()
			transports.Close()
			return nil, fmt.Errorf("failed to start websocket transport: %w", err)
		}
		transports = append(transports, ws)
	}

	if tc.UDPEnabled {
		sender, err := udp.NewUDPSender(tc.UDPTargetAddress)
		if err != nil {
			transports.Close()
			return nil, err
		}
		pub, err := udp.NewUDPPublisher(tc.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			transports.Close()
			return nil, err
		}
		pub.Start()
		transports = append(transports, pub)
	}
	return transports, nil
}

func newNotesCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <hz>...",
		Short: "Name the pitch of frequencies, applying the calibration table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := g.cfg.AnalysisSettings()
			if err != nil {
				return err
			}
			rows := make([]tui.NoteRow, len(args))
			for i, arg := range args {
				f, err := strconv.ParseFloat(arg, 64)
				if err != nil || math.IsNaN(f) {
					return fmt.Errorf("invalid frequency '%s'", arg)
				}
				cal := settings.Calibration.Calibrate(f)
				rows[i] = tui.NoteRow{Frequency: f, Calibrated: cal, Pitch: settings.PitchReference.Name(cal)}
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.Notes(rows))
			return nil
		},
	}
}

func newSynthCommand(g *globalOptions) *cobra.Command {
	var src sourceOptions
	c := &cobra.Command{
		Use:   "synth <out.wav>",
		Short: "Write synthesised tones to a 32 bit mono WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(src.tones) == 0 {
				return errors.New("--tone is required")
			}
			if !(src.seconds > 0) {
				return fmt.Errorf("--seconds must be positive, got %g", src.seconds)
			}
			s, _, _, err := src.open(nil, g.cfg.Audio.SampleRate)
			if err != nil {
				return err
			}
			samples := int(math.Round(src.seconds * s.SampleRate()))
			n, err := source.Record(args[0], s, samples)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples (%.2f s) to %s\n", n, float64(n)/s.SampleRate(), args[0])
			return nil
		},
	}
	src.register(c, 2)
	return c
}
