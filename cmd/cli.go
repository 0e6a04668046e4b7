// SPDX-License-Identifier: MIT

// Package cmd implements the pitchscope command line.
package cmd

import (
	"context"
	"io"

	"pitchscope/internal/config"
	applog "pitchscope/internal/log"
	"pitchscope/pkg/build"

	"github.com/spf13/cobra"
)

var logger = applog.New("cmd")

// globalOptions are the flags shared by every command. Analysis flags
// override the configuration file only when given.
type globalOptions struct {
	configPath  string
	envFile     string
	logLevel    string
	windowMs    float64
	slope       float64
	thresholdDb float64
	tracking    string

	cfg *config.Config
}

// Execute runs the command line with args, writing command output to out.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCommand(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand(out io.Writer) *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}
	rootCmd.SetOut(out)

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "",
		"Configuration file. Default searches pitchscope.yaml and config.yaml")
	flags.StringVar(&opts.envFile, "env-file", "",
		"Environment file loaded before the configuration. Default is .env when present")
	flags.StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	flags.Float64VarP(&opts.windowMs, "window-ms", "w", 0,
		"RMS smoothing window in milliseconds (100-20000)")
	flags.Float64VarP(&opts.slope, "slope", "s", 0,
		"Spectral slope weighting in dB/octave (0-6)")
	flags.Float64VarP(&opts.thresholdDb, "threshold-db", "t", 0,
		"Label threshold in dB (-100-0)")
	flags.StringVar(&opts.tracking, "tracking", "",
		"Peak tracking strategy: rank or frequency")

	rootCmd.AddCommand(
		newAnalyzeCommand(opts),
		newServeCommand(opts),
		newNotesCommand(opts),
		newSynthCommand(opts),
	)
	return rootCmd
}

// load reads the environment file and configuration, then applies the
// flags that were given on the command line.
func (o *globalOptions) load(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("window-ms") {
		cfg.Analysis.WindowMs = o.windowMs
	}
	if flags.Changed("slope") {
		cfg.Analysis.SlopeWeight = o.slope
	}
	if flags.Changed("threshold-db") {
		cfg.Analysis.ThresholdDb = o.thresholdDb
	}
	if flags.Changed("tracking") {
		cfg.Analysis.Tracking = o.tracking
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)
	logger.Debugf("Log level %s", level)

	o.cfg = cfg
	return nil
}
