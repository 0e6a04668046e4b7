// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const recordBlock = 4096

// Record writes up to maxSamples samples of src to a 32 bit mono WAV file
// and returns the number written.
func Record(path string, src Source, maxSamples int) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := WriteWAV(file, src, maxSamples)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// WriteWAV encodes up to maxSamples samples of src into w.
func WriteWAV(w io.WriteSeeker, src Source, maxSamples int) (int, error) {
	rate := int(src.SampleRate())
	enc := wav.NewEncoder(w, rate, 32, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, recordBlock),
		SourceBitDepth: 32,
	}
	block := make([]int32, recordBlock)

	written := 0
	for written < maxSamples {
		n, err := src.Read(block[:min(recordBlock, maxSamples-written)])
		for i := range n {
			buf.Data[i] = int(block[i])
		}
		if n > 0 {
			buf.Data = buf.Data[:n]
			if werr := enc.Write(buf); werr != nil {
				return written, fmt.Errorf("failed to write wav data: %w", werr)
			}
			buf.Data = buf.Data[:recordBlock]
			written += n
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, err
		}
	}

	if err := enc.Close(); err != nil {
		return written, err
	}
	logger.Infof("Recorded %d samples at %d Hz", written, rate)
	return written, nil
}
