package processing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

const sinkBufferSize = 1 << 20

// sink is a buffered output, optionally zstd compressed. Close flushes every
// layer and closes the file.
type sink struct {
	*bufio.Writer
	encoder *zstd.Encoder
	file    *os.File
}

// OpenSink opens filename for raw samples. "-" writes to stdout and a .zst
// suffix compresses the stream.
func OpenSink(filename string) (io.WriteCloser, error) {
	if filename == "-" {
		return &sink{Writer: bufio.NewWriterSize(os.Stdout, sinkBufferSize)}, nil
	}

	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}

	s := &sink{file: file}
	if strings.HasSuffix(filename, ".zst") {
		encoder, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		s.encoder = encoder
		s.Writer = bufio.NewWriterSize(encoder, sinkBufferSize)
	} else {
		s.Writer = bufio.NewWriterSize(file, sinkBufferSize)
	}
	return s, nil
}

func (s *sink) Close() error {
	err := s.Flush()
	if s.encoder != nil {
		err = multierr.Append(err, s.encoder.Close())
	}
	if s.file != nil {
		err = multierr.Append(err, s.file.Close())
	}
	return err
}
