package processing

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Streamer moves blocks from a receiver to a Processor, either on one
// goroutine (sync) or through a reader goroutine and a message queue
// (async).
type Streamer struct {
	source      io.ReadCloser
	processor   *Processor
	blockSize   int
	queueLength int
	async       bool
	logger      *zap.Logger

	closeOnce sync.Once
}

func NewStreamer(source io.ReadCloser, processor *Processor, blockSize int, queueLength int, async bool, logger *zap.Logger) *Streamer {
	if queueLength < 1 {
		queueLength = 1
	}
	return &Streamer{
		source:      source,
		processor:   processor,
		blockSize:   blockSize,
		queueLength: queueLength,
		async:       async,
		logger:      logger,
	}
}

// Run streams until the source ends, the sample limit is hit, a write fails
// or ctx is cancelled. The source is closed on return, and also as soon as
// ctx is cancelled so a blocked read comes back.
func (s *Streamer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.closeSource() })
	defer stop()
	defer s.closeSource()

	var err error
	if s.async {
		s.logger.Info("[stream] reading samples in async mode", zap.Int("blockSize", s.blockSize))
		err = s.runAsync(ctx)
	} else {
		s.logger.Info("[stream] reading samples in sync mode", zap.Int("blockSize", s.blockSize))
		err = s.runSync(ctx)
	}

	if ctx.Err() != nil {
		s.logger.Info("[stream] user cancel, exiting")
		return nil
	}
	return err
}

func (s *Streamer) closeSource() {
	s.closeOnce.Do(func() {
		if err := s.source.Close(); err != nil {
			s.logger.Debug("[stream] error closing source", zap.Error(err))
		}
	})
}

func (s *Streamer) runSync(ctx context.Context) error {
	buf := make([]byte, s.blockSize)
	for ctx.Err() == nil {
		n, err := io.ReadFull(s.source, buf)
		if n > 0 {
			done, werr := s.processor.ProcessPacket(buf[:n])
			if werr != nil {
				return werr
			}
			if done {
				return nil
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.logger.Warn("[stream] short read, samples lost, exiting", zap.Int("read", n), zap.Int("blockSize", s.blockSize))
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("[stream] sync read failed", zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *Streamer) runAsync(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// every buffer is allocated up front and cycles between the two
	// goroutines
	free := make(chan []byte, s.queueLength+2)
	for i := 0; i < cap(free); i++ {
		free <- make([]byte, s.blockSize)
	}
	messageQueue := make(chan []byte, s.queueLength)

	readErr := make(chan error, 1)
	go func() {
		readErr <- s.readLoop(ctx, messageQueue, free)
	}()

	err := s.processor.Run(ctx, messageQueue, free)
	cancel()
	s.closeSource()
	if rerr := <-readErr; err == nil {
		err = rerr
	}
	return err
}

// readLoop is the async producer: it fills free buffers from the source and
// queues them. It closes messageQueue when it stops.
func (s *Streamer) readLoop(ctx context.Context, messageQueue chan<- []byte, free <-chan []byte) error {
	defer close(messageQueue)

	for {
		var buf []byte
		select {
		case buf = <-free:
		case <-ctx.Done():
			s.logger.Info("[stream] exiting from read loop")
			return nil
		}

		n, err := io.ReadFull(s.source, buf)
		if n > 0 {
			select {
			case messageQueue <- buf[:n]:
			case <-ctx.Done():
				return nil
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			s.logger.Info("[stream] source ended")
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("[stream] error reading samples", zap.Error(err))
			return err
		}
	}
}
