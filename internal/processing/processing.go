package processing

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Consumer is the producer side of the AGC, fed every block before it is
// written.
type Consumer interface {
	Deliver(block []byte)
}

// ByteCounter is told how many bytes reached the output.
type ByteCounter interface {
	AddStreamBytes(n int)
}

type ShortWriteError struct {
	Written int
	Want    int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("[processor] short write, samples lost: wrote %d of %d bytes", e.Written, e.Want)
}

// Processor feeds blocks to the AGC and writes them out. It is not safe for
// concurrent use; each block goes through exactly one goroutine.
type Processor struct {
	out       io.Writer
	consumer  Consumer
	counter   ByteCounter
	logger    *zap.Logger
	limit     uint64
	remaining uint64
}

// NewProcessor writes to out. consumer and counter may be nil. bytesToRead
// of 0 means no limit.
func NewProcessor(out io.Writer, consumer Consumer, counter ByteCounter, bytesToRead uint64, logger *zap.Logger) *Processor {
	return &Processor{
		out:       out,
		consumer:  consumer,
		counter:   counter,
		logger:    logger,
		limit:     bytesToRead,
		remaining: bytesToRead,
	}
}

// ProcessPacket handles one block. done is true once the byte limit is
// reached; the block is truncated to the limit first.
func (p *Processor) ProcessPacket(block []byte) (done bool, err error) {
	if p.limit > 0 && p.remaining <= uint64(len(block)) {
		block = block[:p.remaining]
		done = true
	}

	if p.consumer != nil {
		p.consumer.Deliver(block)
	}

	n, err := p.out.Write(block)
	if p.counter != nil {
		p.counter.AddStreamBytes(n)
	}
	if err != nil {
		return true, fmt.Errorf("[processor] writing samples: %w", err)
	}
	if n != len(block) {
		return true, &ShortWriteError{Written: n, Want: len(block)}
	}

	if p.limit > 0 {
		p.remaining -= uint64(n)
	}
	return done, nil
}

// Run drains messageQueue until it is closed, the limit is hit or ctx is
// cancelled. Each block is handed back on free once written.
func (p *Processor) Run(ctx context.Context, messageQueue <-chan []byte, free chan<- []byte) error {
	for {
		select {
		case block, ok := <-messageQueue:
			if !ok {
				p.logger.Info("[processor] message queue closed")
				return nil
			}

			done, err := p.ProcessPacket(block)
			free <- block[:cap(block)]
			if err != nil {
				return err
			}
			if done {
				p.logger.Info("[processor] sample limit reached", zap.Uint64("bytes", p.limit))
				return nil
			}
		case <-ctx.Done():
			p.logger.Info("[processor] received shutdown signal")
			return nil
		}
	}
}
