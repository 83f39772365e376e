package processing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

type countingConsumer struct {
	mu    sync.Mutex
	bytes int
	calls int
}

func (c *countingConsumer) Deliver(block []byte) {
	c.mu.Lock()
	c.bytes += len(block)
	c.calls++
	c.mu.Unlock()
}

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func samples(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestProcessPacketTruncatesAtLimit(t *testing.T) {
	var out bytes.Buffer
	c := &countingConsumer{}
	p := NewProcessor(&out, c, nil, 10, zap.NewNop())

	done, err := p.ProcessPacket(samples(8))
	if err != nil || done {
		t.Fatalf("first block: done=%v err=%v", done, err)
	}
	done, err = p.ProcessPacket(samples(8))
	if err != nil || !done {
		t.Fatalf("second block: done=%v err=%v", done, err)
	}
	if out.Len() != 10 || c.bytes != 10 {
		t.Fatalf("wrote %d bytes, delivered %d, want 10", out.Len(), c.bytes)
	}
}

func TestProcessPacketShortWrite(t *testing.T) {
	p := NewProcessor(shortWriter{}, nil, nil, 0, zap.NewNop())
	_, err := p.ProcessPacket(samples(8))
	var sw *ShortWriteError
	if !errors.As(err, &sw) || sw.Written != 4 {
		t.Fatalf("got %v, want ShortWriteError", err)
	}
}

func TestStreamerModes(t *testing.T) {
	for _, async := range []bool{false, true} {
		name := "sync"
		if async {
			name = "async"
		}
		t.Run(name, func(t *testing.T) {
			input := samples(4096 + 100)
			var out bytes.Buffer
			c := &countingConsumer{}
			p := NewProcessor(&out, c, nil, 0, zap.NewNop())
			s := NewStreamer(nopCloser{bytes.NewReader(input)}, p, 1024, 2, async, zap.NewNop())

			if err := s.Run(context.Background()); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(out.Bytes(), input) {
				t.Fatalf("output %d bytes, want %d", out.Len(), len(input))
			}
			if c.bytes != len(input) || c.calls != 5 {
				t.Fatalf("delivered %d bytes in %d calls", c.bytes, c.calls)
			}
		})
	}
}

func TestStreamerStopsAtLimit(t *testing.T) {
	for _, async := range []bool{false, true} {
		var out bytes.Buffer
		p := NewProcessor(&out, nil, nil, 3000, zap.NewNop())
		s := NewStreamer(nopCloser{bytes.NewReader(samples(8192))}, p, 1024, 2, async, zap.NewNop())
		if err := s.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if out.Len() != 3000 {
			t.Fatalf("async=%v: wrote %d bytes, want 3000", async, out.Len())
		}
	}
}

func TestStreamerCancelUnblocksRead(t *testing.T) {
	for _, async := range []bool{false, true} {
		r, w := io.Pipe()
		p := NewProcessor(io.Discard, nil, nil, 0, zap.NewNop())
		s := NewStreamer(r, p, 1024, 2, async, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		w.Write(samples(1024))
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("async=%v: %v", async, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("async=%v: streamer did not stop", async)
		}
		w.Close()
	}
}

func TestSinkPlainAndCompressed(t *testing.T) {
	dir := t.TempDir()
	data := samples(10000)

	plain := filepath.Join(dir, "capture.iq")
	compressed := filepath.Join(dir, "capture.iq.zst")
	for _, name := range []string{plain, compressed} {
		s, err := OpenSink(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Write(data); err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}

	got, err := os.ReadFile(plain)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("plain sink mismatch (err %v)", err)
	}

	f, err := os.Open(compressed)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	got, err = io.ReadAll(dec)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("compressed sink mismatch (err %v)", err)
	}
}
