package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"

	"go.uber.org/zap"
)

func greeting(tuner TunerType, count uint32) []byte {
	h := make([]byte, greetingSize)
	copy(h, greetingMagic)
	binary.BigEndian.PutUint32(h[4:8], uint32(tuner))
	binary.BigEndian.PutUint32(h[8:12], count)
	return h
}

// serve writes the greeting and returns the server side of the pipe.
func serve(t *testing.T, header []byte) (*RTLTCP, net.Conn, error) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go server.Write(header)
	r, err := NewRTLTCP(client, zap.NewNop())
	return r, server, err
}

func TestRTLTCPGreeting(t *testing.T) {
	r, _, err := serve(t, greeting(TunerR820T, 29))
	if err != nil {
		t.Fatal(err)
	}
	if r.Tuner() != TunerR820T {
		t.Fatalf("tuner = %v, want R820T", r.Tuner())
	}
	gains, err := r.SupportedGains()
	if err != nil {
		t.Fatal(err)
	}
	if len(gains) != 29 || gains[0] != 0 || gains[28] != 496 {
		t.Fatalf("unexpected gains %v", gains)
	}
}

func TestRTLTCPBadGreeting(t *testing.T) {
	_, _, err := serve(t, []byte("HTTP/1.1 200"))
	var herr *HeaderError
	if !errors.As(err, &herr) {
		t.Fatalf("got %v, want HeaderError", err)
	}
}

func TestRTLTCPUnknownTunerHasNoGains(t *testing.T) {
	r, _, err := serve(t, greeting(TunerUnknown, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.SupportedGains(); err == nil {
		t.Fatal("expected an error for an unknown tuner")
	}
}

func TestRTLTCPCommands(t *testing.T) {
	r, server, err := serve(t, greeting(TunerE4000, 14))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		send func() error
		want []byte
	}{
		{"gain", func() error { return r.SetGain(496) }, []byte{cmdSetGain, 0, 0, 0x01, 0xf0}},
		{"negative gain", func() error { return r.SetGain(-10) }, []byte{cmdSetGain, 0xff, 0xff, 0xff, 0xf6}},
		{"manual mode", func() error { return r.SetGainMode(true) }, []byte{cmdSetGainMode, 0, 0, 0, 1}},
		{"frequency", func() error { return r.SetFrequency(100000000) }, []byte{cmdSetFrequency, 0x05, 0xf5, 0xe1, 0x00}},
		{"sample rate", func() error { return r.SetSampleRate(2048000) }, []byte{cmdSetSampleRate, 0x00, 0x1f, 0x40, 0x00}},
		{"ppm", func() error { return r.SetFreqCorrection(-2) }, []byte{cmdSetFreqCorrection, 0xff, 0xff, 0xff, 0xfe}},
		{"direct sampling", func() error { return r.SetDirectSampling(2) }, []byte{cmdSetDirectSampling, 0, 0, 0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			go func() { errCh <- tt.send() }()

			got := make([]byte, 5)
			if _, err := io.ReadFull(server, got); err != nil {
				t.Fatal(err)
			}
			if err := <-errCh; err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("wire bytes % x, want % x", got, tt.want)
			}
		})
	}
}

func TestNearestGain(t *testing.T) {
	gains := TunerR820T.Gains()
	tests := []struct {
		target, want int
	}{
		{-50, 0},
		{10, 9},
		{200, 197},
		{1000, 496},
		{11, 9},
	}
	for _, tt := range tests {
		if got := NearestGain(gains, tt.target); got != tt.want {
			t.Errorf("NearestGain(%d) = %d, want %d", tt.target, got, tt.want)
		}
	}
}

func TestReplayRecordsGains(t *testing.T) {
	rp := NewReplay(bytes.NewReader([]byte{1, 2, 3, 4}), nil, zap.NewNop())
	rp.SetGain(100)
	rp.SetGain(125)
	if h := rp.GainHistory(); len(h) != 2 || h[1] != 125 {
		t.Fatalf("history %v", h)
	}
	buf := make([]byte, 4)
	if n, _ := io.ReadFull(rp, buf); n != 4 {
		t.Fatalf("read %d bytes, want 4", n)
	}
	if err := rp.SetDirectSampling(1); !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("got %v, want ErrUnsupportedCommand", err)
	}
}
