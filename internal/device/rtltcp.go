package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

const (
	cmdSetFrequency      byte = 0x01
	cmdSetSampleRate     byte = 0x02
	cmdSetGainMode       byte = 0x03
	cmdSetGain           byte = 0x04
	cmdSetFreqCorrection byte = 0x05
	cmdSetDirectSampling byte = 0x09
)

const greetingSize = 12

var greetingMagic = []byte("RTL0")

// HeaderError is returned when the server greeting is not an rtl_tcp one.
type HeaderError struct {
	Header []byte
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("[rtltcp] unexpected greeting: %q", e.Header)
}

// RTLTCP talks to an rtl_tcp server. Commands may be sent from any
// goroutine while another one reads samples.
type RTLTCP struct {
	conn      net.Conn
	logger    *zap.Logger
	addr      string
	tuner     TunerType
	gainCount uint32

	writeMu sync.Mutex
	cmdBuf  [5]byte
}

// DialRTLTCP connects to addr and consumes the 12 byte greeting.
func DialRTLTCP(ctx context.Context, addr string, logger *zap.Logger) (*RTLTCP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing rtl_tcp at %s: %w", addr, err)
	}
	r, err := NewRTLTCP(conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.addr = addr
	return r, nil
}

// NewRTLTCP wraps an already established connection.
func NewRTLTCP(conn net.Conn, logger *zap.Logger) (*RTLTCP, error) {
	header := make([]byte, greetingSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("reading rtl_tcp greeting: %w", err)
	}
	if !bytes.Equal(header[:4], greetingMagic) {
		return nil, &HeaderError{Header: header}
	}

	r := &RTLTCP{
		conn:      conn,
		logger:    logger,
		addr:      conn.RemoteAddr().String(),
		tuner:     TunerType(binary.BigEndian.Uint32(header[4:8])),
		gainCount: binary.BigEndian.Uint32(header[8:12]),
	}
	logger.Info("[rtltcp] connected",
		zap.String("addr", r.addr),
		zap.Stringer("tuner", r.tuner),
		zap.Uint32("gainCount", r.gainCount),
	)
	return r, nil
}

func (r *RTLTCP) Tuner() TunerType {
	return r.tuner
}

func (r *RTLTCP) Read(p []byte) (int, error) {
	return r.conn.Read(p)
}

func (r *RTLTCP) Close() error {
	return r.conn.Close()
}

func (r *RTLTCP) SupportedGains() ([]int, error) {
	gains := r.tuner.Gains()
	if gains == nil {
		return nil, fmt.Errorf("[rtltcp] no gain table for tuner %d", uint32(r.tuner))
	}
	if r.gainCount != 0 && int(r.gainCount) != len(gains) {
		r.logger.Warn("[rtltcp] server gain count differs from tuner table",
			zap.Uint32("serverCount", r.gainCount),
			zap.Int("tableCount", len(gains)),
		)
	}
	return gains, nil
}

func (r *RTLTCP) SetGain(tenthsDB int) error {
	return r.command(cmdSetGain, uint32(int32(tenthsDB)))
}

func (r *RTLTCP) SetGainMode(manual bool) error {
	var v uint32
	if manual {
		v = 1
	}
	return r.command(cmdSetGainMode, v)
}

func (r *RTLTCP) SetSampleRate(rate uint32) error {
	return r.command(cmdSetSampleRate, rate)
}

func (r *RTLTCP) SetFrequency(hz uint32) error {
	return r.command(cmdSetFrequency, hz)
}

func (r *RTLTCP) SetFreqCorrection(ppm int) error {
	return r.command(cmdSetFreqCorrection, uint32(int32(ppm)))
}

func (r *RTLTCP) SetDirectSampling(mode int) error {
	return r.command(cmdSetDirectSampling, uint32(mode))
}

func (r *RTLTCP) command(cmd byte, arg uint32) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.cmdBuf[0] = cmd
	binary.BigEndian.PutUint32(r.cmdBuf[1:], arg)
	if _, err := r.conn.Write(r.cmdBuf[:]); err != nil {
		return fmt.Errorf("[rtltcp] sending command 0x%02x: %w", cmd, err)
	}
	return nil
}
