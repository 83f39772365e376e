// r in rserial stands for "robust"
package rserial

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

var DefaultStopSequence = []byte{'\r', '\n'}

// rserial is a serial attached receiver. It sends I/Q in packets of
// payloadSize bytes followed by the stop sequence and takes one ASCII
// command per line.
type rserial struct {
	serial.Port
	logger       *zap.Logger
	portName     string
	stopSequence []byte
	payloadSize  int
	gains        []int

	tempBuff []byte
	pending  []byte

	writeMu sync.Mutex
}

type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[rserial] incorrect stop sequence detected: %v", e.ByteSequence)
}

// NewRSerial opens portName. payloadSize must be even so packets never
// split an I/Q pair. gains may be empty when the gain is left on automatic.
func NewRSerial(portName string, baudrate int, payloadSize int, gains []int, logger *zap.Logger) (*rserial, error) {
	if payloadSize <= 0 || payloadSize%2 != 0 {
		return nil, fmt.Errorf("[rserial] payload size must be positive and even, got %d", payloadSize)
	}

	mode := &serial.Mode{
		BaudRate: baudrate,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("[rserial] opening %s: %w", portName, err)
	}

	r := newRSerial(port, portName, payloadSize, gains, logger)
	if err := r.initialize(); err != nil {
		port.Close()
		return nil, err
	}
	return r, nil
}

func newRSerial(port serial.Port, portName string, payloadSize int, gains []int, logger *zap.Logger) *rserial {
	return &rserial{
		Port:         port,
		logger:       logger,
		portName:     portName,
		stopSequence: DefaultStopSequence,
		payloadSize:  payloadSize,
		gains:        append([]int(nil), gains...),
		tempBuff:     make([]byte, payloadSize+len(DefaultStopSequence)),
	}
}

func (r *rserial) initialize() error {
	if err := r.SetReadTimeout(time.Duration(5 * float64(time.Millisecond))); err != nil {
		return fmt.Errorf("[rserial] setting read timeout: %w", err)
	}
	if err := r.ResetInputBuffer(); err != nil {
		return fmt.Errorf("[rserial] resetting input buffer: %w", err)
	}
	return r.sync()
}

// Read hands out payload bytes, reading and validating a new packet when the
// previous one is used up. Out of sync packets are dropped and the port is
// resynced.
func (r *rserial) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		err := r.ReadPacket()
		if err == nil {
			break
		}
		var oosError *OutOfSyncError
		if !errors.As(err, &oosError) {
			return 0, err
		}
		r.logger.Warn("Error while attempting to read packet from serial", zap.Error(err), zap.String("portName", r.portName), zap.ByteString("payload", oosError.ByteSequence))
		if err := r.sync(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *rserial) ReadPacket() error {
	rawPacketSize := len(r.tempBuff)
	count := 0
	for count < rawPacketSize {
		n, err := r.Port.Read(r.tempBuff[count:])
		if err != nil {
			return err
		}
		count += n
	}

	// validate that the packet is valid by checking the last 2 characters of the packet
	if !bytes.Equal(r.tempBuff[rawPacketSize-len(r.stopSequence):], r.stopSequence) {
		byteSequenceCopy := make([]byte, rawPacketSize)
		copy(byteSequenceCopy, r.tempBuff)

		return &OutOfSyncError{
			ByteSequence: byteSequenceCopy,
		}
	}

	r.pending = r.tempBuff[:r.payloadSize]
	return nil
}

func (r *rserial) sync() error {
	r.logger.Warn("Resyncing serial port", zap.String("portName", r.portName))
	onebyte := make([]byte, 1)
	last := r.stopSequence[len(r.stopSequence)-1]

	for onebyte[0] != last {
		n, err := r.Port.Read(onebyte)
		if err != nil {
			return fmt.Errorf("[rserial] resyncing %s: %w", r.portName, err)
		}
		if n == 0 {
			onebyte[0] = 0
		}
	}
	return nil
}

func (r *rserial) SupportedGains() ([]int, error) {
	return append([]int(nil), r.gains...), nil
}

func (r *rserial) SetGain(tenthsDB int) error {
	return r.command('G', tenthsDB)
}

func (r *rserial) SetGainMode(manual bool) error {
	v := 0
	if manual {
		v = 1
	}
	return r.command('M', v)
}

func (r *rserial) SetSampleRate(rate uint32) error {
	return r.command('S', int(rate))
}

func (r *rserial) SetFrequency(hz uint32) error {
	return r.command('F', int(hz))
}

func (r *rserial) SetFreqCorrection(ppm int) error {
	return r.command('P', ppm)
}

func (r *rserial) SetDirectSampling(mode int) error {
	return r.command('D', mode)
}

func (r *rserial) command(op byte, arg int) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	line := fmt.Sprintf("%c %d%s", op, arg, r.stopSequence)
	if _, err := r.Port.Write([]byte(line)); err != nil {
		return fmt.Errorf("[rserial] sending %c command on %s: %w", op, r.portName, err)
	}
	return nil
}
