package device

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// Replay plays back a recorded capture. Tuning commands are logged and
// otherwise ignored, which makes it useful for checking AGC behaviour
// offline.
type Replay struct {
	r      io.Reader
	closer io.Closer
	gains  []int
	logger *zap.Logger

	mu      sync.Mutex
	history []int
}

// NewReplay reads samples from r. If gains is empty the R820T table is
// used. r is closed by Close when it implements io.Closer.
func NewReplay(r io.Reader, gains []int, logger *zap.Logger) *Replay {
	if len(gains) == 0 {
		gains = TunerR820T.Gains()
	}
	rp := &Replay{r: r, gains: gains, logger: logger}
	if c, ok := r.(io.Closer); ok {
		rp.closer = c
	}
	return rp
}

func (r *Replay) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *Replay) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Replay) SupportedGains() ([]int, error) {
	return append([]int(nil), r.gains...), nil
}

func (r *Replay) SetGain(tenthsDB int) error {
	r.mu.Lock()
	r.history = append(r.history, tenthsDB)
	r.mu.Unlock()
	r.logger.Info("[replay] tuner gain set", zap.Float64("gainDB", float64(tenthsDB)/10))
	return nil
}

// GainHistory returns every gain written so far, oldest first.
func (r *Replay) GainHistory() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.history...)
}

func (r *Replay) SetGainMode(manual bool) error {
	r.logger.Debug("[replay] gain mode", zap.Bool("manual", manual))
	return nil
}

func (r *Replay) SetSampleRate(rate uint32) error {
	r.logger.Debug("[replay] sample rate", zap.Uint32("rate", rate))
	return nil
}

func (r *Replay) SetFrequency(hz uint32) error {
	r.logger.Debug("[replay] frequency", zap.Uint32("hz", hz))
	return nil
}

func (r *Replay) SetFreqCorrection(ppm int) error {
	return nil
}

func (r *Replay) SetDirectSampling(mode int) error {
	return ErrUnsupportedCommand
}
