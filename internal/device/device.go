package device

import (
	"errors"
	"io"
)

var ErrUnsupportedCommand = errors.New("device: command not supported by this transport")

// Device is a receiver that streams interleaved 8-bit I/Q and accepts
// tuning commands. Gains are in tenths of dB.
type Device interface {
	io.ReadCloser
	SupportedGains() ([]int, error)
	SetGain(tenthsDB int) error
	SetGainMode(manual bool) error
	SetSampleRate(rate uint32) error
	SetFrequency(hz uint32) error
	SetFreqCorrection(ppm int) error
	SetDirectSampling(mode int) error
}

// NearestGain returns the supported gain closest to target. Ties go to the
// lower gain. gains must not be empty.
func NearestGain(gains []int, target int) int {
	best := gains[0]
	bestErr := abs(target - best)
	for _, g := range gains[1:] {
		if e := abs(target - g); e < bestErr {
			best, bestErr = g, e
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
