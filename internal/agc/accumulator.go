package agc

import "sync/atomic"

// StepThreshold is the accumulated error, in score units, that buys one
// gain step.
const StepThreshold = 300

type GainStep int

const (
	StepNone     GainStep = 0
	StepIncrease GainStep = 1
	StepDecrease GainStep = -1
)

func (s GainStep) String() string {
	switch s {
	case StepIncrease:
		return "increase"
	case StepDecrease:
		return "decrease"
	default:
		return "none"
	}
}

// Accumulator integrates target - peak over successive windows. The
// producer adds into it and the actuator takes steps out of it; both sides
// go through atomic operations so a step is always derived from one
// consistent value.
type Accumulator struct {
	sum       atomic.Int64
	threshold int64
}

func NewAccumulator(threshold int64) *Accumulator {
	if threshold <= 0 {
		threshold = StepThreshold
	}
	return &Accumulator{threshold: threshold}
}

// Add folds one observation into the running error and returns the new sum.
func (a *Accumulator) Add(obs PeakObservation, target Score) int64 {
	delta := int64(target) - int64(obs.Peak)
	return a.sum.Add(delta)
}

// Take removes one threshold's worth of error if the sum is outside the
// band and reports the matching step. Bursts of Add calls between two Take
// calls still yield at most one step.
func (a *Accumulator) Take() GainStep {
	for {
		cur := a.sum.Load()
		var next int64
		var step GainStep
		switch {
		case cur > a.threshold:
			next, step = cur-a.threshold, StepIncrease
		case cur < -a.threshold:
			next, step = cur+a.threshold, StepDecrease
		default:
			return StepNone
		}
		if a.sum.CompareAndSwap(cur, next) {
			return step
		}
	}
}

// OnPeak is Add followed by Take, for callers that act on the step
// synchronously.
func (a *Accumulator) OnPeak(obs PeakObservation, target Score) GainStep {
	a.Add(obs, target)
	return a.Take()
}

// Pending reports whether the sum is outside the hysteresis band.
func (a *Accumulator) Pending() bool {
	v := a.sum.Load()
	return v > a.threshold || v < -a.threshold
}

func (a *Accumulator) Value() int64 {
	return a.sum.Load()
}

func (a *Accumulator) Threshold() int64 {
	return a.threshold
}
