package agc

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval bounds how long the actuator waits for a wake before
// rechecking for shutdown.
const DefaultPollInterval = time.Second

// GainSetter is the hardware gain write. It may block for tens of
// milliseconds.
type GainSetter interface {
	SetGain(tenthsDB int) error
}

// Recorder receives AGC events for telemetry. Implementations must be safe
// for use from both the producer and the actuator goroutine.
type Recorder interface {
	ObservePeak(peak int, accumulated int64)
	GainChanged(step string, index int, tenthsDB int)
	GainSetFailed()
}

type nopRecorder struct{}

func (nopRecorder) ObservePeak(int, int64) {}

func (nopRecorder) GainChanged(string, int, int) {}

func (nopRecorder) GainSetFailed() {}

// Actuator is the only writer of hardware gain. Run must be called from a
// single goroutine.
type Actuator struct {
	gains        *GainTable
	acc          *Accumulator
	signal       *Signal
	setter       GainSetter
	pollInterval time.Duration
	logger       *zap.Logger
	recorder     Recorder

	applied atomic.Int64
}

func NewActuator(gains *GainTable, acc *Accumulator, signal *Signal, setter GainSetter, pollInterval time.Duration, logger *zap.Logger, recorder Recorder) *Actuator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	a := &Actuator{
		gains:        gains,
		acc:          acc,
		signal:       signal,
		setter:       setter,
		pollInterval: pollInterval,
		logger:       logger,
		recorder:     recorder,
	}
	a.applied.Store(int64(gains.Index()))
	return a
}

// Run waits for wakes and applies at most one gain step per wake until ctx
// is cancelled. An in-flight gain write is allowed to finish.
func (a *Actuator) Run(ctx context.Context) {
	a.logger.Info("[actuator] started",
		zap.Int("gainIndex", a.gains.Index()),
		zap.Int("gainTenthsDB", a.gains.Gain()),
		zap.Duration("pollInterval", a.pollInterval),
	)

	timer := time.NewTimer(a.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("[actuator] received shutdown signal", zap.Int("gainIndex", a.gains.Index()))
			return
		case <-a.signal.C():
			a.Apply()
		case <-timer.C:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(a.pollInterval)
	}
}

// Apply takes one pending step from the accumulator and writes the new gain
// if the clamped index moved. It returns the step that was taken.
func (a *Actuator) Apply() GainStep {
	step := a.acc.Take()
	if step == StepNone {
		return StepNone
	}

	current := a.gains.Index()
	next := a.gains.Next(step)
	if next == current {
		a.logger.Debug("[actuator] gain step clamped",
			zap.Stringer("step", step),
			zap.Int("gainIndex", current),
		)
		return step
	}

	value := a.gains.GainAt(next)
	if err := a.setter.SetGain(value); err != nil {
		// The hardware has no readback, carry on from the attempted value.
		a.logger.Warn("[actuator] error setting tuner gain",
			zap.Error(err),
			zap.Int("gainTenthsDB", value),
			zap.Int("gainIndex", next),
		)
		a.recorder.GainSetFailed()
	}

	a.gains.SetIndex(next)
	a.applied.Store(int64(next))
	a.recorder.GainChanged(step.String(), next, value)
	a.logger.Info("[actuator] gain changed",
		zap.Stringer("step", step),
		zap.Int("fromIndex", current),
		zap.Int("toIndex", next),
		zap.Int("gainTenthsDB", value),
		zap.Int64("accumulated", a.acc.Value()),
	)
	return step
}

// Index is safe to call from any goroutine.
func (a *Actuator) Index() int {
	return int(a.applied.Load())
}
