package agc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotAGCMode = errors.New("agc: target must be negative to select automatic gain control")

// Tuner is the slice of the receiver the AGC drives.
type Tuner interface {
	GainSetter
	SupportedGains() ([]int, error)
	SetGainMode(manual bool) error
}

type Config struct {
	// Target peak score. Only negative values select AGC.
	Target       Score
	SampleRate   uint32
	Threshold    int64
	PollInterval time.Duration
}

// Status is a point-in-time view of a running session.
type Status struct {
	ID           string
	Target       Score
	Accumulated  int64
	GainIndex    int
	GainTenthsDB int
	Windows      uint64
	LastPeak     Score
}

// Session holds all AGC state for one streaming run. Deliver is called by
// the producer, the actuator runs on its own goroutine between Start and
// Stop.
type Session struct {
	id       uuid.UUID
	target   Score
	logger   *zap.Logger
	recorder Recorder

	table     *PowerTable
	gains     *GainTable
	estimator *WindowEstimator
	acc       *Accumulator
	signal    *Signal
	actuator  *Actuator
	onPeakFn  func(PeakObservation)

	windows  atomic.Uint64
	lastPeak atomic.Int32

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSession queries the tuner for its gains, switches it to manual gain
// at the middle of the table and builds the lookup tables.
func NewSession(cfg Config, tuner Tuner, logger *zap.Logger, recorder Recorder) (*Session, error) {
	if cfg.Target >= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNotAGCMode, cfg.Target)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	supported, err := tuner.SupportedGains()
	if err != nil {
		return nil, fmt.Errorf("agc: querying supported gains: %w", err)
	}
	gains, err := NewGainTable(supported)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	logger = logger.With(zap.String("session", id.String()))

	logger.Info("[agc] supported gain values",
		zap.Int("count", gains.Count()),
		zap.Ints("gainsTenthsDB", supported),
	)

	if err := tuner.SetGainMode(true); err != nil {
		logger.Warn("[agc] error enabling manual gain mode", zap.Error(err))
	}
	if err := tuner.SetGain(gains.Gain()); err != nil {
		logger.Warn("[agc] error setting initial tuner gain", zap.Error(err), zap.Int("gainTenthsDB", gains.Gain()))
	}

	table := BuildPowerTable()
	acc := NewAccumulator(cfg.Threshold)
	signal := NewSignal()

	s := &Session{
		id:        id,
		target:    cfg.Target,
		logger:    logger,
		recorder:  recorder,
		table:     table,
		gains:     gains,
		estimator: NewWindowEstimator(table, WindowLength(cfg.SampleRate)),
		acc:       acc,
		signal:    signal,
		actuator:  NewActuator(gains, acc, signal, tuner, cfg.PollInterval, logger, recorder),
	}
	s.onPeakFn = s.onPeak
	s.lastPeak.Store(int32(ScoreFloor))

	logger.Info("[agc] session created",
		zap.Int32("target", int32(cfg.Target)),
		zap.Int("windowLength", s.estimator.Length()),
		zap.Int64("threshold", acc.Threshold()),
		zap.Int("gainIndex", gains.Index()),
	)
	return s, nil
}

// Start launches the actuator goroutine.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.actuator.Run(ctx)
	}()
}

// Deliver is the producer entry point for one block of interleaved I/Q
// bytes. It never blocks on the actuator.
func (s *Session) Deliver(buf []byte) {
	s.estimator.Observe(buf, s.onPeakFn)
}

func (s *Session) onPeak(obs PeakObservation) {
	sum := s.acc.Add(obs, s.target)
	s.windows.Add(1)
	s.lastPeak.Store(int32(obs.Peak))
	s.recorder.ObservePeak(int(obs.Peak), sum)
	if s.acc.Pending() {
		s.signal.Post()
	}
}

// Stop cancels the actuator and waits for it to exit. It is safe to call
// more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Info("[agc] session stopped",
			zap.Uint64("windows", s.windows.Load()),
			zap.Int("gainIndex", s.actuator.Index()),
		)
	})
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) Snapshot() Status {
	idx := s.actuator.Index()
	return Status{
		ID:           s.id.String(),
		Target:       s.target,
		Accumulated:  s.acc.Value(),
		GainIndex:    idx,
		GainTenthsDB: s.gains.GainAt(idx),
		Windows:      s.windows.Load(),
		LastPeak:     Score(s.lastPeak.Load()),
	}
}
