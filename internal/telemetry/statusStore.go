package telemetry

import (
	"sync"

	"sleepywoodpecker/rtl-agc/internal/agc"
)

type Status struct {
	Peak           int
	Accumulated    int64
	GainIndex      int
	GainTenthsDB   int
	Windows        uint64
	Steps          uint64
	GainFailures   uint64
	HasObservation bool
}

// The actuator and the producer both report here, the sampler reads on its
// own clock. Readers only ever get a copy.
type StatusStore struct {
	status      Status
	statusMutex sync.Mutex
}

func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

func (s *StatusStore) ObservePeak(peak int, accumulated int64) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.status.Peak = peak
	s.status.Accumulated = accumulated
	s.status.Windows++
	s.status.HasObservation = true
}

func (s *StatusStore) GainChanged(step string, index int, tenthsDB int) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.status.GainIndex = index
	s.status.GainTenthsDB = tenthsDB
	s.status.Steps++
}

func (s *StatusStore) SetGain(index int, tenthsDB int) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.status.GainIndex = index
	s.status.GainTenthsDB = tenthsDB
}

func (s *StatusStore) GainSetFailed() {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	s.status.GainFailures++
}

func (s *StatusStore) GetStatus() Status {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	return s.status
}

// Tee fans AGC events out to several recorders.
func Tee(recorders ...agc.Recorder) agc.Recorder {
	return tee(recorders)
}

type tee []agc.Recorder

func (t tee) ObservePeak(peak int, accumulated int64) {
	for _, r := range t {
		r.ObservePeak(peak, accumulated)
	}
}

func (t tee) GainChanged(step string, index int, tenthsDB int) {
	for _, r := range t {
		r.GainChanged(step, index, tenthsDB)
	}
}

func (t tee) GainSetFailed() {
	for _, r := range t {
		r.GainSetFailed()
	}
}
