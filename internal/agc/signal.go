package agc

// Signal is a wake-up flag with at most one pending wake. Posting while a
// wake is already pending is a no-op.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Post never blocks.
func (s *Signal) Post() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C is what the waiter selects on. Receiving from it clears the pending wake.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}
