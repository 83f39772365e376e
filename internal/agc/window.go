package agc

// EvaluationHz is how many peak observations are produced per second of
// samples.
const EvaluationHz = 5

// PeakObservation is the strongest score seen during one closed window.
type PeakObservation struct {
	Peak Score
}

// WindowLength returns the number of I/Q pairs in one observation window.
func WindowLength(sampleRate uint32) int {
	n := int(sampleRate / EvaluationHz)
	if n < 1 {
		return 1
	}
	return n
}

// WindowEstimator tracks the running peak of the current window. It is
// owned by the producer goroutine; partial windows carry over between
// calls to Observe.
type WindowEstimator struct {
	table     *PowerTable
	length    int
	remaining int
	peak      Score
}

func NewWindowEstimator(table *PowerTable, length int) *WindowEstimator {
	if length < 1 {
		length = 1
	}
	return &WindowEstimator{
		table:     table,
		length:    length,
		remaining: length,
		peak:      ScoreFloor,
	}
}

// Observe walks buf as interleaved I/Q bytes and calls onPeak each time a
// window closes. A trailing unpaired byte is ignored.
func (w *WindowEstimator) Observe(buf []byte, onPeak func(PeakObservation)) {
	n := len(buf) &^ 1
	for k := 0; k < n; k += 2 {
		level := w.table[buf[k]][buf[k+1]]
		if level > w.peak {
			w.peak = level
		}
		w.remaining--
		if w.remaining == 0 {
			onPeak(PeakObservation{Peak: w.peak})
			w.remaining = w.length
			w.peak = ScoreFloor
		}
	}
}

// Length is the configured window length in I/Q pairs.
func (w *WindowEstimator) Length() int {
	return w.length
}

// Reset drops the partial window.
func (w *WindowEstimator) Reset() {
	w.remaining = w.length
	w.peak = ScoreFloor
}
