package agc

import "testing"

func repeatPair(i, q byte, n int) []byte {
	buf := make([]byte, 0, 2*n)
	for k := 0; k < n; k++ {
		buf = append(buf, i, q)
	}
	return buf
}

func collect(w *WindowEstimator, bufs ...[]byte) []PeakObservation {
	var out []PeakObservation
	for _, b := range bufs {
		w.Observe(b, func(o PeakObservation) { out = append(out, o) })
	}
	return out
}

func TestWindowLength(t *testing.T) {
	tests := []struct {
		rate uint32
		want int
	}{
		{2048000, 409600},
		{250000, 50000},
		{3, 1},
	}
	for _, tt := range tests {
		if got := WindowLength(tt.rate); got != tt.want {
			t.Errorf("WindowLength(%d) = %d, want %d", tt.rate, got, tt.want)
		}
	}
}

func TestWindowClosesOnExactLength(t *testing.T) {
	tbl := BuildPowerTable()
	const length = 1000
	w := NewWindowEstimator(tbl, length)

	obs := collect(w, repeatPair(222, 128, length))
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if want := tbl[222][128]; obs[0].Peak != want {
		t.Fatalf("peak = %d, want %d", obs[0].Peak, want)
	}
}

func TestWindowNotClosedEarly(t *testing.T) {
	w := NewWindowEstimator(BuildPowerTable(), 10)
	if obs := collect(w, repeatPair(222, 128, 9)); len(obs) != 0 {
		t.Fatalf("got %d observations before the window closed", len(obs))
	}
}

func TestWindowPeak(t *testing.T) {
	var tbl PowerTable
	tbl[1][0] = -200
	tbl[2][0] = -50
	tbl[3][0] = -300
	w := NewWindowEstimator(&tbl, 3)

	obs := collect(w, []byte{1, 0, 2, 0, 3, 0})
	if len(obs) != 1 || obs[0].Peak != -50 {
		t.Fatalf("got %+v, want one observation with peak -50", obs)
	}
}

func TestWindowPersistsAcrossCalls(t *testing.T) {
	var tbl PowerTable
	tbl[1][0] = -100
	tbl[2][0] = -20
	tbl[3][0] = -400
	w := NewWindowEstimator(&tbl, 4)

	// 3 + 3 pairs: one window of four closes in the second call, two
	// pairs stay pending.
	obs := collect(w,
		[]byte{1, 0, 2, 0, 1, 0},
		[]byte{3, 0, 3, 0, 3, 0},
	)
	if len(obs) != 1 || obs[0].Peak != -20 {
		t.Fatalf("got %+v, want one observation with peak -20", obs)
	}

	obs = collect(w, []byte{3, 0, 3, 0})
	if len(obs) != 1 || obs[0].Peak != -400 {
		t.Fatalf("got %+v, want one observation with peak -400", obs)
	}
}

func TestWindowPeakResetsToFloor(t *testing.T) {
	var tbl PowerTable
	for i := range tbl {
		for q := range tbl[i] {
			tbl[i][q] = -900
		}
	}
	tbl[9][9] = 50
	w := NewWindowEstimator(&tbl, 2)

	obs := collect(w, []byte{9, 9, 0, 0, 0, 0, 0, 0})
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	if obs[0].Peak != 50 {
		t.Errorf("first peak = %d, want 50", obs[0].Peak)
	}
	if obs[1].Peak != ScoreFloor {
		t.Errorf("second peak = %d, want floor %d", obs[1].Peak, ScoreFloor)
	}
}

func TestWindowIgnoresTrailingByte(t *testing.T) {
	w := NewWindowEstimator(BuildPowerTable(), 2)
	obs := collect(w, []byte{222, 128, 222})
	if len(obs) != 0 {
		t.Fatalf("got %d observations, trailing byte must not count as a pair", len(obs))
	}
	obs = collect(w, []byte{222, 128})
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
}

func BenchmarkWindowObserve(b *testing.B) {
	w := NewWindowEstimator(BuildPowerTable(), WindowLength(2048000))
	buf := repeatPair(200, 100, 16*16384/2)
	onPeak := func(PeakObservation) {}
	b.SetBytes(int64(len(buf)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Observe(buf, onPeak)
	}
}
