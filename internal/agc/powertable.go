package agc

import "math"

// Score is the logarithmic power metric: 100 * ln(|IQ|^2 / 128^2).
// 0 is a magnitude of roughly half scale, weaker signals go negative.
type Score int32

// ScoreFloor is stored for the zero magnitude cell and is the value a
// window peak starts from.
const ScoreFloor Score = -480

// DC centers of the two channels. Existing target thresholds are tuned
// against these, keep them as is.
const (
	centerI = 158
	centerQ = 128
)

const fullScaleMag = 16384.0

// PowerTable maps every (I, Q) byte pair to its Score. It is never written
// after BuildPowerTable returns, so it can be shared without locking.
type PowerTable [256][256]Score

func BuildPowerTable() *PowerTable {
	var t PowerTable
	for i := 0; i < 256; i++ {
		di := i - centerI
		for q := 0; q < 256; q++ {
			dq := q - centerQ
			mag := di*di + dq*dq
			if mag == 0 {
				t[i][q] = ScoreFloor
				continue
			}
			t[i][q] = Score(math.Round(100 * math.Log(float64(mag)/fullScaleMag)))
		}
	}
	return &t
}

// Lookup returns the score for one I/Q pair.
func (t *PowerTable) Lookup(i, q byte) Score {
	return t[i][q]
}
