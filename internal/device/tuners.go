package device

// TunerType is the tuner identifier sent in the rtl_tcp greeting.
type TunerType uint32

const (
	TunerUnknown TunerType = iota
	TunerE4000
	TunerFC0012
	TunerFC0013
	TunerFC2580
	TunerR820T
	TunerR828D
)

func (t TunerType) String() string {
	switch t {
	case TunerE4000:
		return "E4000"
	case TunerFC0012:
		return "FC0012"
	case TunerFC0013:
		return "FC0013"
	case TunerFC2580:
		return "FC2580"
	case TunerR820T:
		return "R820T"
	case TunerR828D:
		return "R828D"
	default:
		return "unknown"
	}
}

// gain tables in tenths of dB, as reported by librtlsdr
var (
	e4kGains    = []int{-10, 15, 40, 65, 90, 115, 140, 165, 190, 215, 240, 290, 340, 420}
	fc0012Gains = []int{-99, -40, 71, 179, 192}
	fc0013Gains = []int{-99, -73, -65, -63, -60, -58, -54, 58, 61, 63, 65, 67, 68, 70, 71, 179, 181, 182, 184, 186, 188, 191, 197}
	fc2580Gains = []int{0}
	r82xxGains  = []int{0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197, 207, 229, 254, 280, 297, 328, 338, 364, 372, 386, 402, 421, 434, 439, 445, 480, 496}
)

// Gains returns a copy of the tuner's gain table, or nil for an unknown
// tuner.
func (t TunerType) Gains() []int {
	var g []int
	switch t {
	case TunerE4000:
		g = e4kGains
	case TunerFC0012:
		g = fc0012Gains
	case TunerFC0013:
		g = fc0013Gains
	case TunerFC2580:
		g = fc2580Gains
	case TunerR820T, TunerR828D:
		g = r82xxGains
	default:
		return nil
	}
	return append([]int(nil), g...)
}
