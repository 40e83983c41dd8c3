package format

// Rates is the sample-rate fallback order used during negotiation.
var Rates = []int{44100, 48000, 22050, 32000, 16000, 11025, 8000}

// FallbackChannels is tried when the requested channel count is rejected.
const FallbackChannels = 2

// Priority returns the format fallback order: native I16, F32, I32, I24,
// the same four in the foreign byte order, then U8.
func Priority() []SampleFormat {
	native := []SampleFormat{I16, F32, I32, I24}
	out := make([]SampleFormat, 0, 2*len(native)+1)
	out = append(out, native...)
	for _, f := range native {
		out = append(out, f.Swapped())
	}
	return append(out, U8)
}

// Rank returns the position of f in Priority, or len(Priority()) when f is
// not listed.
func Rank(f SampleFormat) int {
	p := Priority()
	for i, candidate := range p {
		if candidate == f {
			return i
		}
	}
	return len(p)
}

// MorePreferred reports whether a ranks strictly ahead of b.
func MorePreferred(a, b SampleFormat) bool {
	return Rank(a) < Rank(b)
}
