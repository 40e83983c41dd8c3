package decoder

import (
	"math"
	"time"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/audio/mix"
)

// Tone renders a sine wave of amplitude amp (0 to 1) as interleaved samples
// of format f, the same value on every channel.
func Tone(freq, amp float64, d time.Duration, rate, channels int, f format.SampleFormat) []byte {
	frames := int(d * time.Duration(rate) / time.Second)
	size := f.Size()
	buf := make([]byte, frames*channels*size)

	step := 2 * math.Pi * freq / float64(rate)
	for i := range frames {
		v := float32(amp * math.Sin(step*float64(i)))
		for ch := range channels {
			mix.Encode(buf[(i*channels+ch)*size:], f, v)
		}
	}
	return buf
}
