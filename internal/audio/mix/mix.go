// Package mix converts unit samples into the device format and accumulates
// them into an interleaved output frame with saturation.
package mix

import (
	"fmt"

	"github.com/winramp/mixcore/internal/audio/format"
	"github.com/winramp/mixcore/internal/domain"
)

// SampleFunc accumulates the source sample s into the destination sample d.
type SampleFunc func(d, s []byte)

type pair struct {
	dst, src format.SampleFormat
}

var natives = []format.SampleFormat{format.U8, format.I16, format.I24, format.I32, format.F32}

var converters = buildConverters()

func buildConverters() map[pair]SampleFunc {
	table := make(map[pair]SampleFunc, len(natives)*len(natives))

	for _, src := range natives {
		src := src
		table[pair{format.F32, src}] = func(d, s []byte) {
			putF32(d, AddF32(getF32(d), Decode(s, src)))
		}
		table[pair{format.I16, src}] = func(d, s []byte) {
			putI16(d, AddI16(getI16(d), toI16(Decode(s, src))))
		}
		table[pair{format.I24, src}] = func(d, s []byte) {
			putI24(d, AddI24(getI24(d), toI24(Decode(s, src))))
		}
		table[pair{format.I32, src}] = func(d, s []byte) {
			putI32(d, AddI32(getI32(d), toI32(Decode(s, src))))
		}
		table[pair{format.U8, src}] = func(d, s []byte) {
			d[0] = BlendU8(d[0], toU8(Decode(s, src)))
		}
	}

	// Integer fast paths.
	table[pair{format.I16, format.U8}] = func(d, s []byte) {
		putI16(d, AddI16(getI16(d), U8ToI16(s[0])))
	}
	table[pair{format.I16, format.I16}] = func(d, s []byte) {
		putI16(d, AddI16(getI16(d), getI16(s)))
	}
	table[pair{format.I24, format.I24}] = func(d, s []byte) {
		putI24(d, AddI24(getI24(d), getI24(s)))
	}
	table[pair{format.I32, format.I32}] = func(d, s []byte) {
		putI32(d, AddI32(getI32(d), getI32(s)))
	}
	table[pair{format.U8, format.U8}] = func(d, s []byte) {
		d[0] = BlendU8(d[0], s[0])
	}

	return table
}

// Converter returns the accumulation function for mixing src samples into a
// dst buffer. Only native-endian pairs are defined.
func Converter(dst, src format.SampleFormat) (SampleFunc, bool) {
	fn, ok := converters[pair{dst, src}]
	return fn, ok
}

// Supported reports whether src can be mixed into dst.
func Supported(dst, src format.SampleFormat) bool {
	_, ok := converters[pair{dst, src}]
	return ok
}

// Mix accumulates up to frames sample frames of src into dst. Output channel
// j reads input channel j mod srcChannels. It returns the number of frames
// mixed, which is smaller than frames when either buffer is short.
func Mix(dst []byte, dstFormat format.SampleFormat, dstChannels int,
	src []byte, srcFormat format.SampleFormat, srcChannels int, frames int) (int, error) {
	fn, ok := Converter(dstFormat, srcFormat)
	if !ok {
		return 0, fmt.Errorf("%w: %s into %s", domain.ErrFormatNotSupported, srcFormat, dstFormat)
	}
	if dstChannels <= 0 || srcChannels <= 0 {
		return 0, fmt.Errorf("invalid channel count %d/%d", dstChannels, srcChannels)
	}

	dsz, ssz := dstFormat.Size(), srcFormat.Size()
	dstStride, srcStride := dstChannels*dsz, srcChannels*ssz
	frames = min(frames, len(dst)/dstStride, len(src)/srcStride)

	for i := range frames {
		d := dst[i*dstStride:]
		s := src[i*srcStride:]
		for j := range dstChannels {
			fn(d[j*dsz:], s[(j%srcChannels)*ssz:])
		}
	}
	return frames, nil
}

// Silence fills buf with the zero sample of f.
func Silence(buf []byte, f format.SampleFormat) {
	v := f.Silence()
	for i := range buf {
		buf[i] = v
	}
}
