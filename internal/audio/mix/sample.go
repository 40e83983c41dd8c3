package mix

import (
	"encoding/binary"
	"math"

	"github.com/winramp/mixcore/internal/audio/format"
)

const (
	max24 = 1<<23 - 1
	min24 = -1 << 23
)

var ne = binary.NativeEndian

// DecodeU8 maps an unsigned 8-bit sample centered at 128 onto [-1, 1).
func DecodeU8(v uint8) float32 {
	return float32(int(v)-128) / 128
}

// DecodeI16 maps a signed 16-bit sample onto [-1, 1).
func DecodeI16(v int16) float32 {
	return float32(v) / 32768
}

// DecodeI24 maps a sign-extended 24-bit sample onto [-1, 1).
func DecodeI24(v int32) float32 {
	return float32(float64(v) / 0x800000)
}

// DecodeI32 maps a signed 32-bit sample onto [-1, 1).
func DecodeI32(v int32) float32 {
	return float32(float64(v) / 2147483648)
}

// U8ToI16 widens an unsigned 8-bit sample to signed 16-bit.
func U8ToI16(v uint8) int16 {
	return int16((int(v) - 128) * 256)
}

// AddF32 sums two float samples and clamps to [-1, 1].
func AddF32(a, b float32) float32 {
	s := a + b
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// AddI16 sums in 32 bits and saturates to the int16 range.
func AddI16(a, b int16) int16 {
	s := int32(a) + int32(b)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}

// AddI24 saturates to the 24-bit range.
func AddI24(a, b int32) int32 {
	s := int64(a) + int64(b)
	if s > max24 {
		return max24
	}
	if s < min24 {
		return min24
	}
	return int32(s)
}

// AddI32 sums in 64 bits and saturates to the int32 range.
func AddI32(a, b int32) int32 {
	s := int64(a) + int64(b)
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	if s < math.MinInt32 {
		return math.MinInt32
	}
	return int32(s)
}

// BlendU8 combines unsigned 8-bit samples with a screen blend,
// a + b - a*b/256, instead of clamped addition.
func BlendU8(a, b uint8) uint8 {
	s := int(a) + int(b) - int(a)*int(b)/256
	if s > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(s)
}

func getI24(b []byte) int32 {
	var v int32
	if format.I24.IsBigEndian() {
		v = int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	} else {
		v = int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	}
	if v&0x800000 != 0 {
		v |= ^0xFFFFFF
	}
	return v
}

func putI24(b []byte, v int32) {
	if format.I24.IsBigEndian() {
		b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
		return
	}
	b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
}

func getF32(b []byte) float32 { return math.Float32frombits(ne.Uint32(b)) }
func putF32(b []byte, v float32) { ne.PutUint32(b, math.Float32bits(v)) }
func getI16(b []byte) int16 { return int16(ne.Uint16(b)) }
func putI16(b []byte, v int16) { ne.PutUint16(b, uint16(v)) }
func getI32(b []byte) int32 { return int32(ne.Uint32(b)) }
func putI32(b []byte, v int32) { ne.PutUint32(b, uint32(v)) }

// Decode reads one native-order sample of format f and maps it onto [-1, 1].
func Decode(b []byte, f format.SampleFormat) float32 {
	switch f {
	case format.U8:
		return DecodeU8(b[0])
	case format.I16:
		return DecodeI16(getI16(b))
	case format.I24:
		return DecodeI24(getI24(b))
	case format.I32:
		return DecodeI32(getI32(b))
	case format.F32:
		return getF32(b)
	default:
		return 0
	}
}

// Encode writes v, clamped to [-1, 1], as one native-order sample of format f.
func Encode(b []byte, f format.SampleFormat, v float32) {
	switch f {
	case format.U8:
		b[0] = toU8(v)
	case format.I16:
		putI16(b, toI16(v))
	case format.I24:
		putI24(b, toI24(v))
	case format.I32:
		putI32(b, toI32(v))
	case format.F32:
		putF32(b, AddF32(v, 0))
	}
}

func toU8(v float32) uint8 {
	s := math.Round(float64(v)*128) + 128
	return uint8(math.Max(0, math.Min(math.MaxUint8, s)))
}

func toI16(v float32) int16 {
	s := math.Round(float64(v) * 32768)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, s)))
}

func toI24(v float32) int32 {
	s := math.Round(float64(v) * 0x800000)
	return int32(math.Max(min24, math.Min(max24, s)))
}

func toI32(v float32) int32 {
	s := math.Round(float64(v) * 2147483648)
	return int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, s)))
}

// Int reads one native-order sample of integer format f at its own width.
// U8 is returned unsigned.
func Int(b []byte, f format.SampleFormat) int {
	switch f {
	case format.U8:
		return int(b[0])
	case format.I16:
		return int(getI16(b))
	case format.I24:
		return int(getI24(b))
	case format.I32:
		return int(getI32(b))
	default:
		return 0
	}
}

// PutInt is the inverse of Int. Values are truncated to the sample width.
func PutInt(b []byte, f format.SampleFormat, v int) {
	switch f {
	case format.U8:
		b[0] = uint8(v)
	case format.I16:
		putI16(b, int16(v))
	case format.I24:
		putI24(b, int32(v))
	case format.I32:
		putI32(b, int32(v))
	}
}
