// Package format defines the sample encodings understood by the mixer, their
// sizes, and the preference tables used when hardware rejects a request.
package format

import (
	"encoding/binary"
	"fmt"
)

// SampleFormat identifies bit depth, signedness, float-ness and byte order.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	U8
	I16LE
	I16BE
	I24LE
	I24BE
	I32LE
	I32BE
	F32LE
	F32BE
)

// All lists every known encoding.
var All = []SampleFormat{U8, I16LE, I16BE, I24LE, I24BE, I32LE, I32BE, F32LE, F32BE}

// Size returns the number of bytes one sample occupies.
func (f SampleFormat) Size() int {
	switch f {
	case U8:
		return 1
	case I16LE, I16BE:
		return 2
	case I24LE, I24BE:
		return 3
	case I32LE, I32BE, F32LE, F32BE:
		return 4
	default:
		return 0
	}
}

// Bits returns the sample width in bits.
func (f SampleFormat) Bits() int {
	return f.Size() * 8
}

func (f SampleFormat) IsFloat() bool {
	return f == F32LE || f == F32BE
}

func (f SampleFormat) IsSigned() bool {
	return f != U8 && f != FormatUnknown
}

func (f SampleFormat) IsValid() bool {
	return f >= U8 && f <= F32BE
}

// IsBigEndian reports whether multi-byte samples are stored most significant
// byte first. U8 has no byte order and reports false.
func (f SampleFormat) IsBigEndian() bool {
	switch f {
	case I16BE, I24BE, I32BE, F32BE:
		return true
	default:
		return false
	}
}

// IsNative reports whether f matches the host byte order. Only native
// formats can be mixed.
func (f SampleFormat) IsNative() bool {
	if !f.IsValid() {
		return false
	}
	if f == U8 {
		return true
	}
	return f.IsBigEndian() == nativeBigEndian
}

// Swapped returns the same encoding with the opposite byte order.
func (f SampleFormat) Swapped() SampleFormat {
	switch f {
	case I16LE:
		return I16BE
	case I16BE:
		return I16LE
	case I24LE:
		return I24BE
	case I24BE:
		return I24LE
	case I32LE:
		return I32BE
	case I32BE:
		return I32LE
	case F32LE:
		return F32BE
	case F32BE:
		return F32LE
	default:
		return f
	}
}

// ByteOrder returns the byte order of the encoding.
func (f SampleFormat) ByteOrder() binary.ByteOrder {
	if f.IsBigEndian() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Silence returns the byte value that encodes a zero sample.
func (f SampleFormat) Silence() byte {
	if f == U8 {
		return 0x80
	}
	return 0
}

func (f SampleFormat) String() string {
	switch f {
	case FormatUnknown:
		return "unknown"
	case U8:
		return "u8"
	case I16LE:
		return "s16le"
	case I16BE:
		return "s16be"
	case I24LE:
		return "s24le"
	case I24BE:
		return "s24be"
	case I32LE:
		return "s32le"
	case I32BE:
		return "s32be"
	case F32LE:
		return "f32le"
	case F32BE:
		return "f32be"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Parse accepts the names returned by String plus the host-native short
// names "s16", "s24", "s32" and "f32".
func Parse(name string) (SampleFormat, error) {
	switch name {
	case "s16", "i16":
		return I16, nil
	case "s24", "i24":
		return I24, nil
	case "s32", "i32":
		return I32, nil
	case "f32", "float":
		return F32, nil
	}
	for _, f := range All {
		if f.String() == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown sample format %q", name)
}
