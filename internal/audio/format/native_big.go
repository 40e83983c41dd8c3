//go:build mips || mips64 || ppc64 || s390x

package format

const nativeBigEndian = true

// Host-native aliases.
const (
	I16 = I16BE
	I24 = I24BE
	I32 = I32BE
	F32 = F32BE
)
