//go:build 386 || amd64 || arm || arm64 || loong64 || mips64le || mipsle || ppc64le || riscv64 || wasm

package format

const nativeBigEndian = false

// Host-native aliases.
const (
	I16 = I16LE
	I24 = I24LE
	I32 = I32LE
	F32 = F32LE
)
