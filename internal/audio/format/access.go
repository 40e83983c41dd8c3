package format

import "fmt"

// Access describes how a backend lays out frames in its transfer buffer.
type Access int

const (
	AccessRWInterleaved Access = iota
	AccessRWNonInterleaved
	AccessMMapInterleaved
	AccessMMapNonInterleaved
	AccessMMapComplex
)

func (a Access) String() string {
	switch a {
	case AccessRWInterleaved:
		return "RW_INTERLEAVED"
	case AccessRWNonInterleaved:
		return "RW_NONINTERLEAVED"
	case AccessMMapInterleaved:
		return "MMAP_INTERLEAVED"
	case AccessMMapNonInterleaved:
		return "MMAP_NONINTERLEAVED"
	case AccessMMapComplex:
		return "MMAP_COMPLEX"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Interleaved reports whether samples of one frame are stored contiguously.
func (a Access) Interleaved() bool {
	return a == AccessRWInterleaved || a == AccessMMapInterleaved
}
