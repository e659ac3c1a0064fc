package mc

import "fmt"

// IsInt reports whether v fits in a signed field of n bits
func IsInt(n uint, v int64) bool {
	if n == 0 {
		return v == 0
	}
	if n >= 64 {
		return true
	}
	return v >= -(int64(1)<<(n-1)) && v <= int64(1)<<(n-1)-1
}

// IsUint reports whether v fits in an unsigned field of n bits
func IsUint(n uint, v uint64) bool {
	if n >= 64 {
		return true
	}
	return v < uint64(1)<<n
}

// SignExtend interprets the low n bits of v as a signed number
func SignExtend(v uint64, n uint) int64 {
	if n == 0 {
		return 0
	}
	if n >= 64 {
		return int64(v)
	}
	shift := 64 - n
	return int64(v<<shift) >> shift
}

// Mask returns the low n bits of v
func Mask(v uint64, n uint) uint64 {
	if n >= 64 {
		return v
	}
	return v & (uint64(1)<<n - 1)
}

// CheckSigned returns ErrFixupOutOfRange unless v fits in n signed bits
func CheckSigned(v int64, n uint) error {
	if !IsInt(n, v) {
		return fmt.Errorf("%w: %d does not fit in %d signed bits", ErrFixupOutOfRange, v, n)
	}
	return nil
}

// CheckUnsigned returns ErrFixupOutOfRange unless v fits in n unsigned bits
func CheckUnsigned(v uint64, n uint) error {
	if !IsUint(n, v) {
		return fmt.Errorf("%w: %d does not fit in %d unsigned bits", ErrFixupOutOfRange, int64(v), n)
	}
	return nil
}

// CheckAligned returns ErrFixupMisaligned unless v is a multiple of align,
// which must be a power of two
func CheckAligned(v uint64, align uint64) error {
	if v&(align-1) != 0 {
		return fmt.Errorf("%w: must be %d-byte aligned", ErrFixupMisaligned, align)
	}
	return nil
}
