package mc

import "fmt"

// WriteRepeated fills count bytes with copies of one nop encoding.
// The count must be a multiple of the encoding length.
func WriteRepeated(ow ObjectWriter, count uint64, nop []byte) error {
	unit := uint64(len(nop))
	if count%unit != 0 {
		return fmt.Errorf("%w: %d bytes with %d byte nops", ErrNopCount, count, unit)
	}
	for i := uint64(0); i < count/unit; i++ {
		ow.WriteBytes(nop)
	}
	return ow.Err()
}
