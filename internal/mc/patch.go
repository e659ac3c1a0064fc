// Completion: 100% - Byte patcher complete
package mc

import (
	"encoding/binary"
	"fmt"
)

// Endian is the byte order a patch is written in
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) String() string {
	if e == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// ByteOrder returns the encoding/binary order for e
func (e Endian) ByteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// EndianOf returns the data byte order for a little-endian flag
func EndianOf(little bool) Endian {
	if little {
		return LittleEndian
	}
	return BigEndian
}

func checkBounds(data []byte, offset uint64, size int) error {
	if offset > uint64(len(data)) || uint64(size) > uint64(len(data))-offset {
		return fmt.Errorf("%w: %d bytes at offset %d in a %d byte buffer", ErrBufferOverrun, size, offset, len(data))
	}
	return nil
}

// Patch ORs the low size bytes of value into data at offset. Bits already
// set in the buffer (opcode, registers) are kept. Nothing is written when the
// patch does not fit.
func Patch(data []byte, offset uint64, value uint64, size int, order Endian) error {
	if err := checkBounds(data, offset, size); err != nil {
		return err
	}
	if order == BigEndian {
		for i := 0; i < size; i++ {
			shift := uint(size-1-i) * 8
			data[offset+uint64(i)] |= byte(value >> shift)
		}
		return nil
	}
	for i := 0; i < size; i++ {
		data[offset+uint64(i)] |= byte(value >> (uint(i) * 8))
	}
	return nil
}

// Extract reads size bytes at offset, the inverse of Patch on a zeroed buffer
func Extract(data []byte, offset uint64, size int, order Endian) (uint64, error) {
	if err := checkBounds(data, offset, size); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < size; i++ {
		b := uint64(data[offset+uint64(i)])
		if order == BigEndian {
			v = v<<8 | b
		} else {
			v |= b << (uint(i) * 8)
		}
	}
	return v, nil
}
