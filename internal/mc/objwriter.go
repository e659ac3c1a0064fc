// Completion: 100% - Object writer stream complete
package mc

import (
	"io"
)

// ObjectWriter receives the bytes of an object file. Nop padding is written
// through the same interface, so backends never see the destination.
type ObjectWriter interface {
	Write8(v uint8)
	Write16(v uint16)
	Write32(v uint32)
	Write64(v uint64)
	WriteBytes(bs []byte)
	WriteZeros(n int)

	// Tell returns the number of bytes written so far
	Tell() int64
	// Err returns the first write error; later writes are dropped
	Err() error
	Order() Endian

	// WriteObject serializes a finished assembly
	WriteObject(obj *Object) error
}

// StreamWriter writes fixed width integers in one byte order to an
// io.Writer. The first error sticks and turns later writes into no-ops.
type StreamWriter struct {
	w       io.Writer
	order   Endian
	written int64
	err     error
	scratch [8]byte
}

// NewStreamWriter creates a stream writer
func NewStreamWriter(w io.Writer, order Endian) *StreamWriter {
	return &StreamWriter{w: w, order: order}
}

func (s *StreamWriter) Write8(v uint8) {
	s.scratch[0] = v
	s.WriteBytes(s.scratch[:1])
}

func (s *StreamWriter) Write16(v uint16) {
	s.order.ByteOrder().PutUint16(s.scratch[:2], v)
	s.WriteBytes(s.scratch[:2])
}

func (s *StreamWriter) Write32(v uint32) {
	s.order.ByteOrder().PutUint32(s.scratch[:4], v)
	s.WriteBytes(s.scratch[:4])
}

func (s *StreamWriter) Write64(v uint64) {
	s.order.ByteOrder().PutUint64(s.scratch[:8], v)
	s.WriteBytes(s.scratch[:8])
}

// WriteWord writes v as 8 bytes for 64-bit objects and 4 bytes otherwise
func (s *StreamWriter) WriteWord(v uint64, is64 bool) {
	if is64 {
		s.Write64(v)
	} else {
		s.Write32(uint32(v))
	}
}

func (s *StreamWriter) WriteBytes(bs []byte) {
	if s.err != nil || len(bs) == 0 {
		return
	}
	n, err := s.w.Write(bs)
	s.written += int64(n)
	s.err = err
}

func (s *StreamWriter) WriteZeros(n int) {
	var zeros [64]byte
	for n > 0 && s.err == nil {
		chunk := min(n, len(zeros))
		s.WriteBytes(zeros[:chunk])
		n -= chunk
	}
}

// PadTo writes zeros until Tell reaches offset
func (s *StreamWriter) PadTo(offset int64) {
	if gap := offset - s.written; gap > 0 {
		s.WriteZeros(int(gap))
	}
}

func (s *StreamWriter) Tell() int64 {
	return s.written
}

func (s *StreamWriter) Err() error {
	return s.err
}

func (s *StreamWriter) Order() Endian {
	return s.order
}
