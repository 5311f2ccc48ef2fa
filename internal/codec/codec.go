// Package codec reads and writes the primitives of the binary trace format:
// LEB128 varints, length-prefixed UTF-8 strings, booleans and fixed-width
// big-endian int32 values.
package codec

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"tracerank/internal/errors"
)

// MaxVarintLen is the longest valid encoding of a 64-bit varint.
const MaxVarintLen = binary.MaxVarintLen64

// DefaultMaxStringLen caps string lengths accepted by a Reader.
const DefaultMaxStringLen = 64 << 20

// Writer appends primitives to an underlying stream. Writes are never patched
// in place, so a Writer can sit on top of a pipe or an append-mode file.
type Writer struct {
	w       *bufio.Writer
	offset  int64
	scratch [MaxVarintLen]byte
}

// NewWriter creates a Writer buffering into w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.offset
}

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	if err != nil {
		return errors.New(errors.IOFailure, "write failed", err)
	}
	return nil
}

// WriteUvarint writes v using 7 bits per byte, least significant group first,
// with the high bit set on every byte except the last.
func (w *Writer) WriteUvarint(v uint64) error {
	n := binary.PutUvarint(w.scratch[:], v)
	return w.write(w.scratch[:n])
}

// WriteVarInt writes a non-negative int as a varint.
func (w *Writer) WriteVarInt(v int) error {
	if v < 0 {
		return errors.New(errors.InternalError, "negative value cannot be written as varint", nil).WithDetails(v)
	}
	return w.WriteUvarint(uint64(v))
}

// WriteString writes the varint byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteVarInt(len(s)); err != nil {
		return err
	}
	n, err := w.w.WriteString(s)
	w.offset += int64(n)
	if err != nil {
		return errors.New(errors.IOFailure, "write failed", err)
	}
	return nil
}

// WriteNullableString writes a presence flag and, when present, the string.
func (w *Writer) WriteNullableString(s *string) error {
	if err := w.WriteBool(s != nil); err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	return w.WriteString(*s)
}

// WriteBool writes a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(b bool) error {
	w.scratch[0] = 0
	if b {
		w.scratch[0] = 1
	}
	return w.write(w.scratch[:1])
}

// WriteInt32 writes v as four big-endian bytes.
func (w *Writer) WriteInt32(v int32) error {
	binary.BigEndian.PutUint32(w.scratch[:4], uint32(v))
	return w.write(w.scratch[:4])
}

// Flush writes any buffered data to the underlying stream.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return errors.New(errors.IOFailure, "flush failed", err)
	}
	return nil
}

// Reader consumes primitives written by Writer. Every failure is a
// CORRUPT_TRACE error carrying the offset at which the failed read began.
type Reader struct {
	r            *bufio.Reader
	offset       int64
	MaxStringLen int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), MaxStringLen: DefaultMaxStringLen}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// AtEOF reports whether the stream ended cleanly at the current offset.
func (r *Reader) AtEOF() bool {
	_, err := r.r.Peek(1)
	return err == io.EOF
}

func (r *Reader) readByte(start int64, what string) (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, errors.Corrupt(start, "truncated "+what, eofCause(err))
	}
	r.offset++
	return b, nil
}

// ReadUvarint reads a varint. Encodings longer than MaxVarintLen or
// overflowing 64 bits are rejected.
func (r *Reader) ReadUvarint() (uint64, error) {
	start := r.offset
	var v uint64
	var shift uint
	for i := 0; i < MaxVarintLen; i++ {
		b, err := r.readByte(start, "varint")
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == MaxVarintLen-1 && b > 1 {
				return 0, errors.Corrupt(start, "varint overflows 64 bits", nil)
			}
			return v | uint64(b)<<shift, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, errors.Corrupt(start, "varint longer than 10 bytes", nil)
}

// ReadVarInt reads a varint that must fit in a non-negative int.
func (r *Reader) ReadVarInt() (int, error) {
	start := r.offset
	v, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt {
		return 0, errors.Corrupt(start, "varint exceeds int range", nil)
	}
	return int(v), nil
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	start := r.offset
	n, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if r.MaxStringLen > 0 && n > r.MaxStringLen {
		return "", errors.Corrupt(start, "string length exceeds limit", nil).WithDetails(n)
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.offset += int64(read)
	if err != nil {
		return "", errors.Corrupt(start, "truncated string", eofCause(err))
	}
	return string(buf), nil
}

// ReadRaw reads exactly n bytes.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	start := r.offset
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.offset += int64(read)
	if err != nil {
		return nil, errors.Corrupt(start, "truncated data", eofCause(err))
	}
	return buf, nil
}

// ReadNullableString reads a presence flag and, when set, a string.
func (r *Reader) ReadNullableString() (*string, error) {
	present, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadBool reads a boolean byte; anything other than 0 or 1 is corrupt.
func (r *Reader) ReadBool() (bool, error) {
	start := r.offset
	b, err := r.readByte(start, "boolean")
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Corrupt(start, "invalid boolean byte", nil).WithDetails(b)
	}
}

// ReadInt32 reads four big-endian bytes.
func (r *Reader) ReadInt32() (int32, error) {
	start := r.offset
	var buf [4]byte
	read, err := io.ReadFull(r.r, buf[:])
	r.offset += int64(read)
	if err != nil {
		return 0, errors.Corrupt(start, "truncated int32", eofCause(err))
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// eofCause normalizes a plain EOF inside a value to ErrUnexpectedEOF.
func eofCause(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
