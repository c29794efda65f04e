// Package wire implements the length-prefixed binary encoding shared by the
// client protocol, the relay payloads, and nothing else. Layouts are fixed:
// all integers are big-endian, strings and byte blobs are INTEGER-length
// prefixed, and composite values (nullable, collection, map) build on the
// primitives. Changing any layout breaks interop with deployed clients.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// ErrFormat reports malformed input: a truncated stream, a negative length
// prefix, or an invalid UTF-8 string payload.
var ErrFormat = errors.New("wire: malformed input")

// MaxLength caps length prefixes so a corrupt or hostile stream cannot make
// the decoder allocate unbounded memory.
const MaxLength = 16 << 20 // 16MB

// WriteInt32 writes a 4-byte big-endian signed integer.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt32 reads a 4-byte big-endian signed integer.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// WriteInt64 writes an 8-byte big-endian signed integer.
func WriteInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt64 reads an 8-byte big-endian signed integer.
func ReadInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// WriteBool writes a single 0x00/0x01 byte.
func WriteBool(w io.Writer, v bool) error {
	b := []byte{0x00}
	if v {
		b[0] = 0x01
	}
	_, err := w.Write(b)
	return err
}

// ReadBool reads a single boolean byte. Any nonzero byte decodes as true,
// matching the tolerant reader on the client side.
func ReadBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, truncated(err)
	}
	return buf[0] != 0x00, nil
}

// WriteBytes writes an INTEGER length prefix followed by the raw bytes.
func WriteBytes(w io.Writer, b []byte) error {
	if len(b) > math.MaxInt32 {
		return fmt.Errorf("%w: byte blob too large (%d)", ErrFormat, len(b))
	}
	if err := WriteInt32(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadBytes reads an INTEGER length prefix and that many raw bytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > MaxLength {
		return nil, fmt.Errorf("%w: bad length %d", ErrFormat, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, truncated(err)
	}
	return b, nil
}

// WriteString writes the string as length-prefixed UTF-8 bytes.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads a length-prefixed UTF-8 string. Invalid UTF-8 is a
// format error rather than being passed through.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadBytes(r)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8 string", ErrFormat)
	}
	return string(b), nil
}

// WriteNullable writes a BOOLEAN present flag and, when v is non-nil, the
// value itself via write.
func WriteNullable[T any](w io.Writer, v *T, write func(io.Writer, T) error) error {
	if v == nil {
		return WriteBool(w, false)
	}
	if err := WriteBool(w, true); err != nil {
		return err
	}
	return write(w, *v)
}

// ReadNullable reads a BOOLEAN present flag and, when set, the value via
// read. Absent decodes as nil.
func ReadNullable[T any](r io.Reader, read func(io.Reader) (T, error)) (*T, error) {
	present, err := ReadBool(r)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := read(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteCollection writes an INTEGER count followed by each element in slice
// order. The sender's iteration order is the wire order.
func WriteCollection[T any](w io.Writer, items []T, write func(io.Writer, T) error) error {
	if len(items) > math.MaxInt32 {
		return fmt.Errorf("%w: collection too large (%d)", ErrFormat, len(items))
	}
	if err := WriteInt32(w, int32(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := write(w, item); err != nil {
			return err
		}
	}
	return nil
}

// ReadCollection reads an INTEGER count and that many elements, preserving
// wire order.
func ReadCollection[T any](r io.Reader, read func(io.Reader) (T, error)) ([]T, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > MaxLength {
		return nil, fmt.Errorf("%w: bad collection count %d", ErrFormat, n)
	}
	items := make([]T, 0, min(int(n), 4096))
	for i := int32(0); i < n; i++ {
		item, err := read(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// MapEntry is one key/value pair of a wire MAP. Maps travel as ordered
// collections of pairs, so encoding works on a slice rather than a Go map.
type MapEntry[K, V any] struct {
	Key   K
	Value V
}

// WriteMap writes an INTEGER count followed by alternating key, value.
func WriteMap[K, V any](w io.Writer, entries []MapEntry[K, V],
	writeKey func(io.Writer, K) error, writeValue func(io.Writer, V) error) error {

	return WriteCollection(w, entries, func(w io.Writer, e MapEntry[K, V]) error {
		if err := writeKey(w, e.Key); err != nil {
			return err
		}
		return writeValue(w, e.Value)
	})
}

// ReadMap reads an INTEGER count and that many key/value pairs in order.
func ReadMap[K, V any](r io.Reader,
	readKey func(io.Reader) (K, error), readValue func(io.Reader) (V, error)) ([]MapEntry[K, V], error) {

	return ReadCollection(r, func(r io.Reader) (MapEntry[K, V], error) {
		var e MapEntry[K, V]
		k, err := readKey(r)
		if err != nil {
			return e, err
		}
		v, err := readValue(r)
		if err != nil {
			return e, err
		}
		e.Key = k
		e.Value = v
		return e, nil
	})
}

// truncated folds the io short-read errors into ErrFormat so callers have a
// single sentinel for malformed input.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: unexpected end of stream", ErrFormat)
	}
	return err
}
