package wasm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader is a small cursor over a byte slice used by the decoder. It is not
// exported: callers interact with Decode/Encode only.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, fmt.Errorf("wasm: unexpected end of input at offset %d", r.pos)
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, fmt.Errorf("wasm: unexpected end of input reading %d bytes at offset %d", n, r.pos)
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) remaining() int { return len(r.b) - r.pos }

func (r *reader) varuint32() (uint32, error) {
	v, err := r.varuint64(32)
	return uint32(v), err
}

func (r *reader) varuint64(bits int) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, fmt.Errorf("varuint: %w", err)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= uint(bits)+7 {
			return 0, fmt.Errorf("varuint: overflows %d bits", bits)
		}
	}
	return result, nil
}

func (r *reader) varint32() (int32, error) {
	v, err := r.varint64(32)
	return int32(v), err
}

func (r *reader) varint64(bits int) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.byte()
		if err != nil {
			return 0, fmt.Errorf("varint: %w", err)
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < uint(bits) && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (r *reader) name() (string, error) {
	n, err := r.varuint32()
	if err != nil {
		return "", fmt.Errorf("name length: %w", err)
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", fmt.Errorf("name bytes: %w", err)
	}
	return string(b), nil
}

func (r *reader) f32bits() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) f64bits() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// writer accumulates encoded bytes.
type writer struct {
	b []byte
}

func (w *writer) byte(v byte) { w.b = append(w.b, v) }

func (w *writer) bytes(v []byte) { w.b = append(w.b, v...) }

func (w *writer) varuint32(v uint32) { w.varuint64(uint64(v)) }

func (w *writer) varuint64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.byte(b)
		if v == 0 {
			break
		}
	}
}

func (w *writer) varint32(v int32) { w.varint64(int64(v)) }

func (w *writer) varint64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.byte(b)
	}
}

func (w *writer) name(s string) {
	w.varuint32(uint32(len(s)))
	w.b = append(w.b, s...)
}

func (w *writer) f32bits(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.bytes(buf[:])
}

func (w *writer) f64bits(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.bytes(buf[:])
}

// f32FromFloat / f64FromFloat convert a literal into the raw-bits form
// Instr.F32 / Instr.F64 store. No code in the repository calls them: the
// passes that synthesize instructions (gas's grow_counter, pack's new
// function body) emit integer constants only.
func f32FromFloat(f float32) uint32 { return math.Float32bits(f) }
func f64FromFloat(f float64) uint64 { return math.Float64bits(f) }
