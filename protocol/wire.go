package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for any frame or payload that does not decode.
var ErrMalformed = errors.New("malformed message")

type encoder struct {
	b []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) int(num protowire.Number, v int64) {
	e.uint(num, uint64(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.uint(num, 1)
	}
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

// message always emits the field, so that empty messages keep their presence
func (e *encoder) message(num protowire.Number, fn func(*encoder) error) error {
	inner := encoder{}
	if err := fn(&inner); err != nil {
		return err
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, inner.b)
	return nil
}

type field struct {
	num protowire.Number
	typ protowire.Type
	val uint64
	raw []byte
}

func (f field) uint() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: field %d is not a varint", ErrMalformed, f.num)
	}
	return f.val, nil
}

func (f field) uint32() (uint32, error) {
	v, err := f.uint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %d overflows uint32", ErrMalformed, f.num)
	}
	return uint32(v), nil
}

func (f field) bytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d is not length-delimited", ErrMalformed, f.num)
	}
	return f.raw, nil
}

// walk calls fn for every known-typed field of b. Groups and fixed-width fields
// are skipped.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.val, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// oneof decodes a message whose top-level fields are mutually exclusive
// variants, returning the single variant present.
func oneof[T any](b []byte, decode func(num protowire.Number, raw []byte) (T, error)) (T, error) {
	var (
		out   T
		found bool
	)
	err := walk(b, func(f field) error {
		raw, err := f.bytes()
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: more than one variant set", ErrMalformed)
		}
		out, err = decode(f.num, raw)
		found = true
		return err
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, fmt.Errorf("%w: no variant set", ErrMalformed)
	}
	return out, nil
}
