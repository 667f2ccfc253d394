// Package codec implements the input blob and journal encoding shared by host
// and guest: an ordered sequence of self-describing CBOR data items. Every item
// carries its own length, so a guest read consumes exactly one value.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Decoding errors.
var (
	ErrEndOfInput   = errors.New("codec: no more items")
	ErrTruncated    = errors.New("codec: truncated item")
	ErrTypeMismatch = errors.New("codec: item does not match target type")
	ErrMalformed    = errors.New("codec: malformed item")
	ErrLength       = errors.New("codec: unexpected byte length")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: identical values always encode identically.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid encode options: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid decode options: %v", err))
	}
}

// Encoder appends values to a blob in call order.
type Encoder struct {
	buf   bytes.Buffer
	enc   *cbor.Encoder
	count int
}

// NewEncoder creates an empty blob encoder.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.enc = encMode.NewEncoder(&e.buf)
	return e
}

// Write appends one value.
func (e *Encoder) Write(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("codec: encode item %d: %w", e.count, err)
	}
	e.count++
	return nil
}

// Len returns the number of items written.
func (e *Encoder) Len() int {
	return e.count
}

// Bytes returns a copy of the encoded blob.
func (e *Encoder) Bytes() []byte {
	return append([]byte(nil), e.buf.Bytes()...)
}

// Encode encodes values, in order, into a single blob.
func Encode(values ...any) ([]byte, error) {
	e := NewEncoder()
	for _, v := range values {
		if err := e.Write(v); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// Decoder reads values from a blob in the order they were written.
type Decoder struct {
	dec   *cbor.Decoder
	index int
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(bytes.NewReader(data))}
}

// Next decodes the next item into v.
func (d *Decoder) Next(v any) error {
	err := d.dec.Decode(v)
	if err == nil {
		d.index++
		return nil
	}
	return d.classify(err)
}

// NextBytes decodes the next item as a byte string. A non-negative size
// requires the string to have exactly that length.
func (d *Decoder) NextBytes(size int) ([]byte, error) {
	var b []byte
	if err := d.Next(&b); err != nil {
		return nil, err
	}
	if size >= 0 && len(b) != size {
		return nil, fmt.Errorf("%w: item %d has %d bytes, want %d", ErrLength, d.index-1, len(b), size)
	}
	return b, nil
}

// Index returns the number of items decoded so far.
func (d *Decoder) Index() int {
	return d.index
}

func (d *Decoder) classify(err error) error {
	var typeErr *cbor.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: item %d", ErrEndOfInput, d.index)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: item %d", ErrTruncated, d.index)
	case errors.As(err, &typeErr):
		return fmt.Errorf("%w: item %d: %v", ErrTypeMismatch, d.index, err)
	default:
		return fmt.Errorf("%w: item %d: %v", ErrMalformed, d.index, err)
	}
}

// End fails with ErrMalformed if any item remains unread.
func (d *Decoder) End() error {
	var extra cbor.RawMessage
	err := d.dec.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: trailing data after %d items", ErrMalformed, d.index)
}

// DecodeAll decodes every item of a blob into the given targets, in order.
// It fails if the blob holds fewer or more items than targets.
func DecodeAll(data []byte, targets ...any) error {
	d := NewDecoder(data)
	for _, t := range targets {
		if err := d.Next(t); err != nil {
			return err
		}
	}
	return d.End()
}
