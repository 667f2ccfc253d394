// Package core provides the hashing primitives shared by the execution engine
// and the receipt protocols: field-friendly digests for program identities and
// claims, and a SHA3 Merkle tree for execution trace commitments.
package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"
)

// DigestElements is the number of Goldilocks field elements in a digest
// (same width as a Tip5 digest).
const DigestElements = 5

// DigestSize is the byte length of a serialized Digest.
const DigestSize = DigestElements * 8

// packWidth is the number of bytes packed into one field element. Seven bytes
// always stay below the Goldilocks modulus, so packing is injective.
const packWidth = 7

// Digest is a Tip5 digest serialized as five little-endian uint64 limbs.
type Digest [DigestSize]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is all zero bytes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Elements returns the digest as field elements.
func (d Digest) Elements() []field.Element {
	elems := make([]field.Element, DigestElements)
	for i := range elems {
		elems[i] = field.New(binary.LittleEndian.Uint64(d[i*8:]))
	}
	return elems
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest decodes a hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// BytesToElements packs data into field elements, seven bytes per element,
// preceded by one element holding the byte length.
func BytesToElements(data []byte) []field.Element {
	elems := make([]field.Element, 0, 1+(len(data)+packWidth-1)/packWidth)
	elems = append(elems, field.New(uint64(len(data))))
	for i := 0; i < len(data); i += packWidth {
		end := i + packWidth
		if end > len(data) {
			end = len(data)
		}
		var val uint64
		for j, b := range data[i:end] {
			val |= uint64(b) << (j * 8)
		}
		elems = append(elems, field.New(val))
	}
	return elems
}

// HashElements computes the Tip5 variable-length digest of elems.
func HashElements(elems []field.Element) Digest {
	var d Digest
	digest := hash.HashVarlen(elems)
	for i, elem := range digest {
		if i >= DigestElements {
			break
		}
		binary.LittleEndian.PutUint64(d[i*8:], elem.Value())
	}
	return d
}

// HashParts digests an ordered list of byte strings. The part count and every
// part length are absorbed, so distinct part lists never share an encoding.
func HashParts(parts ...[]byte) Digest {
	elems := []field.Element{field.New(uint64(len(parts)))}
	for _, p := range parts {
		elems = append(elems, BytesToElements(p)...)
	}
	return HashElements(elems)
}
