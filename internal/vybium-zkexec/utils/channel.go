package utils

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Channel is a Fiat-Shamir style transcript. Every message is absorbed into a
// running hash state; the final state binds the whole ordered transcript.
type Channel struct {
	state    []byte
	hashFunc string
}

// NewChannel creates a new transcript channel. An empty hashFunc means sha3.
func NewChannel(hashFunc string) *Channel {
	if hashFunc == "" {
		hashFunc = "sha3"
	}
	return &Channel{
		state:    []byte{0},
		hashFunc: hashFunc,
	}
}

// SendLabeled absorbs a label and a length-prefixed payload, so adjacent
// messages cannot be re-split.
func (c *Channel) SendLabeled(label string, data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))

	msg := make([]byte, 0, len(label)+1+len(n)+len(data))
	msg = append(msg, label...)
	msg = append(msg, 0)
	msg = append(msg, n[:]...)
	msg = append(msg, data...)

	c.state = c.hash(append(c.state, msg...))
}

// State returns the current channel state
func (c *Channel) State() []byte {
	return append([]byte(nil), c.state...)
}

func (c *Channel) hash(data []byte) []byte {
	switch c.hashFunc {
	case "sha256":
		h := sha256.Sum256(data)
		return h[:]
	default:
		h := sha3.Sum256(data)
		return h[:]
	}
}
