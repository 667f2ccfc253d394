package utils

import (
	"bytes"
	"testing"
)

// TestNewChannel tests creating a new channel
func TestNewChannel(t *testing.T) {
	tests := []struct {
		name     string
		hashFunc string
		sameAs   string
	}{
		{"default (empty string)", "", "sha3"},
		{"sha256", "sha256", "sha256"},
		{"sha3", "sha3", "sha3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewChannel(tt.hashFunc)
			if len(ch.State()) == 0 {
				t.Error("Channel state not initialized")
			}
			ref := NewChannel(tt.sameAs)
			ch.SendLabeled("x", []byte("y"))
			ref.SendLabeled("x", []byte("y"))
			if !bytes.Equal(ch.State(), ref.State()) {
				t.Errorf("channel %q should hash like %q", tt.hashFunc, tt.sameAs)
			}
		})
	}
}

// TestChannelSendLabeled tests absorbing a message into the channel
func TestChannelSendLabeled(t *testing.T) {
	ch := NewChannel("sha3")
	initialState := ch.State()

	ch.SendLabeled("data", []byte("test data"))

	if bytes.Equal(initialState, ch.State()) {
		t.Error("Channel state should change after SendLabeled")
	}
}

func TestChannelDeterministic(t *testing.T) {
	a := NewChannel("sha3")
	b := NewChannel("sha3")
	for _, ch := range []*Channel{a, b} {
		ch.SendLabeled("claim", []byte{1, 2, 3})
		ch.SendLabeled("nonce", []byte{4})
	}
	if !bytes.Equal(a.State(), b.State()) {
		t.Error("identical transcripts must produce identical states")
	}
}

func TestChannelHashFunctionsDiffer(t *testing.T) {
	a := NewChannel("sha3")
	b := NewChannel("sha256")
	a.SendLabeled("m", []byte("x"))
	b.SendLabeled("m", []byte("x"))
	if bytes.Equal(a.State(), b.State()) {
		t.Error("sha3 and sha256 transcripts should differ")
	}
}

func TestChannelLabeledFraming(t *testing.T) {
	a := NewChannel("")
	a.SendLabeled("m", []byte("ab"))
	a.SendLabeled("m", []byte("c"))

	b := NewChannel("")
	b.SendLabeled("m", []byte("a"))
	b.SendLabeled("m", []byte("bc"))

	if bytes.Equal(a.State(), b.State()) {
		t.Error("re-split messages must not collide")
	}

	c := NewChannel("")
	c.SendLabeled("ma", []byte("b"))
	d := NewChannel("")
	d.SendLabeled("m", []byte("ab"))
	if bytes.Equal(c.State(), d.State()) {
		t.Error("label and payload must not run together")
	}
}

func TestChannelStateIsCopy(t *testing.T) {
	ch := NewChannel("")
	ch.SendLabeled("m", []byte("x"))
	s := ch.State()
	s[0] ^= 0xff
	if bytes.Equal(s, ch.State()) {
		t.Error("State must return a copy")
	}
}
