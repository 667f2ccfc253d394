// Package protocols implements the receipt protocol: the claim a receipt
// makes, how a prover attests it and how a verifier checks it against an
// expected program identity.
package protocols

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/core"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// Hash32 is a 32-byte SHA3-256 digest.
type Hash32 [32]byte

// MarshalText implements encoding.TextMarshaler.
func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash32) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(raw) != len(h) {
		return fmt.Errorf("hash must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return nil
}

func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// JournalDigest hashes a journal.
func JournalDigest(journal []byte) Hash32 {
	return sha3.Sum256(journal)
}

// Claim contains the public statement a receipt attests: the program that
// ran, how it exited, what it committed and a commitment to its trace.
// The input never appears in a claim.
type Claim struct {
	// ImageID is the identity of the program that was executed
	ImageID vm.ImageID `json:"image_id"`

	// ExitCode is zero for a program that halted normally. Receipts are
	// only issued for halted sessions.
	ExitCode uint32 `json:"exit_code"`

	// JournalDigest binds the public output
	JournalDigest Hash32 `json:"journal_digest"`

	// TraceRoot is the salted Merkle root of the host interaction trace
	TraceRoot Hash32 `json:"trace_root"`
}

// NewClaim creates a claim for a halted session.
func NewClaim(session *vm.Session, salt []byte) (*Claim, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if !session.Halted() {
		return nil, fmt.Errorf("cannot claim a session that ended with %s", session.Exit.Status)
	}

	root, err := session.Trace.Commit(salt)
	if err != nil {
		return nil, fmt.Errorf("trace commitment: %w", err)
	}

	c := &Claim{
		ImageID:       session.ImageID,
		ExitCode:      uint32(session.Exit.Status),
		JournalDigest: JournalDigest(session.Journal),
	}
	copy(c.TraceRoot[:], root)
	return c, nil
}

// Validate checks if the claim is well-formed
func (c *Claim) Validate() error {
	if c.ImageID.IsZero() {
		return fmt.Errorf("claim has no image id")
	}
	if c.ExitCode != 0 {
		return fmt.Errorf("claim exit code must be 0, got %d", c.ExitCode)
	}
	return nil
}

// Digest computes the field-friendly digest the prover signs over.
func (c *Claim) Digest() core.Digest {
	var code [4]byte
	binary.BigEndian.PutUint32(code[:], c.ExitCode)
	return core.HashParts(c.ImageID[:], code[:], c.JournalDigest[:], c.TraceRoot[:])
}
