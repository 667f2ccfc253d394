// Package ed25519verify is the guest that proves an Ed25519 signature
// verification: it reads a verifying key, a message and a signature, fails
// unless the signature verifies, and commits the key and message.
package ed25519verify

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/codec"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

const (
	Name    = "ed25519-verify"
	Version = "1.0.0"
)

// ErrSignature is returned when the signature does not verify.
var ErrSignature = errors.New("signature did not verify")

// Program returns the image of this guest.
func Program() *vm.Program {
	return vm.NewNativeProgram(Name, Version, "ed25519verify.Guest")
}

// EncodeInput builds the input blob in the order the guest reads it.
func EncodeInput(key ed25519.PublicKey, message, signature []byte) ([]byte, error) {
	return codec.Encode([]byte(key), message, signature)
}

// DecodeJournal returns the key and message a successful run committed.
func DecodeJournal(journal []byte) (ed25519.PublicKey, []byte, error) {
	var key, message []byte
	if err := codec.DecodeAll(journal, &key, &message); err != nil {
		return nil, nil, fmt.Errorf("decode journal: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("decode journal: key has %d bytes", len(key))
	}
	return key, message, nil
}

// Guest verifies one signature.
type Guest struct{}

// Run implements vm.Guest.
func (Guest) Run(env vm.Env) error {
	key, err := env.ReadBytes(ed25519.PublicKeySize)
	if err != nil {
		return err
	}
	if _, err := new(edwards25519.Point).SetBytes(key); err != nil {
		return vm.Malformed(fmt.Errorf("verifying key is not a curve point: %w", err))
	}
	message, err := env.ReadBytes(-1)
	if err != nil {
		return err
	}
	signature, err := env.ReadBytes(ed25519.SignatureSize)
	if err != nil {
		return err
	}
	if err := env.End(); err != nil {
		return err
	}

	var ok bool
	sample := bench.Measure(env, "Verification", func() bool {
		ok = ed25519.Verify(key, message, signature)
		return ok
	})
	env.Report(sample)
	if !ok {
		return ErrSignature
	}

	if err := env.Commit(key); err != nil {
		return err
	}
	return env.Commit(message)
}
