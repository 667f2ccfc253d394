package protocols

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/utils"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// Verification errors. Every failure also matches ErrVerification.
var (
	ErrVerification       = errors.New("protocols: receipt verification failed")
	ErrImageMismatch      = errors.New("image id does not match expected program")
	ErrJournalMismatch    = errors.New("journal does not match claimed digest")
	ErrUntrustedProver    = errors.New("prover key is not trusted")
	ErrBadSignature       = errors.New("seal signature is invalid")
	ErrUnsupportedVersion = errors.New("receipt version is not accepted")
	ErrMalformedReceipt   = errors.New("receipt is malformed")
	ErrTraceMismatch      = errors.New("halt row does not open under trace root")
)

var supportedTranscripts = map[string]bool{"sha3": true, "sha256": true}

// VerifierContext checks receipts against an expected program identity. It
// needs no access to the input or to the engine, only the prover keys it
// trusts.
type VerifierContext struct {
	mu         sync.RWMutex
	keys       map[string]ed25519.PublicKey
	constraint *semver.Constraints
}

// NewVerifierContext creates a verifier accepting receipt versions allowed by
// config and seals from the trusted keys.
func NewVerifierContext(config *utils.Config, trusted ...ed25519.PublicKey) (*VerifierContext, error) {
	if config == nil {
		config = utils.DefaultConfig()
	}
	constraint, err := config.VersionConstraint()
	if err != nil {
		return nil, fmt.Errorf("invalid accepted versions: %w", err)
	}

	v := &VerifierContext{
		keys:       make(map[string]ed25519.PublicKey),
		constraint: constraint,
	}
	for _, pub := range trusted {
		if err := v.Trust(pub); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Trust adds a prover key.
func (v *VerifierContext) Trust(pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("prover key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[KeyID(pub)] = append(ed25519.PublicKey(nil), pub...)
	return nil
}

func (v *VerifierContext) key(id string) (ed25519.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pub, ok := v.keys[id]
	return pub, ok
}

// Verify checks that r attests a normal run of the program identified by
// expected. The receipt is not modified and may be verified any number of
// times.
func (v *VerifierContext) Verify(r *Receipt, expected vm.ImageID) error {
	if err := v.verify(r, expected); err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return nil
}

func (v *VerifierContext) verify(r *Receipt, expected vm.ImageID) error {
	if r == nil {
		return fmt.Errorf("%w: nil receipt", ErrMalformedReceipt)
	}

	version, err := semver.NewVersion(r.Version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrMalformedReceipt, r.Version, err)
	}
	if !v.constraint.Check(version) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}

	if err := r.Claim.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}
	if r.Claim.ImageID != expected {
		return fmt.Errorf("%w: receipt is for %s, expected %s", ErrImageMismatch, r.Claim.ImageID, expected)
	}
	if JournalDigest(r.Journal) != r.Claim.JournalDigest {
		return ErrJournalMismatch
	}

	if !supportedTranscripts[r.Seal.Transcript] {
		return fmt.Errorf("%w: transcript hash %q", ErrMalformedReceipt, r.Seal.Transcript)
	}
	if len(r.Seal.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedReceipt, NonceSize, len(r.Seal.Nonce))
	}
	if r.Seal.Halt == nil {
		return fmt.Errorf("%w: missing halt opening", ErrMalformedReceipt)
	}
	pub, ok := v.key(r.Seal.ProverKeyID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUntrustedProver, r.Seal.ProverKeyID)
	}
	if !ed25519.Verify(pub, r.SigningMessage(), r.Seal.Signature) {
		return ErrBadSignature
	}

	halt := r.Seal.Halt
	if halt.Row.Op != vm.OpHalt || halt.Row.Size != uint64(vm.ExitHalted) {
		return fmt.Errorf("%w: opened row is %s/%d", ErrTraceMismatch, halt.Row.Op, halt.Row.Size)
	}
	if !vm.VerifyOpening(r.Claim.TraceRoot[:], r.Seal.Nonce, halt) {
		return ErrTraceMismatch
	}
	return nil
}
