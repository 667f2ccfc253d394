package protocols

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/utils"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// ErrNotProvable is returned when asked to prove a session that did not halt.
var ErrNotProvable = errors.New("protocols: session is not provable")

// KeyID derives the short identifier of a prover public key.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha3.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// ProverKey is the signing key of an execution engine.
type ProverKey struct {
	priv ed25519.PrivateKey
	id   string
}

// NewProverKey derives a prover key from a 32-byte seed.
func NewProverKey(seed []byte) (*ProverKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("prover key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &ProverKey{priv: priv, id: KeyID(priv.Public().(ed25519.PublicKey))}, nil
}

// GenerateProverKey creates a fresh prover key.
func GenerateProverKey(random io.Reader) (*ProverKey, error) {
	if random == nil {
		random = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate prover key: %w", err)
	}
	return &ProverKey{priv: priv, id: KeyID(priv.Public().(ed25519.PublicKey))}, nil
}

// Public returns the verifying key.
func (k *ProverKey) Public() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// ID returns the key identifier stamped on seals.
func (k *ProverKey) ID() string {
	return k.id
}

// Prover turns halted sessions into receipts.
type Prover struct {
	key      *ProverKey
	version  string
	hashFunc string
	random   io.Reader
}

// NewProver creates a prover signing with key under config.
func NewProver(key *ProverKey, config *utils.Config) (*Prover, error) {
	if key == nil {
		return nil, fmt.Errorf("prover key cannot be nil")
	}
	if config == nil {
		config = utils.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	version, err := semver.NewVersion(config.ReceiptVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt version: %w", err)
	}
	return &Prover{
		key:      key,
		version:  version.String(),
		hashFunc: config.HashFunction,
		random:   rand.Reader,
	}, nil
}

// SetRandomSource replaces the nonce source. Tests use it for reproducible
// receipts.
func (p *Prover) SetRandomSource(r io.Reader) *Prover {
	p.random = r
	return p
}

// Key returns the prover key.
func (p *Prover) Key() *ProverKey {
	return p.key
}

// Prove issues a receipt for a halted session. A fresh nonce salts the trace
// commitment and the transcript, so two receipts for the same run differ.
func (p *Prover) Prove(session *vm.Session) (*Receipt, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: nil session", ErrNotProvable)
	}
	if !session.Halted() {
		return nil, fmt.Errorf("%w: exit %s: %w", ErrNotProvable, session.Exit.Status, session.Err())
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(p.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	claim, err := NewClaim(session, nonce)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		Version: p.version,
		Claim:   *claim,
		Journal: append([]byte(nil), session.Journal...),
		Seal: Seal{
			ProverKeyID: p.key.ID(),
			Transcript:  p.hashFunc,
			Nonce:       nonce,
		},
	}
	halt, err := session.Trace.Open(nonce, session.Trace.Len()-1)
	if err != nil {
		return nil, fmt.Errorf("trace opening: %w", err)
	}
	r.Seal.Halt = halt
	r.Seal.Signature = ed25519.Sign(p.key.priv, r.SigningMessage())
	return r, nil
}
