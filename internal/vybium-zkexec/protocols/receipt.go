package protocols

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/utils"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// transcriptDomain separates receipt transcripts from any other use of the
// prover key.
const transcriptDomain = "vybium-zkexec/receipt/v1"

// NonceSize is the byte length of a receipt nonce.
const NonceSize = 32

// Seal is the prover's attestation over a claim.
type Seal struct {
	ProverKeyID string `json:"prover_key_id"`
	Transcript  string `json:"transcript"` // channel hash function
	Nonce       []byte `json:"nonce"`
	Signature   []byte `json:"signature"`

	// Halt opens the final trace row under the claimed trace root.
	Halt *vm.TraceOpening `json:"halt"`
}

// Receipt is an immutable attestation that a program produced a journal. It
// carries everything a verifier needs except the expected identity and the
// trusted prover keys.
type Receipt struct {
	Version string `json:"version"`
	Claim   Claim  `json:"claim"`
	Journal []byte `json:"journal"`
	Seal    Seal   `json:"seal"`
}

// transcript rebuilds the channel the seal signature covers.
func transcript(version string, claim *Claim, hashFunc string, nonce []byte) *utils.Channel {
	digest := claim.Digest()
	ch := utils.NewChannel(hashFunc)
	ch.SendLabeled("domain", []byte(transcriptDomain))
	ch.SendLabeled("version", []byte(version))
	ch.SendLabeled("claim", digest[:])
	ch.SendLabeled("nonce", nonce)
	return ch
}

// SigningMessage returns the bytes the seal signature covers.
func (r *Receipt) SigningMessage() []byte {
	return transcript(r.Version, &r.Claim, r.Seal.Transcript, r.Seal.Nonce).State()
}

// MarshalReceipt encodes a receipt as canonical JSON (RFC 8785), so equal
// receipts always serialize to identical bytes.
func MarshalReceipt(r *Receipt) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize receipt: %w", err)
	}
	return canonical, nil
}

// UnmarshalReceipt decodes a receipt. The document must match the receipt
// schema; unknown fields are rejected.
func UnmarshalReceipt(data []byte) (*Receipt, error) {
	if err := validateReceiptJSON(data); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var r Receipt
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("unmarshal receipt: trailing data")
	}
	return &r, nil
}
