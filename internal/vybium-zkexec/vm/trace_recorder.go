package vm

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/core"
)

// TraceOp identifies a host interaction recorded in the execution trace.
type TraceOp uint8

const (
	OpRead TraceOp = iota + 1
	OpCommit
	OpCycleCount
	OpReport
	OpHalt
)

func (o TraceOp) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpCommit:
		return "commit"
	case OpCycleCount:
		return "cycle_count"
	case OpReport:
		return "report"
	case OpHalt:
		return "halt"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// TraceRow is one host interaction. Rows hold a digest of the data that
// crossed the boundary, never the data itself, and no cycle values, so the
// trace of a deterministic guest is itself deterministic.
type TraceRow struct {
	Step   uint64   `json:"step"`
	Op     TraceOp  `json:"op"`
	Size   uint64   `json:"size"`
	Digest [32]byte `json:"digest"`
}

// encode serializes the row as a Merkle leaf.
func (r TraceRow) encode() []byte {
	buf := make([]byte, 0, 8+1+8+32)
	buf = binary.BigEndian.AppendUint64(buf, r.Step)
	buf = append(buf, byte(r.Op))
	buf = binary.BigEndian.AppendUint64(buf, r.Size)
	return append(buf, r.Digest[:]...)
}

// TraceRecorder records the host interactions of one session in order.
type TraceRecorder struct {
	mu     sync.Mutex
	rows   []TraceRow
	halted bool
}

// NewTraceRecorder creates an empty trace.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{rows: make([]TraceRow, 0, 16)}
}

// Record appends a row for op carrying data.
func (t *TraceRecorder) Record(op TraceOp, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halted {
		return
	}
	row := TraceRow{Step: uint64(len(t.rows)), Op: op, Size: uint64(len(data))}
	if len(data) > 0 {
		row.Digest = sha3.Sum256(data)
	}
	t.rows = append(t.rows, row)
}

// Halt appends the terminal row carrying the exit status. Later records are
// ignored.
func (t *TraceRecorder) Halt(status ExitStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.halted {
		return
	}
	t.rows = append(t.rows, TraceRow{
		Step: uint64(len(t.rows)),
		Op:   OpHalt,
		Size: uint64(status),
	})
	t.halted = true
}

// Rows returns a copy of the recorded rows.
func (t *TraceRecorder) Rows() []TraceRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceRow(nil), t.rows...)
}

// Len returns the number of recorded rows.
func (t *TraceRecorder) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Commit returns the Merkle root over the rows, each leaf prefixed by salt.
// Salting with a per-receipt nonce keeps row digests of low-entropy inputs
// from being matched across receipts.
func (t *TraceRecorder) Commit(salt []byte) ([]byte, error) {
	tree, _, err := t.tree(salt)
	if err != nil {
		return nil, err
	}
	return tree.Root(), nil
}

func (t *TraceRecorder) tree(salt []byte) (*core.MerkleTree, []TraceRow, error) {
	rows := t.Rows()
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("trace is empty")
	}
	leaves := make([][]byte, len(rows))
	for i, r := range rows {
		leaves[i] = traceLeaf(salt, r)
	}
	tree, err := core.NewMerkleTree(leaves)
	if err != nil {
		return nil, nil, err
	}
	return tree, rows, nil
}

func traceLeaf(salt []byte, r TraceRow) []byte {
	return append(append([]byte(nil), salt...), r.encode()...)
}

// TraceOpening proves that one row belongs to a committed trace.
type TraceOpening struct {
	Row  TraceRow         `json:"row"`
	Path []core.ProofNode `json:"path"`
}

// Open returns the row at step with its authentication path under the root
// Commit(salt) produces.
func (t *TraceRecorder) Open(salt []byte, step int) (*TraceOpening, error) {
	tree, rows, err := t.tree(salt)
	if err != nil {
		return nil, err
	}
	path, err := tree.Proof(step)
	if err != nil {
		return nil, err
	}
	return &TraceOpening{Row: rows[step], Path: path}, nil
}

// VerifyOpening checks an opening against a trace root and the salt it was
// committed with.
func VerifyOpening(root, salt []byte, o *TraceOpening) bool {
	if o == nil {
		return false
	}
	return core.VerifyProof(root, traceLeaf(salt, o.Row), o.Path)
}
