package protocols

import (
	"context"
	"fmt"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// Engine pairs an executor with a prover: execute, then attest.
type Engine struct {
	executor *vm.Executor
	prover   *Prover
}

// NewEngine creates an engine.
func NewEngine(executor *vm.Executor, prover *Prover) (*Engine, error) {
	if executor == nil || prover == nil {
		return nil, fmt.Errorf("engine needs both an executor and a prover")
	}
	return &Engine{executor: executor, prover: prover}, nil
}

// Executor returns the underlying executor.
func (e *Engine) Executor() *vm.Executor {
	return e.executor
}

// Prover returns the underlying prover.
func (e *Engine) Prover() *Prover {
	return e.prover
}

// Execute runs image id without producing a receipt.
func (e *Engine) Execute(ctx context.Context, id vm.ImageID, input []byte) (*vm.Session, error) {
	return e.executor.Execute(ctx, id, input)
}

// Prove runs image id and attests the result. A guest failure returns the
// session together with its exit error, which matches vm.ErrGuestFailed; any
// other error is an engine failure and comes without a session.
func (e *Engine) Prove(ctx context.Context, id vm.ImageID, input []byte) (*vm.Session, *Receipt, error) {
	session, err := e.executor.Execute(ctx, id, input)
	if err != nil {
		return nil, nil, err
	}
	if !session.Halted() {
		return session, nil, session.Err()
	}
	receipt, err := e.prover.Prove(session)
	if err != nil {
		return session, nil, err
	}
	return session, receipt, nil
}
