package vybiumzkexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// State is a lifecycle phase
type State int

const (
	StateNew State = iota
	StateEncoded
	StateExecuting
	StateProved
	StateGuestFailed
	StateEngineFailed
	StateVerified
	StateVerificationFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEncoded:
		return "encoded"
	case StateExecuting:
		return "executing"
	case StateProved:
		return "proved"
	case StateGuestFailed:
		return "guest_failed"
	case StateEngineFailed:
		return "engine_failed"
	case StateVerified:
		return "verified"
	case StateVerificationFailed:
		return "verification_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s. Proved is not terminal:
// it may still be verified.
func (s State) Terminal() bool {
	switch s {
	case StateGuestFailed, StateEngineFailed, StateVerified, StateVerificationFailed:
		return true
	}
	return false
}

// Lifecycle is one single-shot run of a guest program: encode the input,
// execute and prove, then verify. Every state is entered at most once.
type Lifecycle struct {
	host  *Host
	id    uuid.UUID
	image ImageID

	mu      sync.Mutex
	state   State
	input   []byte
	session *Session
	receipt *Receipt
	err     error

	verifying bool
}

// NewLifecycle starts a lifecycle for the program identified by image
func (h *Host) NewLifecycle(image ImageID) *Lifecycle {
	return &Lifecycle{
		host:  h,
		id:    uuid.New(),
		image: image,
	}
}

// ID identifies the lifecycle in logs and traces
func (l *Lifecycle) ID() uuid.UUID {
	return l.id
}

// ImageID is the program this lifecycle runs
func (l *Lifecycle) ImageID() ImageID {
	return l.image
}

// State returns the current phase
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Session returns the guest session, once execution has finished
func (l *Lifecycle) Session() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Receipt returns the receipt of a proved lifecycle
func (l *Lifecycle) Receipt() *Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receipt
}

// Err returns the error that ended the lifecycle, if any
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// advance moves from one state to next, applying fn under the lock.
func (l *Lifecycle) advance(ctx context.Context, from, next State, fn func()) error {
	l.mu.Lock()
	cur := l.state
	if cur != from {
		l.mu.Unlock()
		return &Error{
			Code:    ErrInvalidState,
			Message: fmt.Sprintf("lifecycle %s cannot move from %s to %s", l.id, cur, next),
		}
	}
	l.state = next
	if fn != nil {
		fn()
	}
	l.mu.Unlock()

	l.host.logger.DebugContext(ctx, "lifecycle transition",
		"lifecycle", l.id,
		"image_id", l.image,
		"from", cur,
		"to", next,
	)
	return nil
}

// finish records a state reached after execution.
func (l *Lifecycle) finish(ctx context.Context, state State, err error) {
	l.mu.Lock()
	from := l.state
	l.state = state
	l.err = err
	l.mu.Unlock()

	l.host.telemetry.outcome(ctx, state, l.image.String())

	args := []any{
		"lifecycle", l.id,
		"image_id", l.image,
		"from", from,
		"to", state,
	}
	if err != nil {
		l.host.logger.WarnContext(ctx, "lifecycle failed", append(args, "error", err)...)
		return
	}
	l.host.logger.InfoContext(ctx, "lifecycle transition", args...)
}

// Encode builds the input blob from values. New -> Encoded.
func (l *Lifecycle) Encode(ctx context.Context, values ...any) error {
	ctx, span := l.host.telemetry.start(ctx, "zkexec.encode",
		attribute.String("lifecycle", l.id.String()),
		attribute.Int("values", len(values)),
	)
	defer span.End()

	blob, err := l.host.Encode(values...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}

	if err := l.advance(ctx, StateNew, StateEncoded, func() { l.input = blob }); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("input.bytes", len(blob)))
	return nil
}

// SetInput uses an already encoded blob. New -> Encoded.
func (l *Lifecycle) SetInput(ctx context.Context, blob []byte) error {
	blob = append([]byte(nil), blob...)
	return l.advance(ctx, StateNew, StateEncoded, func() { l.input = blob })
}

// Prove executes the guest and attests a normal run.
// Encoded -> Executing -> Proved, GuestFailed or EngineFailed.
func (l *Lifecycle) Prove(ctx context.Context) (*Receipt, error) {
	ctx, span := l.host.telemetry.start(ctx, "zkexec.prove",
		attribute.String("lifecycle", l.id.String()),
		attribute.String("image_id", l.image.String()),
	)
	defer span.End()

	var input []byte
	if err := l.advance(ctx, StateEncoded, StateExecuting, func() { input = l.input }); err != nil {
		span.RecordError(err)
		return nil, err
	}

	session, receipt, err := l.host.engine.Prove(ctx, l.image, input)

	l.mu.Lock()
	l.session = session
	l.receipt = receipt
	l.mu.Unlock()

	if session != nil {
		l.host.telemetry.recordCycles(ctx, session.Cycles, l.image.String())
		span.SetAttributes(
			attribute.String("session", session.ID.String()),
			attribute.String("exit", session.Exit.Status.String()),
			attribute.Int("journal.bytes", len(session.Journal)),
		)
	}

	if err != nil {
		err = classify(err)
		state := StateEngineFailed
		if IsCode(err, ErrGuestFailure) {
			state = StateGuestFailed
		}
		l.finish(ctx, state, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, state.String())
		return nil, err
	}

	l.finish(ctx, StateProved, nil)
	span.SetAttributes(attribute.String("prover_key", receipt.Seal.ProverKeyID))
	return receipt, nil
}

// Verify checks the receipt against the expected identity.
// Proved -> Verified or VerificationFailed.
func (l *Lifecycle) Verify(ctx context.Context, expected ImageID) error {
	ctx, span := l.host.telemetry.start(ctx, "zkexec.verify",
		attribute.String("lifecycle", l.id.String()),
		attribute.String("image_id", expected.String()),
	)
	defer span.End()

	l.mu.Lock()
	if l.state != StateProved || l.verifying {
		cur := l.state
		l.mu.Unlock()
		err := &Error{
			Code:    ErrInvalidState,
			Message: fmt.Sprintf("lifecycle %s cannot verify from %s", l.id, cur),
		}
		span.RecordError(err)
		return err
	}
	l.verifying = true
	receipt := l.receipt
	l.mu.Unlock()

	if err := l.host.Verify(receipt, expected); err != nil {
		l.finish(ctx, StateVerificationFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, StateVerificationFailed.String())
		return err
	}
	l.finish(ctx, StateVerified, nil)
	return nil
}
