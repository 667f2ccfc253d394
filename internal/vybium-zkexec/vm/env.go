package vm

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/codec"
)

// Guest is a program run by the engine. Run must be deterministic: all input
// comes from env and all output goes to the journal. A returned error or a
// panic terminates the session abnormally and no receipt is produced.
type Guest interface {
	Run(env Env) error
}

// GuestFunc adapts a function to Guest.
type GuestFunc func(env Env) error

// Run calls f(env).
func (f GuestFunc) Run(env Env) error {
	return f(env)
}

// Env is the host side of the guest contract.
type Env interface {
	// Read decodes the next input item into v. Any failure poisons the
	// session: it ends with MalformedInput whatever the guest returns.
	Read(v any) error
	// ReadBytes reads the next item as a byte string of exactly n bytes
	// (any length when n < 0).
	ReadBytes(n int) ([]byte, error)
	// Commit appends the encoding of v to the public journal.
	Commit(v any) error
	// End fails if unread input items remain, poisoning the session like
	// a failed Read.
	End() error
	// CycleCount reads the session cycle counter. Reading the counter is
	// the last thing it does, so a measurement is not charged for it.
	CycleCount() uint64
	// Report records a measurement sample for console reporting.
	Report(s bench.Sample)
}

// Malformed marks err as an input validity failure found by the guest.
func Malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedInput, err)
}

// env is the per-session Env. After the executor abandons a session every
// call fails, so a guest outliving its deadline cannot touch the result.
type env struct {
	mu sync.Mutex

	ctx     context.Context
	input   []byte
	offset  int
	dec     *codec.Decoder
	journal bytes.Buffer

	counter   bench.Counter
	base      uint64
	maxCycles uint64
	maxJourn  int

	trace   *TraceRecorder
	samples []bench.Sample
	// counter reads not yet written to the trace
	pendingReads int

	readErr   error
	exhausted error
	closed    bool
}

func newEnv(ctx context.Context, input []byte, counter bench.Counter, maxCycles uint64, maxJournal int, trace *TraceRecorder) *env {
	e := &env{
		ctx:       ctx,
		input:     input,
		dec:       codec.NewDecoder(input),
		counter:   counter,
		maxCycles: maxCycles,
		maxJourn:  maxJournal,
		trace:     trace,
	}
	e.base = counter.CycleCount()
	return e
}

// elapsed returns cycles since session start. counter and base never change,
// so no lock is needed.
func (e *env) elapsed() uint64 {
	now := e.counter.CycleCount()
	if now < e.base {
		return 0
	}
	return now - e.base
}

// flushReads writes pending counter reads to the trace. Callers hold mu.
func (e *env) flushReads() {
	for ; e.pendingReads > 0; e.pendingReads-- {
		e.trace.Record(OpCycleCount, nil)
	}
}

// enter runs the per-call checks. Callers hold mu.
func (e *env) enter() error {
	e.flushReads()
	if e.exhausted != nil {
		return e.exhausted
	}
	if e.closed {
		e.exhausted = fmt.Errorf("%w: session abandoned", ErrResourceExhausted)
		return e.exhausted
	}
	if err := e.ctx.Err(); err != nil {
		e.exhausted = fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		return e.exhausted
	}
	return e.checkCycles(e.elapsed())
}

func (e *env) checkCycles(used uint64) error {
	if e.maxCycles > 0 && used > e.maxCycles {
		e.exhausted = fmt.Errorf("%w: %d cycles exceeds limit %d", ErrResourceExhausted, used, e.maxCycles)
		return e.exhausted
	}
	return nil
}

func (e *env) Read(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	if e.readErr != nil {
		return e.readErr
	}
	if err := e.dec.Next(v); err != nil {
		e.readErr = Malformed(err)
		return e.readErr
	}
	data, err := codec.Encode(v)
	if err != nil {
		data = nil
	}
	e.trace.Record(OpRead, data)
	return nil
}

func (e *env) ReadBytes(n int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return nil, err
	}
	if e.readErr != nil {
		return nil, e.readErr
	}
	b, err := e.dec.NextBytes(n)
	if err != nil {
		e.readErr = Malformed(err)
		return nil, e.readErr
	}
	e.trace.Record(OpRead, b)
	return b, nil
}

func (e *env) End() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	if e.readErr != nil {
		return e.readErr
	}
	if err := e.dec.End(); err != nil {
		e.readErr = Malformed(err)
		return e.readErr
	}
	return nil
}

func (e *env) Commit(v any) error {
	data, err := codec.Encode(v)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return e.commitRaw(data)
}

// commitRaw appends pre-encoded bytes to the journal.
func (e *env) commitRaw(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return err
	}
	if e.journal.Len()+len(data) > e.maxJourn {
		return fmt.Errorf("%w: %d + %d bytes exceeds %d", ErrJournalFull, e.journal.Len(), len(data), e.maxJourn)
	}
	e.journal.Write(data)
	e.trace.Record(OpCommit, data)
	return nil
}

// readRaw copies up to len(dst) unread input bytes into dst.
func (e *env) readRaw(dst []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(); err != nil {
		return 0, err
	}
	n := copy(dst, e.input[e.offset:])
	e.offset += n
	e.trace.Record(OpRead, dst[:n])
	return n, nil
}

// CycleCount defers its trace row to the next host call so that nothing but
// the lock sits between a reading and the measured code on either side.
func (e *env) CycleCount() uint64 {
	e.mu.Lock()
	if e.closed || e.exhausted != nil {
		e.mu.Unlock()
		return 0
	}
	e.pendingReads++
	used := e.elapsed()
	if e.maxCycles > 0 && used > e.maxCycles {
		_ = e.checkCycles(used)
	}
	e.mu.Unlock()
	return used
}

func (e *env) Report(s bench.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.flushReads()
	e.samples = append(e.samples, s)
	e.trace.Record(OpReport, []byte(s.Label))
}

// finish closes the session and returns the cycles used.
func (e *env) finish() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	used := e.elapsed()
	if !e.closed {
		e.flushReads()
	}
	if e.exhausted == nil {
		_ = e.checkCycles(used)
	}
	e.closed = true
	return used
}

// abandon closes the session after the executor has given up on it.
func (e *env) abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *env) result() (journal []byte, samples []bench.Sample, readErr, exhausted error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.journal.Bytes()...), append([]bench.Sample(nil), e.samples...), e.readErr, e.exhausted
}
