package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/utils"
)

// Executor runs registered program images on encoded input. Each Execute
// call is an independent session; executors are safe for concurrent use.
type Executor struct {
	registry   *Registry
	config     *utils.Config
	newCounter func() bench.Counter
	wasm       *WasmBackend
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCounter sets the factory for per-session cycle counters. The default
// is a monotonic nanosecond counter.
func WithCounter(newCounter func() bench.Counter) ExecutorOption {
	return func(e *Executor) {
		e.newCounter = newCounter
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor over registry.
func NewExecutor(ctx context.Context, registry *Registry, config *utils.Config, opts ...ExecutorOption) (*Executor, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if config == nil {
		config = utils.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Executor{
		registry:   registry,
		config:     config.Clone(),
		newCounter: func() bench.Counter { return bench.NewMonotonicCounter() },
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}

	wasm, err := NewWasmBackend(ctx, e.config.WasmMemoryLimitPages)
	if err != nil {
		return nil, err
	}
	e.wasm = wasm

	// Fail early on wasm images that do not compile.
	for _, p := range registry.Programs() {
		if p.Kind == KindWasm {
			if _, err := wasm.Compile(ctx, p); err != nil {
				_ = wasm.Close(ctx)
				return nil, err
			}
		}
	}
	return e, nil
}

// Registry returns the registry the executor runs images from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Config returns a copy of the executor configuration.
func (e *Executor) Config() *utils.Config {
	return e.config.Clone()
}

// Close releases the wasm runtime.
func (e *Executor) Close(ctx context.Context) error {
	return e.wasm.Close(ctx)
}

// Execute runs image id on input. Guest failures are reported in the
// returned session's Exit; an error means the engine itself failed: unknown
// image, exhausted resources or a cancelled context.
func (e *Executor) Execute(ctx context.Context, id ImageID, input []byte) (*Session, error) {
	program, guest, err := e.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	if len(input) > e.config.MaxInputBytes {
		return nil, fmt.Errorf("%w: input of %d bytes exceeds %d", ErrResourceExhausted, len(input), e.config.MaxInputBytes)
	}

	if e.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ExecutionTimeout)
		defer cancel()
	}

	trace := NewTraceRecorder()
	sess := &Session{
		ID:      uuid.New(),
		ImageID: id,
		Program: program,
		Trace:   trace,
		Started: time.Now(),
	}
	env := newEnv(ctx, input, e.newCounter(), e.config.MaxCycles, e.config.MaxJournalBytes, trace)

	logger := e.logger.With("session", sess.ID.String(), "program", program.String())
	logger.Debug("session started", "image", id.String(), "input_bytes", len(input))

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrGuestPanicked, r)
			}
		}()
		done <- e.run(ctx, program, guest, env)
	}()

	var runErr error
	abandoned := false
	select {
	case runErr = <-done:
		// wasm modules are closed when the context ends and fail with a trap.
		abandoned = runErr != nil && ctx.Err() != nil
	case <-ctx.Done():
		abandoned = true
	}
	// A native guest cannot be stopped; abandoning the env makes every
	// later host call fail so it cannot affect this session.
	if abandoned {
		err := ctx.Err()
		env.abandon()
		logger.Warn("session abandoned", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s exceeded execution timeout %s", ErrResourceExhausted, program, e.config.ExecutionTimeout)
		}
		return nil, fmt.Errorf("vm: execution of %s cancelled: %w", program, err)
	}
	if errors.Is(runErr, ErrInvalidProgram) {
		return nil, runErr
	}

	sess.Cycles = env.finish()
	sess.Duration = time.Since(sess.Started)
	journal, samples, readErr, exhausted := env.result()
	if exhausted != nil {
		logger.Warn("session exhausted resources", "error", exhausted, "cycles", sess.Cycles)
		return nil, exhausted
	}

	sess.Journal = journal
	sess.Samples = samples
	sess.Exit = classifyExit(runErr, readErr)
	trace.Halt(sess.Exit.Status)

	logger.Info("session finished",
		"status", sess.Exit.Status.String(),
		"cycles", sess.Cycles,
		"journal_bytes", len(sess.Journal),
		"trace_rows", trace.Len(),
	)
	return sess, nil
}

func (e *Executor) run(ctx context.Context, p *Program, g Guest, env *env) error {
	switch p.Kind {
	case KindNative:
		return g.Run(env)
	case KindWasm:
		return e.wasm.run(ctx, p, env)
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidProgram, p.Kind)
	}
}

// classifyExit maps a guest outcome to an exit. A failed read wins over
// whatever the guest returned afterwards.
func classifyExit(runErr, readErr error) Exit {
	switch {
	case readErr != nil:
		return Exit{Status: ExitMalformedInput, Err: fmt.Errorf("%w: %w", ErrGuestFailed, readErr)}
	case runErr == nil:
		return Exit{Status: ExitHalted}
	case errors.Is(runErr, ErrMalformedInput):
		return Exit{Status: ExitMalformedInput, Err: fmt.Errorf("%w: %w", ErrGuestFailed, runErr)}
	default:
		return Exit{Status: ExitGuestFailed, Err: fmt.Errorf("%w: %w", ErrGuestFailed, runErr)}
	}
}
