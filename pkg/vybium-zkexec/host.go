package vybiumzkexec

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/codec"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/guests"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/guests/benchmark"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/protocols"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// BenchmarkSection is the samples of one benchmark suite
type BenchmarkSection = benchmark.Section

type nativeGuest struct {
	program *Program
	guest   Guest
}

type hostOptions struct {
	logger         *slog.Logger
	proverSeed     []byte
	random         io.Reader
	trusted        []ed25519.PublicKey
	newCounter     func() bench.Counter
	native         []nativeGuest
	wasm           []*Program
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Host
type Option func(*hostOptions)

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *hostOptions) { o.logger = logger }
}

// WithProverSeed derives the prover key from a 32 byte seed instead of
// generating a fresh one.
func WithProverSeed(seed []byte) Option {
	return func(o *hostOptions) { o.proverSeed = append([]byte(nil), seed...) }
}

// WithRandomSource replaces the source of receipt nonces.
func WithRandomSource(r io.Reader) Option {
	return func(o *hostOptions) { o.random = r }
}

// WithTrustedProver makes the host's verifier accept seals from pub as well
// as from its own prover key.
func WithTrustedProver(pub ed25519.PublicKey) Option {
	return func(o *hostOptions) { o.trusted = append(o.trusted, pub) }
}

// WithCounter sets the cycle counter factory used for every session.
func WithCounter(newCounter func() Counter) Option {
	return func(o *hostOptions) { o.newCounter = newCounter }
}

// WithGuest registers an additional native guest.
func WithGuest(p *Program, g Guest) Option {
	return func(o *hostOptions) { o.native = append(o.native, nativeGuest{program: p, guest: g}) }
}

// WithWasmModule registers an additional WebAssembly guest.
func WithWasmModule(p *Program) Option {
	return func(o *hostOptions) { o.wasm = append(o.wasm, p) }
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *hostOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. The default is the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *hostOptions) { o.meterProvider = mp }
}

// Host drives guest programs through the execute, prove and verify phases.
// A Host is safe for concurrent use; each Lifecycle is not.
type Host struct {
	config    *Config
	logger    *slog.Logger
	registry  *vm.Registry
	executor  *vm.Executor
	engine    *protocols.Engine
	verifier  *protocols.VerifierContext
	telemetry *telemetry
}

// NewHost creates a host with the shipped guests registered
func NewHost(ctx context.Context, config *Config, opts ...Option) (*Host, error) {
	o := &hostOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}

	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, &Error{Code: ErrInvalidConfig, Message: "invalid config", Cause: err}
	}
	config = config.Clone()

	registry, err := guests.Registry()
	if err != nil {
		return nil, &Error{Code: ErrInvalidConfig, Message: "failed to register guests", Cause: err}
	}
	for _, n := range o.native {
		if _, err := registry.RegisterNative(n.program, n.guest); err != nil {
			return nil, &Error{Code: ErrInvalidConfig, Message: "failed to register guest", Cause: err}
		}
	}
	for _, p := range o.wasm {
		if _, err := registry.RegisterWasm(p); err != nil {
			return nil, &Error{Code: ErrInvalidConfig, Message: "failed to register wasm guest", Cause: err}
		}
	}

	var key *protocols.ProverKey
	if o.proverSeed != nil {
		key, err = protocols.NewProverKey(o.proverSeed)
	} else {
		key, err = protocols.GenerateProverKey(rand.Reader)
	}
	if err != nil {
		return nil, &Error{Code: ErrInvalidConfig, Message: "failed to create prover key", Cause: err}
	}

	execOpts := []vm.ExecutorOption{vm.WithLogger(o.logger)}
	if o.newCounter != nil {
		execOpts = append(execOpts, vm.WithCounter(o.newCounter))
	}
	executor, err := vm.NewExecutor(ctx, registry, config, execOpts...)
	if err != nil {
		if errors.Is(err, vm.ErrInvalidProgram) {
			return nil, &Error{Code: ErrInvalidConfig, Message: "invalid guest program", Cause: err}
		}
		return nil, engineError(err)
	}

	prover, err := protocols.NewProver(key, config)
	if err != nil {
		_ = executor.Close(ctx)
		return nil, &Error{Code: ErrInvalidConfig, Message: "failed to create prover", Cause: err}
	}
	if o.random != nil {
		prover.SetRandomSource(o.random)
	}

	engine, err := protocols.NewEngine(executor, prover)
	if err != nil {
		_ = executor.Close(ctx)
		return nil, engineError(err)
	}

	verifier, err := protocols.NewVerifierContext(config, append([]ed25519.PublicKey{key.Public()}, o.trusted...)...)
	if err != nil {
		_ = executor.Close(ctx)
		return nil, &Error{Code: ErrInvalidConfig, Message: "failed to create verifier", Cause: err}
	}

	tel, err := newTelemetry(o.tracerProvider, o.meterProvider)
	if err != nil {
		_ = executor.Close(ctx)
		return nil, engineError(err)
	}

	o.logger.InfoContext(ctx, "host ready",
		"prover_key", key.ID(),
		"guests", len(registry.Programs()),
		"max_cycles", config.MaxCycles,
		"timeout", config.ExecutionTimeout,
	)

	return &Host{
		config:    config,
		logger:    o.logger,
		registry:  registry,
		executor:  executor,
		engine:    engine,
		verifier:  verifier,
		telemetry: tel,
	}, nil
}

// Close releases the execution engine
func (h *Host) Close(ctx context.Context) error {
	if err := h.executor.Close(ctx); err != nil {
		return &Error{Code: ErrEngineFailure, Message: "failed to close execution engine", Cause: err}
	}
	return nil
}

// Config returns a copy of the host configuration
func (h *Host) Config() *Config {
	return h.config.Clone()
}

// Programs lists the registered guest programs
func (h *Host) Programs() []*Program {
	return h.registry.Programs()
}

// ProverPublicKey returns the key receipts from this host are sealed with
func (h *Host) ProverPublicKey() ed25519.PublicKey {
	return h.engine.Prover().Key().Public()
}

// Trust adds a prover key to the host's verifier
func (h *Host) Trust(pub ed25519.PublicKey) error {
	if err := h.verifier.Trust(pub); err != nil {
		return &Error{Code: ErrInvalidConfig, Message: "cannot trust prover key", Cause: err}
	}
	return nil
}

// Ed25519VerifyID returns the identity of the signature verification guest
func (h *Host) Ed25519VerifyID() ImageID {
	return guests.Ed25519VerifyID()
}

// BenchmarkID returns the identity of the arithmetic benchmark guest
func (h *Host) BenchmarkID() ImageID {
	return guests.BenchmarkID()
}

// Encode builds an input blob from values in order
func (h *Host) Encode(values ...any) ([]byte, error) {
	blob, err := codec.Encode(values...)
	if err != nil {
		return nil, &Error{Code: ErrMalformedInput, Message: "failed to encode input", Cause: err}
	}
	return blob, nil
}

// Execute runs a guest without proving. The session reports the guest's exit
// status; an error means the engine failed and there is no session.
func (h *Host) Execute(ctx context.Context, id ImageID, blob []byte) (*Session, error) {
	ctx, span := h.telemetry.start(ctx, "zkexec.execute",
		attribute.String("image_id", id.String()),
		attribute.Int("input.bytes", len(blob)),
	)
	defer span.End()

	session, err := h.engine.Execute(ctx, id, blob)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine failure")
		return nil, engineError(err)
	}
	h.telemetry.recordCycles(ctx, session.Cycles, id.String())
	span.SetAttributes(attribute.String("exit", session.Exit.Status.String()))
	return session, nil
}

// Prove runs a guest on an encoded blob and issues a receipt for a normal
// run. A guest failure returns the session with an ErrGuestFailure and no
// receipt; an engine failure returns neither.
func (h *Host) Prove(ctx context.Context, id ImageID, blob []byte) (*Session, *Receipt, error) {
	l := h.NewLifecycle(id)
	if err := l.SetInput(ctx, blob); err != nil {
		return nil, nil, err
	}
	receipt, err := l.Prove(ctx)
	return l.Session(), receipt, err
}

// Verify checks a receipt against the expected program identity
func (h *Host) Verify(receipt *Receipt, id ImageID) error {
	if err := h.verifier.Verify(receipt, id); err != nil {
		return verificationError(err)
	}
	return nil
}

// ProveEd25519Verification proves that sig is a valid signature of msg under
// vk. The receipt journal commits vk and msg.
func (h *Host) ProveEd25519Verification(ctx context.Context, vk ed25519.PublicKey, msg, sig []byte) (*Session, *Receipt, error) {
	l := h.NewLifecycle(h.Ed25519VerifyID())
	if err := l.Encode(ctx, []byte(vk), msg, sig); err != nil {
		return nil, nil, err
	}
	receipt, err := l.Prove(ctx)
	return l.Session(), receipt, err
}

// Benchmark runs the arithmetic benchmark guest and returns its samples
// grouped by suite.
func (h *Host) Benchmark(ctx context.Context) ([]BenchmarkSection, error) {
	session, err := h.Execute(ctx, h.BenchmarkID(), nil)
	if err != nil {
		return nil, err
	}
	if !session.Halted() {
		return nil, guestError(session.Err())
	}
	return benchmark.Sections(session.Samples), nil
}
