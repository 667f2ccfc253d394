package vybiumzkexec

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLifecycleHappyPath(t *testing.T) {
	host := newTestHost(t)
	pub, priv := signer()
	ctx := context.Background()

	l := host.NewLifecycle(host.Ed25519VerifyID())
	assert.Equal(t, StateNew, l.State())

	require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, ed25519.Sign(priv, tsunami)))
	assert.Equal(t, StateEncoded, l.State())

	receipt, err := l.Prove(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateProved, l.State())
	assert.Same(t, receipt, l.Receipt())
	require.NotNil(t, l.Session())

	require.NoError(t, l.Verify(ctx, host.Ed25519VerifyID()))
	assert.Equal(t, StateVerified, l.State())
	assert.True(t, l.State().Terminal())
	assert.NoError(t, l.Err())
}

func TestLifecycleIllegalTransitions(t *testing.T) {
	host := newTestHost(t)
	pub, priv := signer()
	ctx := context.Background()
	sig := ed25519.Sign(priv, tsunami)

	tests := []struct {
		name string
		run  func(l *Lifecycle) error
		want State
	}{
		{
			name: "prove before encode",
			run:  func(l *Lifecycle) error { _, err := l.Prove(ctx); return err },
			want: StateNew,
		},
		{
			name: "verify before prove",
			run:  func(l *Lifecycle) error { return l.Verify(ctx, host.Ed25519VerifyID()) },
			want: StateNew,
		},
		{
			name: "encode twice",
			run: func(l *Lifecycle) error {
				require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, sig))
				return l.SetInput(ctx, nil)
			},
			want: StateEncoded,
		},
		{
			name: "prove twice",
			run: func(l *Lifecycle) error {
				require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, sig))
				_, err := l.Prove(ctx)
				require.NoError(t, err)
				_, err = l.Prove(ctx)
				return err
			},
			want: StateProved,
		},
		{
			name: "verify twice",
			run: func(l *Lifecycle) error {
				require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, sig))
				_, err := l.Prove(ctx)
				require.NoError(t, err)
				require.NoError(t, l.Verify(ctx, host.Ed25519VerifyID()))
				return l.Verify(ctx, host.Ed25519VerifyID())
			},
			want: StateVerified,
		},
		{
			name: "verify after guest failure",
			run: func(l *Lifecycle) error {
				require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, make([]byte, 64)))
				_, err := l.Prove(ctx)
				require.True(t, IsCode(err, ErrGuestFailure))
				return l.Verify(ctx, host.Ed25519VerifyID())
			},
			want: StateGuestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := host.NewLifecycle(host.Ed25519VerifyID())
			err := tt.run(l)
			require.Error(t, err)
			assert.Equal(t, ErrInvalidState, CodeOf(err))
			assert.Equal(t, tt.want, l.State())
		})
	}
}

func TestLifecycleFailedStates(t *testing.T) {
	host := newTestHost(t)
	pub, priv := signer()
	ctx := context.Background()

	t.Run("engine failure", func(t *testing.T) {
		var unknown ImageID
		unknown[0] = 0xee
		l := host.NewLifecycle(unknown)
		require.NoError(t, l.SetInput(ctx, nil))
		_, err := l.Prove(ctx)
		require.Error(t, err)
		assert.Equal(t, StateEngineFailed, l.State())
		assert.Nil(t, l.Session())
		assert.Equal(t, err, l.Err())
	})

	t.Run("verification failure", func(t *testing.T) {
		l := host.NewLifecycle(host.Ed25519VerifyID())
		require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, ed25519.Sign(priv, tsunami)))
		_, err := l.Prove(ctx)
		require.NoError(t, err)

		err = l.Verify(ctx, host.BenchmarkID())
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrVerificationFailure))
		assert.Equal(t, StateVerificationFailed, l.State())
		assert.True(t, l.State().Terminal())
	})

	t.Run("unencodable value", func(t *testing.T) {
		l := host.NewLifecycle(host.Ed25519VerifyID())
		err := l.Encode(ctx, make(chan int))
		require.Error(t, err)
		assert.Equal(t, StateNew, l.State())
	})
}

func TestLifecycleTelemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	host := newTestHost(t, WithTracerProvider(tp), WithMeterProvider(mp))
	pub, priv := signer()
	ctx := context.Background()

	l := host.NewLifecycle(host.Ed25519VerifyID())
	require.NoError(t, l.Encode(ctx, []byte(pub), tsunami, ed25519.Sign(priv, tsunami)))
	_, err := l.Prove(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Verify(ctx, host.Ed25519VerifyID()))

	forged := host.NewLifecycle(host.Ed25519VerifyID())
	require.NoError(t, forged.Encode(ctx, []byte(pub), tsunami, make([]byte, 64)))
	_, err = forged.Prove(ctx)
	require.Error(t, err)

	var names []string
	var failed []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
		if span.Status().Code == codes.Error {
			failed = append(failed, span.Name())
		}
	}
	assert.Equal(t, []string{"zkexec.encode", "zkexec.prove", "zkexec.verify", "zkexec.encode", "zkexec.prove"}, names)
	assert.Equal(t, []string{"zkexec.prove"}, failed)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	outcomes := map[string]int64{}
	var sawCycles bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "zkexec.lifecycle.outcomes":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					state, _ := dp.Attributes.Value(attribute.Key("state"))
					outcomes[state.AsString()] += dp.Value
				}
			case "zkexec.session.cycles":
				sawCycles = true
			}
		}
	}
	assert.Equal(t, map[string]int64{"proved": 1, "verified": 1, "guest_failed": 1}, outcomes)
	assert.True(t, sawCycles)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "verification_failed", StateVerificationFailed.String())
	assert.Equal(t, "state(99)", State(99).String())
	assert.False(t, StateProved.Terminal())
	assert.False(t, StateExecuting.Terminal())
}
