package sim

import (
	"context"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/resonara/internal/instrument"
	"github.com/RMahshie/resonara/pkg/measerr"
)

func TestNewIsDeterministic(t *testing.T) {
	a := New(7).Resonators()
	b := New(7).Resonators()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, New(8).Resonators())

	require.Len(t, a, ResonatorCount)
	for i, r := range a {
		assert.GreaterOrEqual(t, r.QC, 150_000.0)
		assert.LessOrEqual(t, r.QC, 170_000.0)
		assert.GreaterOrEqual(t, r.Phi, 0.0)
		assert.Less(t, r.Phi, 0.2)
		assert.InDelta(t, 4.1e9+0.2e9*float64(i), r.Freq, 10e6)
	}
}

func TestInternalQRisesWithPower(t *testing.T) {
	r := New(1).Resonators()[0]
	assert.Less(t, r.InternalQ(-100), r.InternalQ(-50))
	assert.Less(t, r.InternalQ(-50), r.InternalQ(10))
	assert.InDelta(t, r.QI0, r.InternalQ(-1000), 1)
	assert.InDelta(t, r.QI0+r.DeltaQI, r.InternalQ(1000), 1)
	assert.Less(t, r.LoadedQ(0), r.InternalQ(0))
}

func TestSweepShowsNotch(t *testing.T) {
	ctx := context.Background()
	v := New(3, WithNoise(0))
	r := v.Resonators()[2]

	cfg := instrument.SweepConfig{Power: 0, Bandwidth: 1000, Start: r.Freq - 5e5, Stop: r.Freq + 5e5, Points: 1001, Averages: 1}
	applied, err := v.Configure(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, applied)

	require.NoError(t, v.Trigger(ctx))
	done, err := v.OperationComplete(ctx)
	require.NoError(t, err)
	assert.True(t, done)

	raw, err := v.ReadRawSamples(ctx)
	require.NoError(t, err)
	data, err := instrument.Deinterleave(raw)
	require.NoError(t, err)
	require.Len(t, data, 1001)

	minIdx := 0
	for i := range data {
		if cmplx.Abs(data[i]) < cmplx.Abs(data[minIdx]) {
			minIdx = i
		}
	}
	// 1 kHz spacing, loaded linewidth is tens of kHz
	assert.InDelta(t, 500, minIdx, 20)
	assert.Less(t, cmplx.Abs(data[minIdx]), 0.8*cmplx.Abs(data[0]))
}

func TestCompletionAfterPolls(t *testing.T) {
	ctx := context.Background()
	v := New(1, WithPollsToComplete(3))
	_, err := v.Configure(ctx, instrument.SweepConfig{Bandwidth: 100, Start: 4e9, Stop: 4.1e9, Points: 10, Averages: 2})
	require.NoError(t, err)

	done, err := v.OperationComplete(ctx)
	require.NoError(t, err)
	assert.False(t, done, "idle instrument reports no completion")

	require.NoError(t, v.Trigger(ctx))
	for i := 0; i < 2; i++ {
		done, _ = v.OperationComplete(ctx)
		assert.False(t, done)
	}
	done, _ = v.OperationComplete(ctx)
	assert.True(t, done)

	d, err := v.SweepDuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)
}

func TestStuckSweepNeverCompletes(t *testing.T) {
	ctx := context.Background()
	v := New(1, WithStuckSweep(), WithSweepDuration(time.Millisecond))
	_, err := v.Configure(ctx, instrument.SweepConfig{Bandwidth: 100, Start: 4e9, Stop: 4.1e9, Points: 10, Averages: 1})
	require.NoError(t, err)
	require.NoError(t, v.Trigger(ctx))
	for i := 0; i < 10; i++ {
		done, err := v.OperationComplete(ctx)
		require.NoError(t, err)
		assert.False(t, done)
	}
}

func TestNotConfigured(t *testing.T) {
	ctx := context.Background()
	v := New(1)
	assert.ErrorIs(t, v.Trigger(ctx), ErrNotConfigured)
	_, err := v.ReadRawSamples(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = v.Configure(ctx, instrument.SweepConfig{})
	assert.ErrorIs(t, err, measerr.ErrConfiguration)
}

func TestOutputAndContinuousState(t *testing.T) {
	ctx := context.Background()
	v := New(1)
	assert.True(t, v.Continuous())
	assert.False(t, v.Output())

	require.NoError(t, v.SetOutput(ctx, true))
	require.NoError(t, v.SetContinuous(ctx, false))
	assert.True(t, v.Output())
	assert.False(t, v.Continuous())

	v.SetTimeout(time.Minute)
	assert.Equal(t, time.Minute, v.Timeout())
}
