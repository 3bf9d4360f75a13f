package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/resonara/internal/grid"
	"github.com/RMahshie/resonara/internal/instrument"
	"github.com/RMahshie/resonara/internal/instrument/sim"
	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

// MockDriver is a mock implementation of instrument.Driver
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Configure(ctx context.Context, cfg instrument.SweepConfig) (instrument.SweepConfig, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(instrument.SweepConfig), args.Error(1)
}

func (m *MockDriver) SetContinuous(ctx context.Context, on bool) error {
	return m.Called(ctx, on).Error(0)
}

func (m *MockDriver) SetOutput(ctx context.Context, on bool) error {
	return m.Called(ctx, on).Error(0)
}

func (m *MockDriver) Trigger(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) OperationComplete(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) WaitComplete(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) ReadRawSamples(ctx context.Context) ([]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func (m *MockDriver) SweepDuration(ctx context.Context) (time.Duration, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Duration), args.Error(1)
}

func fastConfig() Config {
	return Config{PollInterval: time.Millisecond, SettleDelay: time.Millisecond, SafetyMargin: time.Second}
}

func newTrace(t *testing.T, freqs []float64, averages int) *models.Trace {
	t.Helper()
	tr, err := models.NewTrace("NB", "W5-32", 1000, 0, freqs, models.WithAverages(averages))
	require.NoError(t, err)
	return tr
}

func TestMeasureWithSimulator(t *testing.T) {
	ctx := context.Background()
	vna := sim.New(42, sim.WithPollsToComplete(3), sim.WithSweepDuration(10*time.Millisecond))
	r := vna.Resonators()[0]
	freqs, err := grid.Precise.Grid(r.Freq, 1e5)
	require.NoError(t, err)

	var transitions []State
	c := NewController(vna, fastConfig(), WithObserver(func(_, to State) {
		transitions = append(transitions, to)
	}))

	require.NoError(t, vna.SetOutput(ctx, true))
	tr := newTrace(t, freqs, 3)
	require.NoError(t, c.Measure(ctx, tr))

	assert.True(t, tr.Filled())
	assert.Len(t, tr.Data(), len(freqs))
	assert.Equal(t, []State{Configuring, Armed, Sweeping, Draining, Done}, transitions)
	assert.Equal(t, Done, c.State())

	// output discipline belongs to the caller on success
	assert.True(t, vna.Output())
	assert.False(t, vna.Continuous())
	// I/O timeout override is restored
	assert.Equal(t, 5*time.Second, vna.Timeout())
}

func TestMeasureTimesOutWithinBudget(t *testing.T) {
	ctx := context.Background()
	vna := sim.New(1, sim.WithStuckSweep(), sim.WithSweepDuration(10*time.Millisecond))
	cfg := Config{PollInterval: 5 * time.Millisecond, SettleDelay: time.Millisecond, SafetyMargin: 50 * time.Millisecond}
	c := NewController(vna, cfg)

	require.NoError(t, vna.SetOutput(ctx, true))
	tr := newTrace(t, []float64{4e9, 4.1e9, 4.2e9}, 2)

	budget := c.Budget(10*time.Millisecond, 2)
	require.Equal(t, 70*time.Millisecond, budget)

	start := time.Now()
	err := c.Measure(ctx, tr)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, measerr.ErrDriverTimeout)
	var te *measerr.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Repetition)
	assert.Equal(t, 2, te.Of)
	assert.Equal(t, budget, te.Expected)
	assert.GreaterOrEqual(t, te.Elapsed, budget)

	// scheduling slack only
	assert.Less(t, elapsed, budget+100*time.Millisecond)
	assert.False(t, vna.Output())
	assert.False(t, tr.Filled())
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 5*time.Second, vna.Timeout())
}

func TestMeasureCommunicationErrorForcesOutputOff(t *testing.T) {
	ctx := context.Background()
	drv := new(MockDriver)
	tr := newTrace(t, []float64{4e9, 5e9}, 1)
	cfg := instrument.ConfigFor(tr)
	cause := errors.New("broken pipe")

	drv.On("Configure", mock.Anything, cfg).Return(cfg, nil)
	drv.On("SetContinuous", mock.Anything, false).Return(nil)
	drv.On("SweepDuration", mock.Anything).Return(time.Millisecond, nil)
	drv.On("Trigger", mock.Anything).Return(measerr.Communication("trigger", cause))
	drv.On("SetOutput", mock.Anything, false).Return(nil).Once()

	err := NewController(drv, fastConfig()).Measure(ctx, tr)
	assert.ErrorIs(t, err, measerr.ErrDriverCommunication)
	assert.ErrorIs(t, err, cause)
	drv.AssertExpectations(t)
	drv.AssertNotCalled(t, "SetOutput", mock.Anything, true)
}

func TestMeasureDeinterleavesSamples(t *testing.T) {
	ctx := context.Background()
	drv := new(MockDriver)
	tr := newTrace(t, []float64{1, 2, 3}, 2)
	cfg := instrument.ConfigFor(tr)

	drv.On("Configure", mock.Anything, cfg).Return(cfg, nil)
	drv.On("SetContinuous", mock.Anything, false).Return(nil)
	drv.On("SweepDuration", mock.Anything).Return(time.Millisecond, nil)
	drv.On("Trigger", mock.Anything).Return(nil).Twice()
	drv.On("OperationComplete", mock.Anything).Return(false, nil).Once()
	drv.On("OperationComplete", mock.Anything).Return(true, nil)
	drv.On("WaitComplete", mock.Anything).Return(nil).Once()
	drv.On("ReadRawSamples", mock.Anything).Return([]float64{1, 0, 0, 1, -1, 0}, nil)

	require.NoError(t, NewController(drv, fastConfig()).Measure(ctx, tr))
	assert.Equal(t, []complex128{1, 1i, -1}, tr.Data())
	drv.AssertExpectations(t)
	drv.AssertNotCalled(t, "SetOutput", mock.Anything, mock.Anything)
}

func TestMeasureRejectsPointMismatch(t *testing.T) {
	ctx := context.Background()
	drv := new(MockDriver)
	tr := newTrace(t, []float64{1, 2, 3}, 1)
	cfg := instrument.ConfigFor(tr)
	clipped := cfg
	clipped.Points = 2

	drv.On("Configure", mock.Anything, cfg).Return(clipped, nil)
	drv.On("SetOutput", mock.Anything, false).Return(nil)

	err := NewController(drv, fastConfig()).Measure(ctx, tr)
	assert.ErrorIs(t, err, measerr.ErrConfiguration)
	drv.AssertExpectations(t)
}

func TestMeasureWrongSampleCount(t *testing.T) {
	ctx := context.Background()
	drv := new(MockDriver)
	tr := newTrace(t, []float64{1, 2, 3}, 1)
	cfg := instrument.ConfigFor(tr)

	drv.On("Configure", mock.Anything, cfg).Return(cfg, nil)
	drv.On("SetContinuous", mock.Anything, false).Return(nil)
	drv.On("SweepDuration", mock.Anything).Return(time.Millisecond, nil)
	drv.On("Trigger", mock.Anything).Return(nil)
	drv.On("OperationComplete", mock.Anything).Return(true, nil)
	drv.On("WaitComplete", mock.Anything).Return(nil)
	drv.On("ReadRawSamples", mock.Anything).Return([]float64{1, 0}, nil)
	drv.On("SetOutput", mock.Anything, false).Return(nil)

	err := NewController(drv, fastConfig()).Measure(ctx, tr)
	assert.ErrorIs(t, err, measerr.ErrValidation)
	assert.False(t, tr.Filled())
}

func TestMeasureRejectsFilledTrace(t *testing.T) {
	tr := newTrace(t, []float64{1}, 1)
	require.NoError(t, tr.SetData([]complex128{1}))
	err := NewController(new(MockDriver), fastConfig()).Measure(context.Background(), tr)
	assert.ErrorIs(t, err, measerr.ErrValidation)
}

func TestMeasureCancelled(t *testing.T) {
	vna := sim.New(1, sim.WithStuckSweep(), sim.WithSweepDuration(time.Hour))
	c := NewController(vna, fastConfig())
	require.NoError(t, vna.SetOutput(context.Background(), true))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := c.Measure(ctx, newTrace(t, []float64{4e9, 4.1e9}, 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, vna.Output())
}

func TestEstimate(t *testing.T) {
	vna := sim.New(1, sim.WithSweepDuration(2*time.Second))
	c := NewController(vna, Config{})

	d, err := c.Estimate(context.Background(), newTrace(t, []float64{4e9, 4.1e9}, 3))
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, d)
	assert.Equal(t, 2*time.Second*4+DefaultSafetyMargin, c.Budget(2*time.Second, 4))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "sweeping", Sweeping.String())
	assert.Equal(t, "state(42)", State(42).String())
}
