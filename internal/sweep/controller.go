// Package sweep drives a single acquisition against an instrument driver
// and fills a trace with the result.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/instrument"
	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

const (
	DefaultPollInterval = 20 * time.Millisecond
	DefaultSettleDelay  = 200 * time.Millisecond
	DefaultSafetyMargin = 5 * time.Second

	// outputOffTimeout bounds the best-effort output shutdown on failure.
	outputOffTimeout = 5 * time.Second
)

// State of an acquisition.
type State int

const (
	Idle State = iota
	Configuring
	Armed
	Sweeping
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Armed:
		return "armed"
	case Sweeping:
		return "sweeping"
	case Draining:
		return "draining"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds the timing of an acquisition.
type Config struct {
	PollInterval time.Duration // between completion polls
	SettleDelay  time.Duration // after the last repetition, before draining
	SafetyMargin time.Duration // added to the reported sweep time
}

// DefaultConfig returns the standard timing.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		SettleDelay:  DefaultSettleDelay,
		SafetyMargin: DefaultSafetyMargin,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithObserver registers a callback invoked on every state transition.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller runs sweeps one at a time against a driver it owns
// exclusively. RF output is never switched on by the controller; callers
// bracket sweeps with SetOutput. On failure the output is forced off.
type Controller struct {
	driver   instrument.Driver
	cfg      Config
	observer func(from, to State)

	mu    sync.Mutex
	state State
}

// NewController creates a controller. Zero durations in cfg fall back to
// the defaults.
func NewController(driver instrument.Driver, cfg Config, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = def.SafetyMargin
	}
	c := &Controller{driver: driver, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Driver returns the instrument driver the controller owns.
func (c *Controller) Driver() instrument.Driver { return c.driver }

// State returns the current acquisition state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	log.Debug().Stringer("from", from).Stringer("to", to).Msg("Sweep state transition")
	if c.observer != nil {
		c.observer(from, to)
	}
}

// Budget returns the completion timeout for a sweep of the given duration
// repeated averages times.
func (c *Controller) Budget(sweepDuration time.Duration, averages int) time.Duration {
	return sweepDuration*time.Duration(averages) + c.cfg.SafetyMargin
}

// Estimate configures the instrument for t and returns the expected
// acquisition time, without sweeping.
func (c *Controller) Estimate(ctx context.Context, t *models.Trace) (time.Duration, error) {
	if _, err := c.driver.Configure(ctx, instrument.ConfigFor(t)); err != nil {
		return 0, fmt.Errorf("configure: %w", err)
	}
	d, err := c.driver.SweepDuration(ctx)
	if err != nil {
		return 0, fmt.Errorf("query sweep duration: %w", err)
	}
	return d * time.Duration(t.Averages), nil
}

// Measure acquires t.Averages repetitions and fills t with the result.
// A *measerr.TimeoutError is returned if a repetition does not complete
// within the budget; the whole sweep must then be retried.
func (c *Controller) Measure(ctx context.Context, t *models.Trace) (err error) {
	if t.Filled() {
		return measerr.Validation("trace already holds data")
	}
	defer func() {
		if err != nil {
			c.transition(Idle)
			c.forceOutputOff(ctx, err)
		}
	}()

	c.transition(Configuring)
	want := instrument.ConfigFor(t)
	applied, err := c.driver.Configure(ctx, want)
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if applied.Points != want.Points {
		return measerr.Configuration("instrument applied %d points, trace needs %d", applied.Points, want.Points)
	}

	c.transition(Armed)
	if err := c.driver.SetContinuous(ctx, false); err != nil {
		return fmt.Errorf("disable continuous trigger: %w", err)
	}
	duration, err := c.driver.SweepDuration(ctx)
	if err != nil {
		return fmt.Errorf("query sweep duration: %w", err)
	}
	budget := c.Budget(duration, applied.Averages)

	if ta, ok := c.driver.(instrument.TimeoutAdjuster); ok {
		if old := ta.Timeout(); old > 0 {
			ta.SetTimeout(budget)
			defer ta.SetTimeout(old)
		}
	}

	c.transition(Sweeping)
	start := time.Now()
	for rep := 1; rep <= applied.Averages; rep++ {
		if err := c.driver.Trigger(ctx); err != nil {
			return fmt.Errorf("trigger repetition %d: %w", rep, err)
		}
		if err := c.awaitCompletion(ctx, start, budget, rep, applied.Averages); err != nil {
			return err
		}
	}

	c.transition(Draining)
	if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	if err := c.driver.WaitComplete(ctx); err != nil {
		return fmt.Errorf("wait complete: %w", err)
	}
	raw, err := c.driver.ReadRawSamples(ctx)
	if err != nil {
		return fmt.Errorf("read samples: %w", err)
	}
	data, err := instrument.Deinterleave(raw)
	if err != nil {
		return err
	}
	if err := t.SetData(data); err != nil {
		return err
	}

	c.transition(Done)
	log.Info().
		Dur("elapsed", time.Since(start)).
		Dur("budget", budget).
		Int("repetitions", applied.Averages).
		Int("points", len(data)).
		Float64("power", t.Power).
		Msg("Sweep completed")
	return nil
}

// awaitCompletion polls the completion flag of one repetition until it is
// set or the overall budget, measured from start, is spent.
func (c *Controller) awaitCompletion(ctx context.Context, start time.Time, budget time.Duration, rep, of int) error {
	for {
		done, err := c.driver.OperationComplete(ctx)
		if err != nil {
			return fmt.Errorf("poll repetition %d: %w", rep, err)
		}
		if done {
			return nil
		}
		remaining := budget - time.Since(start)
		if remaining <= 0 {
			return &measerr.TimeoutError{Repetition: rep, Of: of, Elapsed: time.Since(start), Expected: budget}
		}
		if err := sleep(ctx, min(c.cfg.PollInterval, remaining)); err != nil {
			return err
		}
	}
}

func (c *Controller) forceOutputOff(ctx context.Context, cause error) {
	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outputOffTimeout)
	defer cancel()
	if err := c.driver.SetOutput(offCtx, false); err != nil {
		log.Error().Err(err).AnErr("cause", cause).Msg("Failed to switch RF output off after sweep failure")
		return
	}
	log.Warn().Err(cause).Msg("Sweep failed, RF output switched off")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
