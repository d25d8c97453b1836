// Package stuck provides an online analyzer of agent productivity. It
// records per-step action outcomes in a sliding window and, at a fixed
// step interval, evaluates repetition, failure, and stall triggers to
// decide whether the agent needs human guidance.
package stuck

import (
	"sync"
	"time"
)

// Defaults for all thresholds. Every one of them is tunable via the
// functional options below.
const (
	DefaultWindowSize          = 10
	DefaultRepeatWindow        = 3
	DefaultCheckInterval       = 3
	DefaultStepTimeout         = 120 * time.Second
	DefaultNoProgressTimeout   = 300 * time.Second
	DefaultCooldown            = 60 * time.Second
	DefaultSimilarityThreshold = 0.7
)

// ActionRecord is one observation for the detector.
type ActionRecord struct {
	ActionName   string
	Timestamp    time.Time
	Duration     time.Duration
	Success      bool
	ErrorMessage string
	StepNumber   int
}

// Detector keeps a bounded window of action records and scores them.
// Safe for concurrent use; in practice records arrive serially from the
// engine's step callback.
type Detector struct {
	mu sync.Mutex

	windowSize    int
	repeatWindow  int
	checkInterval int
	stepTimeout   time.Duration
	noProgress    time.Duration
	cooldown      time.Duration
	similarity    float64

	window      []ActionRecord
	recorded    int // records since last reset
	taskStart   time.Time
	lastSuccess time.Time
	lastReport  time.Time

	now func() time.Time
}

// Option configures the detector.
type Option func(*Detector)

// WithWindowSize sets the sliding window bound (W).
func WithWindowSize(n int) Option {
	return func(d *Detector) { d.windowSize = n }
}

// WithRepeatWindow sets how many trailing records the repetition and
// failure triggers inspect (N).
func WithRepeatWindow(n int) Option {
	return func(d *Detector) { d.repeatWindow = n }
}

// WithCheckInterval sets how many records elapse between evaluations (K).
func WithCheckInterval(n int) Option {
	return func(d *Detector) { d.checkInterval = n }
}

// WithStepTimeout sets the per-step duration trigger (Dmax).
func WithStepTimeout(t time.Duration) Option {
	return func(d *Detector) { d.stepTimeout = t }
}

// WithNoProgressTimeout sets the stall trigger (Tmax).
func WithNoProgressTimeout(t time.Duration) Option {
	return func(d *Detector) { d.noProgress = t }
}

// WithCooldown sets the minimum spacing between reports (Cmin).
func WithCooldown(t time.Duration) Option {
	return func(d *Detector) { d.cooldown = t }
}

// WithSimilarityThreshold sets the fuzzy action-name match bound (tau).
func WithSimilarityThreshold(tau float64) Option {
	return func(d *Detector) { d.similarity = tau }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New creates a detector with spec defaults, adjusted by opts.
func New(opts ...Option) *Detector {
	d := &Detector{
		windowSize:    DefaultWindowSize,
		repeatWindow:  DefaultRepeatWindow,
		checkInterval: DefaultCheckInterval,
		stepTimeout:   DefaultStepTimeout,
		noProgress:    DefaultNoProgressTimeout,
		cooldown:      DefaultCooldown,
		similarity:    DefaultSimilarityThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Reset()
	return d
}

// Reset clears the window, timers, and cooldown. Called on every task
// start.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = d.window[:0]
	d.recorded = 0
	d.taskStart = d.now()
	d.lastSuccess = time.Time{}
	d.lastReport = time.Time{}
}

// Record adds an observation and, every checkInterval records, evaluates
// the triggers. Returns a report when one fires, nil otherwise.
func (d *Detector) Record(rec ActionRecord) *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = d.now()
	}

	d.window = append(d.window, rec)
	if len(d.window) > d.windowSize {
		d.window = d.window[len(d.window)-d.windowSize:]
	}
	d.recorded++

	if rec.Success {
		d.lastSuccess = rec.Timestamp
	}

	if d.recorded%d.checkInterval != 0 {
		return nil
	}

	now := d.now()
	if !d.lastReport.IsZero() && now.Sub(d.lastReport) < d.cooldown {
		return nil
	}

	reason := d.evaluate(now)
	if reason == reasonNone {
		return nil
	}

	d.lastReport = now
	return d.compose(reason, now)
}
