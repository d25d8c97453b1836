// Package scripted provides a deterministic in-process engine honoring
// the full Agent contract. It exists for development mode and tests,
// where a real browser-automation engine is unavailable.
package scripted

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
)

// Step is one scripted agent step.
type Step struct {
	ActionName string
	Success    bool
	Error      string
	Delay      time.Duration
}

// Factory builds scripted agents. A nil Script yields DefaultScript.
type Factory struct {
	Script []Step
	logger *logger.Logger
}

// NewFactory creates a scripted engine factory.
func NewFactory(script []Step, log *logger.Logger) *Factory {
	return &Factory{
		Script: script,
		logger: log.WithFields(zap.String("component", "scripted_engine")),
	}
}

// DefaultScript is five quick successful steps.
func DefaultScript() []Step {
	steps := make([]Step, 5)
	for i := range steps {
		steps[i] = Step{
			ActionName: "navigate",
			Success:    true,
			Delay:      50 * time.Millisecond,
		}
	}
	return steps
}

// Create implements engine.Factory.
func (f *Factory) Create(ctx context.Context, spec engine.TaskSpec) (engine.Agent, error) {
	script := f.Script
	if script == nil {
		script = DefaultScript()
	}
	a := &agent{
		spec:   spec,
		script: script,
		logger: f.logger.WithTask(spec.Task),
	}
	a.cond = sync.NewCond(&a.mu)
	return a, nil
}

// agent executes the script, honoring pause/resume/stop at step
// boundaries exactly as the engine contract requires.
type agent struct {
	spec   engine.TaskSpec
	script []Step
	logger *logger.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	stopped  bool
	guidance []string
}

// Run implements engine.Agent.
func (a *agent) Run(ctx context.Context, maxSteps int) error {
	history := make([]string, 0, len(a.script))
	success := true
	var runErr string

	steps := a.script
	if maxSteps > 0 && maxSteps < len(steps) {
		steps = steps[:maxSteps]
	}

	for i, step := range steps {
		if !a.waitAtBoundary(ctx) {
			a.finish(engine.TerminalResult{
				Success: false,
				Error:   "stopped",
				History: history,
			})
			return nil
		}

		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				a.finish(engine.TerminalResult{
					Success: false,
					Error:   ctx.Err().Error(),
					History: history,
				})
				return ctx.Err()
			}
		}

		history = append(history, step.ActionName)
		if a.spec.OnStep != nil {
			a.spec.OnStep(engine.StepResult{
				StepNumber: i + 1,
				ActionName: step.ActionName,
				Success:    step.Success,
				Duration:   step.Delay,
				Error:      step.Error,
			})
		}
		if !step.Success {
			success = false
			runErr = step.Error
		}
	}

	a.finish(engine.TerminalResult{
		Success: success,
		Error:   runErr,
		History: history,
	})
	return nil
}

// waitAtBoundary blocks while paused and reports false once stopped.
func (a *agent) waitAtBoundary(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.paused && !a.stopped {
		a.cond.Wait()
	}
	if a.stopped || ctx.Err() != nil {
		return false
	}
	return true
}

func (a *agent) finish(result engine.TerminalResult) {
	if a.spec.OnDone != nil {
		a.spec.OnDone(result)
	}
}

// Pause implements engine.Agent.
func (a *agent) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
}

// Resume implements engine.Agent.
func (a *agent) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = false
	a.cond.Broadcast()
}

// Stop implements engine.Agent.
func (a *agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.cond.Broadcast()
}

// Guide implements engine.Agent.
func (a *agent) Guide(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.guidance = append(a.guidance, text)
	a.logger.Info("Guidance received", zap.String("guidance", text))
}

// Guidance returns the guidance texts received so far.
func (a *agent) Guidance() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.guidance))
	copy(out, a.guidance)
	return out
}
