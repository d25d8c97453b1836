// Package engine defines the command/callback surface the task manager
// requires of the external browser-automation engine. The engine itself
// (LLM inference, DOM parsing, action selection) is an external
// collaborator; only this contract is pinned.
package engine

import (
	"context"
	"time"
)

// StepResult is what the engine reports after every step. The callback
// is synchronous from the engine's perspective.
type StepResult struct {
	StepNumber int
	ActionName string
	Success    bool
	Duration   time.Duration
	Error      string
	Message    string
}

// TerminalResult is the engine's final verdict for a run.
type TerminalResult struct {
	Success bool
	Error   string
	History []string
}

// StepCallback is invoked by the engine after each step.
type StepCallback func(step StepResult)

// DoneCallback is invoked by the engine exactly once when a run ends,
// whether it completed, failed, or was stopped.
type DoneCallback func(result TerminalResult)

// TaskSpec is everything the engine needs to build an agent.
type TaskSpec struct {
	Task        string
	CDPEndpoint string

	// InitialActions are prepended to the engine's plan; the engine
	// must honor them before its own planning.
	InitialActions []Action

	OnStep StepCallback
	OnDone DoneCallback
}

// Agent is a single running automation agent. Pause, Resume, and Stop
// are idempotent request intents honored at the next step boundary.
type Agent interface {
	// Run drives the agent to a terminal state. Long-running; the
	// done callback fires before Run returns.
	Run(ctx context.Context, maxSteps int) error

	Pause()
	Resume()
	Stop()

	// Guide forwards user guidance into the agent's planning context.
	Guide(text string)
}

// Factory builds agents. Construction may be expensive and is performed
// once per task start.
type Factory interface {
	Create(ctx context.Context, spec TaskSpec) (Agent, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, spec TaskSpec) (Agent, error)

// Create implements Factory.
func (f FactoryFunc) Create(ctx context.Context, spec TaskSpec) (Agent, error) {
	return f(ctx, spec)
}
