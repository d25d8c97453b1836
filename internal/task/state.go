// Package task owns the single active task slot: its state machine, the
// agent handle, cooperative cancellation, and the suspended help
// protocol used when the agent gets stuck.
package task

import (
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// State is the task slot's internal state.
type State string

const (
	StateIdle         State = "idle"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateAwaitingHelp State = "awaiting_help"
	StateStopping     State = "stopping"
	StateTerminal     State = "terminal"
)

// active reports whether the state counts as a running task.
func (s State) active() bool {
	switch s {
	case StateStarting, StateRunning, StatePaused, StateAwaitingHelp, StateStopping:
		return true
	}
	return false
}

// paused reports whether the state projects as paused.
func (s State) paused() bool {
	return s == StatePaused || s == StateAwaitingHelp
}

// startable reports whether a new task may be accepted.
func (s State) startable() bool {
	return s == StateIdle || s == StateTerminal
}

// projection renders the externally visible TaskStatus. Caller holds
// the manager lock.
func (m *Manager) projection() protocol.TaskStatus {
	status := protocol.TaskStatus{
		IsRunning: m.state.active(),
		IsPaused:  m.state.paused(),
		HasAgent:  m.agent != nil,
	}
	if m.state.active() {
		if m.currentTask != "" {
			task := m.currentTask
			status.CurrentTask = &task
		}
		if m.cdpEndpoint != "" {
			endpoint := m.cdpEndpoint
			status.CDPEndpoint = &endpoint
		}
	}
	return status
}
