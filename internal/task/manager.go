package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/events/bus"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/logstream"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/stuck"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// loggerName tags log events emitted by the task manager.
const loggerName = "task_manager"

// Manager owns the single task slot. All state transitions happen under
// one lock; engine callbacks are marshalled through the same lock before
// touching shared state. Status broadcasts, the start acknowledgement,
// help requests, and terminal results are published on the event bus in
// commit order.
type Manager struct {
	mu           sync.Mutex
	state        State
	currentTask  string
	cdpEndpoint  string
	agent        engine.Agent
	help         *helpSlot
	abandonTimer *time.Timer
	runCancel    context.CancelFunc

	factory    engine.Factory
	bus        bus.EventBus
	capture    *logstream.Capture
	detector   *stuck.Detector
	cfg        config.TaskConfig
	defaultCDP string
	maxSteps   int
	logger     *logger.Logger
}

// NewManager creates a task manager in the idle state.
func NewManager(
	factory engine.Factory,
	eventBus bus.EventBus,
	capture *logstream.Capture,
	detector *stuck.Detector,
	cfg config.TaskConfig,
	engineCfg config.EngineConfig,
	log *logger.Logger,
) *Manager {
	return &Manager{
		state:      StateIdle,
		factory:    factory,
		bus:        eventBus,
		capture:    capture,
		detector:   detector,
		cfg:        cfg,
		defaultCDP: engineCfg.DefaultCDPEndpoint,
		maxSteps:   engineCfg.MaxSteps,
		logger:     log.WithFields(zap.String("component", loggerName)),
	}
}

// Status returns the authoritative task status snapshot.
func (m *Manager) Status() protocol.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projection()
}

// Start validates and accepts a start request, then builds the agent
// asynchronously. A non-nil error means the request was rejected with
// no state change.
func (m *Manager) Start(req protocol.StartTaskRequest) error {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return errors.New("task must not be empty")
	}
	endpoint := req.CDPEndpoint
	if endpoint == "" {
		endpoint = m.defaultCDP
	}
	if req.IsExtension && endpoint == "" {
		return errors.New("cdp_endpoint is required for extension tasks")
	}

	m.mu.Lock()
	if !m.state.startable() {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("a task is already in progress (state: %s)", state)
	}
	m.state = StateStarting
	m.currentTask = task
	m.cdpEndpoint = endpoint
	m.broadcastStatusLocked()
	m.mu.Unlock()

	m.logger.Info("Task accepted", zap.String("task", task))
	go m.buildAndRun(task, endpoint)
	return nil
}

// buildAndRun constructs the agent and drives it to a terminal state.
func (m *Manager) buildAndRun(task, endpoint string) {
	runCtx, cancel := context.WithCancel(context.Background())

	spec := engine.TaskSpec{
		Task:           task,
		CDPEndpoint:    endpoint,
		InitialActions: initialActions(task),
		OnStep:         m.onStep,
		OnDone:         m.onDone,
	}

	agent, err := m.factory.Create(runCtx, spec)

	m.mu.Lock()
	switch {
	case m.state == StateStopping:
		// Stopped while starting: discard whatever was built.
		if agent != nil {
			agent.Stop()
		}
		m.finalizeLocked(engine.TerminalResult{Success: false, Error: "stopped"})
		m.mu.Unlock()
		cancel()
		return
	case m.state != StateStarting:
		m.mu.Unlock()
		cancel()
		return
	case err != nil:
		m.logger.Error("Agent construction failed", zap.Error(err))
		m.emitLogLocked(protocol.LevelError, protocol.EventTypeAgentError,
			"Failed to create agent: "+err.Error(), nil)
		m.finalizeLocked(engine.TerminalResult{Success: false, Error: err.Error()})
		m.mu.Unlock()
		cancel()
		return
	}

	m.agent = agent
	m.runCancel = cancel
	m.state = StateRunning
	m.detector.Reset()
	m.publishLocked(bus.SubjectTaskStarted, protocol.TaskStarted{Message: "Task is starting..."})
	m.broadcastStatusLocked()
	m.emitLogLocked(protocol.LevelInfo, protocol.EventTypeAgentStart,
		"Agent started: "+task, map[string]interface{}{"cdp_endpoint": endpoint})
	maxSteps := m.maxSteps
	m.mu.Unlock()

	go func() {
		if err := agent.Run(runCtx, maxSteps); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("Agent run failed", zap.Error(err))
		}
	}()
}

// Pause requests a pause at the next step boundary.
func (m *Manager) Pause() protocol.TaskActionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return protocol.TaskActionResult{Success: false, Error: "not running"}
	}
	m.agent.Pause()
	m.state = StatePaused
	m.broadcastStatusLocked()
	m.emitLogLocked(protocol.LevelInfo, protocol.EventTypeAgentPause, "Task paused", nil)
	return protocol.TaskActionResult{Success: true, Message: "Task paused."}
}

// Resume resumes a paused task.
func (m *Manager) Resume() protocol.TaskActionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return protocol.TaskActionResult{Success: false, Error: "not paused"}
	}
	m.agent.Resume()
	m.state = StateRunning
	m.broadcastStatusLocked()
	m.emitLogLocked(protocol.LevelInfo, protocol.EventTypeAgentResume, "Task resumed", nil)
	return protocol.TaskActionResult{Success: true, Message: "Task resumed."}
}

// Stop requests cooperative termination. The engine terminates at its
// next step boundary; a hard timeout marks the agent abandoned.
func (m *Manager) Stop() protocol.TaskActionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == StateStopping || m.state == StateTerminal:
		return protocol.TaskActionResult{Success: true, Message: "Task already stopped."}
	case !m.state.active():
		return protocol.TaskActionResult{Success: false, Error: "no task running"}
	}

	if m.help != nil {
		m.help.resolve("")
		m.help = nil
	}
	m.state = StateStopping
	if m.agent != nil {
		m.agent.Stop()
	}
	m.abandonTimer = time.AfterFunc(m.cfg.AbandonTimeout(), m.abandon)
	m.broadcastStatusLocked()
	m.emitLogLocked(protocol.LevelInfo, protocol.EventTypeAgentStop, "Stop requested", nil)
	return protocol.TaskActionResult{Success: true, Message: "Stopping task..."}
}

// HelpResponse resolves a pending help wait with the user's guidance.
func (m *Manager) HelpResponse(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAwaitingHelp || m.help == nil {
		return errors.New("no pending help request")
	}
	if !m.help.resolve(text) {
		return errors.New("no pending help request")
	}
	return nil
}

// onStep is the engine step callback: it records the outcome for the
// stuck detector and emits the canonical step log event.
func (m *Manager) onStep(step engine.StepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.active() {
		return
	}

	level := protocol.LevelInfo
	if !step.Success {
		level = protocol.LevelError
	}
	metadata := map[string]interface{}{
		"action":      step.ActionName,
		"success":     step.Success,
		"step_number": step.StepNumber,
		"duration_ms": step.Duration.Milliseconds(),
	}
	if step.Error != "" {
		metadata["error"] = step.Error
	}
	message := step.Message
	if message == "" {
		message = fmt.Sprintf("Step %d: %s", step.StepNumber, step.ActionName)
	}
	m.emitLogLocked(level, protocol.EventTypeAgentStep, message, metadata)

	report := m.detector.Record(stuck.ActionRecord{
		ActionName:   step.ActionName,
		Timestamp:    time.Now(),
		Duration:     step.Duration,
		Success:      step.Success,
		ErrorMessage: step.Error,
		StepNumber:   step.StepNumber,
	})
	if report != nil && m.state == StateRunning {
		m.enterAwaitingHelpLocked(report)
	}
}

// enterAwaitingHelpLocked pauses the agent and opens the help slot.
func (m *Manager) enterAwaitingHelpLocked(report *stuck.Report) {
	m.agent.Pause()
	m.state = StateAwaitingHelp
	slot := newHelpSlot()
	m.help = slot

	m.broadcastStatusLocked()
	m.emitLogLocked(protocol.LevelWarning, protocol.EventTypeUserHelpNeeded,
		"Agent needs help: "+string(report.Reason),
		map[string]interface{}{"reason": string(report.Reason)})
	m.publishLocked(bus.SubjectAgentHelp, report.Payload())

	go m.awaitGuidance(slot)
}

// awaitGuidance suspends until the help slot resolves or times out,
// then resumes the agent with whatever guidance arrived.
func (m *Manager) awaitGuidance(slot *helpSlot) {
	guidance, ok := slot.wait(context.Background(), m.cfg.HelpTimeout())

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAwaitingHelp || m.help != slot {
		return
	}
	m.help = nil

	if !ok {
		m.emitLogLocked(protocol.LevelWarning, protocol.EventTypeLog,
			"help wait timed out; resuming without guidance", nil)
	}
	if guidance != "" {
		m.agent.Guide(guidance)
	}
	m.agent.Resume()
	m.state = StateRunning
	m.broadcastStatusLocked()
	m.emitLogLocked(protocol.LevelInfo, protocol.EventTypeAgentResume, "Task resumed", nil)
}

// onDone is the engine terminal callback.
func (m *Manager) onDone(result engine.TerminalResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.active() {
		return
	}
	m.finalizeLocked(result)
}

// abandon fires when a stopped agent never reports terminal.
func (m *Manager) abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStopping {
		return
	}
	m.emitLogLocked(protocol.LevelWarning, protocol.EventTypeAgentError,
		"Agent did not terminate after stop; abandoning", nil)
	m.finalizeLocked(engine.TerminalResult{Success: false, Error: "abandoned"})
}

// finalizeLocked transitions to TERMINAL: exactly one task_result per
// task, preceded by its terminal log event and followed by the fresh
// status snapshot. Caller holds the lock.
func (m *Manager) finalizeLocked(result engine.TerminalResult) {
	if m.abandonTimer != nil {
		m.abandonTimer.Stop()
		m.abandonTimer = nil
	}
	if m.runCancel != nil {
		m.runCancel()
		m.runCancel = nil
	}
	if m.help != nil {
		m.help.resolve("")
		m.help = nil
	}

	task := m.currentTask
	m.agent = nil
	m.currentTask = ""
	m.cdpEndpoint = ""
	m.state = StateTerminal

	if result.Success {
		m.emitLogLocked(protocol.LevelResult, protocol.EventTypeAgentComplete,
			"Task completed: "+task, nil)
	} else {
		m.emitLogLocked(protocol.LevelError, protocol.EventTypeAgentError,
			"Task failed: "+result.Error, nil)
	}
	m.publishLocked(bus.SubjectTaskResult, protocol.TaskResult{
		Task:    task,
		Success: result.Success,
		Error:   result.Error,
		History: result.History,
	})
	m.broadcastStatusLocked()

	m.logger.Info("Task finished",
		zap.String("task", task),
		zap.Bool("success", result.Success))
}

// broadcastStatusLocked publishes the current projection. Caller holds
// the lock; the in-memory bus delivers synchronously so broadcasts keep
// commit order.
func (m *Manager) broadcastStatusLocked() {
	m.publishLocked(bus.SubjectTaskStatus, m.projection())
}

func (m *Manager) publishLocked(subject string, payload interface{}) {
	if err := m.bus.Publish(context.Background(), subject, bus.NewEvent(subject, loggerName, payload)); err != nil {
		m.logger.Error("Failed to publish", zap.String("subject", subject), zap.Error(err))
	}
}

func (m *Manager) emitLogLocked(level protocol.Level, eventType protocol.EventType, message string, metadata map[string]interface{}) {
	m.capture.Emit(context.Background(), logstream.Record{
		Level:      level,
		EventType:  eventType,
		LoggerName: loggerName,
		Message:    message,
		Metadata:   metadata,
	})
}
