package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/events/bus"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/logstream"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/stuck"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

// fakeAgent is a controllable engine double. Tests drive the step and
// done callbacks through the captured task spec.
type fakeAgent struct {
	mu       sync.Mutex
	pauses   int
	resumes  int
	stops    int
	guidance []string

	release chan struct{}
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{release: make(chan struct{})}
}

func (a *fakeAgent) Run(ctx context.Context, maxSteps int) error {
	select {
	case <-a.release:
	case <-ctx.Done():
	}
	return nil
}

func (a *fakeAgent) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pauses++
}

func (a *fakeAgent) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resumes++
}

func (a *fakeAgent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	select {
	case <-a.release:
	default:
		close(a.release)
	}
}

func (a *fakeAgent) Guide(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.guidance = append(a.guidance, text)
}

func (a *fakeAgent) counts() (pauses, resumes, stops int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pauses, a.resumes, a.stops
}

func (a *fakeAgent) guidanceTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.guidance...)
}

// fakeFactory hands out one fakeAgent and records the TaskSpec it was
// built with.
type fakeFactory struct {
	mu    sync.Mutex
	agent *fakeAgent
	spec  engine.TaskSpec
	err   error
	built bool
}

func (f *fakeFactory) Create(ctx context.Context, spec engine.TaskSpec) (engine.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.spec = spec
	f.built = true
	return f.agent, nil
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFactory) capturedSpec() (engine.TaskSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spec, f.built
}

// busRecorder captures every published event in commit order.
type busRecorder struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (r *busRecorder) record(ctx context.Context, e *bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *busRecorder) all() []*bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*bus.Event(nil), r.events...)
}

func (r *busRecorder) bySubject(subject string) []*bus.Event {
	var out []*bus.Event
	for _, e := range r.all() {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	manager  *Manager
	factory  *fakeFactory
	agent    *fakeAgent
	recorder *busRecorder
}

func newFixture(t *testing.T, cfg config.TaskConfig, opts ...stuck.Option) *fixture {
	t.Helper()
	log := newTestLogger(t)
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	recorder := &busRecorder{}
	if _, err := eventBus.Subscribe(">", recorder.record); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	capture := logstream.NewCapture(logstream.NewRing(protocol.MaxLogs), eventBus, log)
	agent := newFakeAgent()
	factory := &fakeFactory{agent: agent}

	manager := NewManager(
		factory,
		eventBus,
		capture,
		stuck.New(opts...),
		cfg,
		config.EngineConfig{MaxSteps: 50},
		log,
	)
	return &fixture{manager: manager, factory: factory, agent: agent, recorder: recorder}
}

func defaultTaskConfig() config.TaskConfig {
	return config.TaskConfig{HelpTimeoutSecs: 300, AbandonTimeoutSecs: 120}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func (f *fixture) startRunning(t *testing.T, task string) engine.TaskSpec {
	t.Helper()
	if err := f.manager.Start(protocol.StartTaskRequest{Task: task, CDPEndpoint: "ws://localhost:9222"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "running state", func() bool {
		status := f.manager.Status()
		return status.IsRunning && status.HasAgent
	})
	spec, ok := f.factory.capturedSpec()
	if !ok {
		t.Fatal("Factory was never invoked")
	}
	return spec
}

func TestManager_StartRejections(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())

	if err := f.manager.Start(protocol.StartTaskRequest{Task: "   "}); err == nil {
		t.Error("Expected empty task to be rejected")
	}
	if err := f.manager.Start(protocol.StartTaskRequest{Task: "check the news", IsExtension: true}); err == nil {
		t.Error("Expected extension task without cdp_endpoint to be rejected")
	}
	if len(f.recorder.all()) != 0 {
		t.Error("Expected no events for rejected starts")
	}
}

func TestManager_StartRejectsConcurrentTask(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())
	f.startRunning(t, "check the news")

	err := f.manager.Start(protocol.StartTaskRequest{Task: "another task"})
	if err == nil {
		t.Fatal("Expected second start to be rejected")
	}
	if !strings.Contains(err.Error(), "already in progress") {
		t.Errorf("Unexpected rejection reason: %v", err)
	}
}

func TestManager_Lifecycle(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())
	spec := f.startRunning(t, "check the news")

	spec.OnStep(engine.StepResult{StepNumber: 1, ActionName: "navigate", Success: true, Duration: time.Second})
	spec.OnDone(engine.TerminalResult{Success: true, History: []string{"navigate"}})

	waitFor(t, "terminal state", func() bool { return !f.manager.Status().IsRunning })

	status := f.manager.Status()
	if status.HasAgent || status.CurrentTask != nil {
		t.Errorf("Expected cleared status after terminal, got %+v", status)
	}

	results := f.recorder.bySubject(bus.SubjectTaskResult)
	if len(results) != 1 {
		t.Fatalf("Expected exactly one task result, got %d", len(results))
	}
	result, ok := results[0].Payload.(protocol.TaskResult)
	if !ok {
		t.Fatalf("Unexpected result payload type %T", results[0].Payload)
	}
	if !result.Success || result.Task != "check the news" || len(result.History) != 1 {
		t.Errorf("Unexpected task result: %+v", result)
	}

	// task_started precedes every engine log event.
	var startedIdx, firstAgentLogIdx = -1, -1
	for i, e := range f.recorder.all() {
		switch {
		case e.Subject == bus.SubjectTaskStarted && startedIdx == -1:
			startedIdx = i
		case e.Subject == bus.SubjectLogEvent && firstAgentLogIdx == -1:
			firstAgentLogIdx = i
		}
	}
	if startedIdx == -1 || firstAgentLogIdx == -1 || startedIdx > firstAgentLogIdx {
		t.Errorf("Expected task_started (at %d) before the first log event (at %d)", startedIdx, firstAgentLogIdx)
	}
}

func TestManager_FactoryFailureGoesTerminal(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())
	f.factory.setErr(errors.New("engine offline"))

	if err := f.manager.Start(protocol.StartTaskRequest{Task: "check the news"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "terminal state", func() bool {
		return len(f.recorder.bySubject(bus.SubjectTaskResult)) == 1
	})

	result := f.recorder.bySubject(bus.SubjectTaskResult)[0].Payload.(protocol.TaskResult)
	if result.Success || !strings.Contains(result.Error, "engine offline") {
		t.Errorf("Expected failed result carrying the factory error, got %+v", result)
	}

	// Terminal is startable again.
	f.factory.setErr(nil)
	if err := f.manager.Start(protocol.StartTaskRequest{Task: "second try"}); err != nil {
		t.Errorf("Expected start after terminal to be accepted: %v", err)
	}
}

func TestManager_PauseResume(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())

	if result := f.manager.Pause(); result.Success || result.Error != "not running" {
		t.Errorf("Expected pause on idle to fail with 'not running', got %+v", result)
	}

	f.startRunning(t, "check the news")

	if result := f.manager.Resume(); result.Success || result.Error != "not paused" {
		t.Errorf("Expected resume while running to fail with 'not paused', got %+v", result)
	}

	if result := f.manager.Pause(); !result.Success {
		t.Fatalf("Pause failed: %+v", result)
	}
	status := f.manager.Status()
	if !status.IsPaused || !status.IsRunning {
		t.Errorf("Expected paused status, got %+v", status)
	}

	if result := f.manager.Pause(); result.Success {
		t.Error("Expected second pause to fail")
	}

	if result := f.manager.Resume(); !result.Success {
		t.Fatalf("Resume failed: %+v", result)
	}
	if f.manager.Status().IsPaused {
		t.Error("Expected running status after resume")
	}

	pauses, resumes, _ := f.agent.counts()
	if pauses != 1 || resumes != 1 {
		t.Errorf("Expected one pause and one resume on the agent, got %d/%d", pauses, resumes)
	}
}

func TestManager_StopFlow(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())

	if result := f.manager.Stop(); result.Success || result.Error != "no task running" {
		t.Errorf("Expected stop on idle to fail, got %+v", result)
	}

	spec := f.startRunning(t, "check the news")

	result := f.manager.Stop()
	if !result.Success {
		t.Fatalf("Stop failed: %+v", result)
	}
	if _, _, stops := f.agent.counts(); stops != 1 {
		t.Errorf("Expected one stop on the agent, got %d", stops)
	}

	// Stop while stopping is a no-op acknowledgement.
	if result := f.manager.Stop(); !result.Success {
		t.Errorf("Expected repeated stop to acknowledge, got %+v", result)
	}

	// The engine reports terminal at its boundary.
	spec.OnDone(engine.TerminalResult{Success: false, Error: "stopped"})
	waitFor(t, "terminal state", func() bool { return !f.manager.Status().IsRunning })

	if result := f.manager.Stop(); !result.Success || result.Message != "Task already stopped." {
		t.Errorf("Expected stop after terminal to acknowledge, got %+v", result)
	}

	if got := len(f.recorder.bySubject(bus.SubjectTaskResult)); got != 1 {
		t.Errorf("Expected exactly one task result, got %d", got)
	}
}

func TestManager_StopAbandonsUnresponsiveAgent(t *testing.T) {
	f := newFixture(t, config.TaskConfig{HelpTimeoutSecs: 300, AbandonTimeoutSecs: 1})
	f.startRunning(t, "check the news")

	if result := f.manager.Stop(); !result.Success {
		t.Fatalf("Stop failed: %+v", result)
	}

	// The agent never reports terminal; the hard timeout fires.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.recorder.bySubject(bus.SubjectTaskResult)) == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	results := f.recorder.bySubject(bus.SubjectTaskResult)
	if len(results) != 1 {
		t.Fatal("Expected an abandoned task result")
	}
	result := results[0].Payload.(protocol.TaskResult)
	if result.Success || result.Error != "abandoned" {
		t.Errorf("Expected abandoned result, got %+v", result)
	}
	if f.manager.Status().IsRunning {
		t.Error("Expected terminal status after abandonment")
	}
}

func TestManager_HelpFlow(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())

	if err := f.manager.HelpResponse("hello"); err == nil {
		t.Error("Expected help response without a pending request to fail")
	}

	spec := f.startRunning(t, "check the news")

	// Three identical failures trip the repetition trigger.
	for i := 1; i <= 3; i++ {
		spec.OnStep(engine.StepResult{
			StepNumber: i,
			ActionName: "click_submit",
			Success:    false,
			Error:      "element not found",
			Duration:   time.Second,
		})
	}

	status := f.manager.Status()
	if !status.IsPaused {
		t.Fatalf("Expected awaiting-help status to project as paused, got %+v", status)
	}
	if pauses, _, _ := f.agent.counts(); pauses != 1 {
		t.Errorf("Expected the agent to be paused once, got %d", pauses)
	}

	helps := f.recorder.bySubject(bus.SubjectAgentHelp)
	if len(helps) != 1 {
		t.Fatalf("Expected one help event, got %d", len(helps))
	}
	help := helps[0].Payload.(protocol.AgentNeedsHelp)
	if help.Reason != protocol.StuckReasonRepeating {
		t.Errorf("Expected REPEATING reason, got %s", help.Reason)
	}
	if help.Summary == "" || help.Suggestion == "" {
		t.Errorf("Expected populated help payload, got %+v", help)
	}

	if err := f.manager.HelpResponse("try the other button"); err != nil {
		t.Fatalf("HelpResponse failed: %v", err)
	}

	waitFor(t, "resumed state", func() bool { return !f.manager.Status().IsPaused })

	if guidance := f.agent.guidanceTexts(); len(guidance) != 1 || guidance[0] != "try the other button" {
		t.Errorf("Expected guidance to reach the agent, got %v", guidance)
	}
	if _, resumes, _ := f.agent.counts(); resumes != 1 {
		t.Errorf("Expected one resume, got %d", resumes)
	}

	if err := f.manager.HelpResponse("again"); err == nil {
		t.Error("Expected second help response to fail")
	}
}

func TestManager_HelpTimeoutResumesWithoutGuidance(t *testing.T) {
	f := newFixture(t, config.TaskConfig{HelpTimeoutSecs: 1, AbandonTimeoutSecs: 120})
	spec := f.startRunning(t, "check the news")

	for i := 1; i <= 3; i++ {
		spec.OnStep(engine.StepResult{
			StepNumber: i,
			ActionName: "click_submit",
			Success:    false,
			Error:      "element not found",
			Duration:   time.Second,
		})
	}
	if !f.manager.Status().IsPaused {
		t.Fatal("Expected awaiting-help state")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && f.manager.Status().IsPaused {
		time.Sleep(20 * time.Millisecond)
	}

	if f.manager.Status().IsPaused {
		t.Fatal("Expected the help wait to time out and resume")
	}
	if guidance := f.agent.guidanceTexts(); len(guidance) != 0 {
		t.Errorf("Expected no guidance after timeout, got %v", guidance)
	}
	if _, resumes, _ := f.agent.counts(); resumes != 1 {
		t.Errorf("Expected one resume, got %d", resumes)
	}

	var warned bool
	for _, e := range f.recorder.bySubject(bus.SubjectLogEvent) {
		if event, ok := e.Payload.(protocol.LogEvent); ok {
			if strings.Contains(event.Message, "help wait timed out") && event.Level == protocol.LevelWarning {
				warned = true
			}
		}
	}
	if !warned {
		t.Error("Expected a warning log about the help timeout")
	}
}

func TestManager_ShoppingTasksGetInitialActions(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())
	spec := f.startRunning(t, "buy wireless headphones under $100")

	if len(spec.InitialActions) != 2 {
		t.Fatalf("Expected 2 initial actions for a shopping task, got %d", len(spec.InitialActions))
	}
	if spec.InitialActions[0].Name != engine.ActionDetectLocation {
		t.Errorf("Expected detect_location first, got %s", spec.InitialActions[0].Name)
	}
	if spec.InitialActions[1].Name != engine.ActionFindBestWebsite {
		t.Errorf("Expected find_best_website second, got %s", spec.InitialActions[1].Name)
	}
}

func TestManager_NonShoppingTasksGetNoInitialActions(t *testing.T) {
	f := newFixture(t, defaultTaskConfig())
	spec := f.startRunning(t, "summarize the front page of the news site")

	if len(spec.InitialActions) != 0 {
		t.Errorf("Expected no initial actions, got %v", spec.InitialActions)
	}
}
