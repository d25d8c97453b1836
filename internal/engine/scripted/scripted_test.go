package scripted

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
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

type recorder struct {
	mu      sync.Mutex
	steps   []engine.StepResult
	results []engine.TerminalResult
}

func (r *recorder) onStep(step engine.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) onDone(result engine.TerminalResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recorder) snapshot() ([]engine.StepResult, []engine.TerminalResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.StepResult(nil), r.steps...),
		append([]engine.TerminalResult(nil), r.results...)
}

func createAgent(t *testing.T, script []Step, rec *recorder) engine.Agent {
	t.Helper()
	factory := NewFactory(script, newTestLogger(t))
	agent, err := factory.Create(context.Background(), engine.TaskSpec{
		Task:   "test task",
		OnStep: rec.onStep,
		OnDone: rec.onDone,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return agent
}

func TestAgent_RunsScriptToCompletion(t *testing.T) {
	rec := &recorder{}
	agent := createAgent(t, []Step{
		{ActionName: "navigate", Success: true},
		{ActionName: "click", Success: true},
		{ActionName: "extract", Success: true},
	}, rec)

	if err := agent.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	steps, results := rec.snapshot()
	if len(steps) != 3 {
		t.Fatalf("Expected 3 step callbacks, got %d", len(steps))
	}
	for i, step := range steps {
		if step.StepNumber != i+1 {
			t.Errorf("Step %d: expected number %d, got %d", i, i+1, step.StepNumber)
		}
	}
	if len(results) != 1 {
		t.Fatalf("Expected exactly one done callback, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("Expected success, got %+v", results[0])
	}
	if len(results[0].History) != 3 {
		t.Errorf("Expected 3 history entries, got %d", len(results[0].History))
	}
}

func TestAgent_FailedStepFailsTheRun(t *testing.T) {
	rec := &recorder{}
	agent := createAgent(t, []Step{
		{ActionName: "navigate", Success: true},
		{ActionName: "click", Success: false, Error: "element not found"},
	}, rec)

	if err := agent.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, results := rec.snapshot()
	if len(results) != 1 || results[0].Success {
		t.Fatalf("Expected failed terminal result, got %+v", results)
	}
	if results[0].Error != "element not found" {
		t.Errorf("Expected step error to propagate, got %q", results[0].Error)
	}
}

func TestAgent_MaxStepsTruncates(t *testing.T) {
	rec := &recorder{}
	agent := createAgent(t, DefaultScript(), rec)

	if err := agent.Run(context.Background(), 2); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	steps, _ := rec.snapshot()
	if len(steps) != 2 {
		t.Errorf("Expected 2 steps with maxSteps=2, got %d", len(steps))
	}
}

func TestAgent_StopEndsRunAtBoundary(t *testing.T) {
	rec := &recorder{}
	script := make([]Step, 100)
	for i := range script {
		script[i] = Step{ActionName: "navigate", Success: true, Delay: 10 * time.Millisecond}
	}
	agent := createAgent(t, script, rec)

	done := make(chan struct{})
	go func() {
		_ = agent.Run(context.Background(), 0)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	agent.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not terminate after Stop")
	}

	steps, results := rec.snapshot()
	if len(results) != 1 {
		t.Fatalf("Expected exactly one done callback, got %d", len(results))
	}
	if results[0].Success || results[0].Error != "stopped" {
		t.Errorf("Expected stopped result, got %+v", results[0])
	}
	if len(steps) >= len(script) {
		t.Error("Expected the run to end before the script finished")
	}
}

func TestAgent_PauseHoldsAndResumeReleases(t *testing.T) {
	rec := &recorder{}
	script := make([]Step, 20)
	for i := range script {
		script[i] = Step{ActionName: "navigate", Success: true, Delay: 10 * time.Millisecond}
	}
	agent := createAgent(t, script, rec)

	agent.Pause()

	done := make(chan struct{})
	go func() {
		_ = agent.Run(context.Background(), 0)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	steps, _ := rec.snapshot()
	if len(steps) != 0 {
		t.Fatalf("Expected no steps while paused, got %d", len(steps))
	}

	agent.Resume()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish after Resume")
	}

	steps, results := rec.snapshot()
	if len(steps) != len(script) {
		t.Errorf("Expected all %d steps after resume, got %d", len(script), len(steps))
	}
	if len(results) != 1 || !results[0].Success {
		t.Errorf("Expected successful terminal result, got %+v", results)
	}
}

func TestAgent_GuidanceAccumulates(t *testing.T) {
	rec := &recorder{}
	a := createAgent(t, DefaultScript(), rec)

	a.Guide("try the search box")
	a.Guide("scroll down first")

	guided, ok := a.(*agent)
	if !ok {
		t.Fatal("Expected scripted agent")
	}
	guidance := guided.Guidance()
	if len(guidance) != 2 || guidance[0] != "try the search box" {
		t.Errorf("Unexpected guidance: %v", guidance)
	}
}
