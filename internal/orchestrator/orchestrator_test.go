package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/careerpilot/careerpilot/internal/agent"
	"github.com/careerpilot/careerpilot/internal/provider"
	"go.uber.org/zap"
)

// fakeProvider is a scripted completion backend. The respond func sees
// every request; planning and routing calls are distinguished from task
// executions by their prompt text.
type fakeProvider struct {
	mu      sync.Mutex
	calls   []provider.ChatRequest
	respond func(req *provider.ChatRequest) (*provider.ChatResponse, error)
}

func (f *fakeProvider) ID() string                          { return "fake" }
func (f *fakeProvider) Name() string                        { return "Fake" }
func (f *fakeProvider) HealthCheck(_ context.Context) error { return nil }

func (f *fakeProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *req)
	f.mu.Unlock()
	return f.respond(req)
}

// taskPrompts returns the user prompts of non-planner calls, in call order.
func (f *fakeProvider) taskPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		last := c.Messages[len(c.Messages)-1].Content
		if isPlannerPrompt(last) {
			continue
		}
		out = append(out, last)
	}
	return out
}

func isPlannerPrompt(s string) bool {
	return strings.Contains(s, "workflow planner") || strings.Contains(s, "Decide whether")
}

func newTestOrchestrator(t *testing.T, fp *fakeProvider) *Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	router := provider.NewRouter(logger)
	router.Register(fp)
	registry := agent.NewToolRegistry()
	factory := agent.NewFactory(router, registry, "test-model", logger)
	return New(factory, router, "test-model", nil, logger)
}

// planThenEcho answers planning calls with the given plan JSON and task
// executions with "done: <prompt first line>".
func planThenEcho(plan string) func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if isPlannerPrompt(last) {
			return &provider.ChatResponse{Content: plan, FinishReason: "stop"}, nil
		}
		line := last
		if idx := strings.Index(line, "\n"); idx >= 0 {
			line = line[:idx]
		}
		return &provider.ChatResponse{Content: "done: " + line, FinishReason: "stop"}, nil
	}
}

func planJSON(steps ...string) string {
	return fmt.Sprintf(`{"approach":"test","agentWorkflow":[%s],"expectedOutcome":"done"}`,
		strings.Join(steps, ","))
}

func step(id, role, task string, deps ...string) string {
	depJSON := "[]"
	if len(deps) > 0 {
		depJSON = `["` + strings.Join(deps, `","`) + `"]`
	}
	return fmt.Sprintf(`{"id":%q,"agentType":%q,"task":%q,"reasoning":"because","dependencies":%s}`,
		id, role, task, depJSON)
}

func TestAchieveGoalExecutesInDependencyOrder(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("s2", "writing", "write summary", "s1"),
		step("s1", "research", "research company"),
	))}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "prep application", nil)
	if err != nil {
		t.Fatalf("AchieveGoal: %v", err)
	}

	if result.TotalTasks != 2 || result.TasksCompleted != 2 {
		t.Errorf("expected 2/2 tasks, got %d/%d", result.TasksCompleted, result.TotalTasks)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	// s2 is first in plan order but depends on s1, so s1 must run first.
	if result.Results[0].TaskID != "s1" || result.Results[1].TaskID != "s2" {
		t.Errorf("expected completion order [s1 s2], got [%s %s]",
			result.Results[0].TaskID, result.Results[1].TaskID)
	}
	if got := orch.GetState().Status; got != StatusCompleted {
		t.Errorf("expected status completed, got %s", got)
	}

	prompts := fp.taskPrompts()
	if len(prompts) != 2 || !strings.Contains(prompts[0], "research company") {
		t.Errorf("expected research task to execute first, prompts: %v", prompts)
	}
	// Downstream task sees its dependency's result.
	if !strings.Contains(prompts[1], "dependency_results") {
		t.Errorf("expected dependency results in second task context, got: %s", prompts[1])
	}
}

func TestScenarioAPlanOrderTieBreak(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("s1", "research", "find jobs"),
		step("s2", "writing", "draft letter", "s1"),
	))}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "apply", nil)
	if err != nil {
		t.Fatalf("AchieveGoal: %v", err)
	}
	if len(result.Results) != 2 ||
		result.Results[0].TaskID != "s1" || result.Results[1].TaskID != "s2" {
		t.Fatalf("expected results [s1 s2], got %+v", result.Results)
	}
	if result.Results[0].AgentRole != "research" || result.Results[1].AgentRole != "writing" {
		t.Errorf("unexpected agent roles: %+v", result.Results)
	}
}

func TestDanglingDependencyStripped(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("s1", "research", "look things up", "nonexistent"),
	))}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "goal", nil)
	if err != nil {
		t.Fatalf("dangling dependency must not fail execution: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].TaskID != "s1" {
		t.Fatalf("expected s1 to complete, got %+v", result.Results)
	}
	if deps := orch.GetState().Tasks[0].Dependencies; len(deps) != 0 {
		t.Errorf("expected dependencies stripped, got %v", deps)
	}
}

func TestSelfDependencyStripped(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("s1", "research", "recursive job", "s1"),
	))}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "goal", nil)
	if err != nil {
		t.Fatalf("self dependency must not fail execution: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(result.Results))
	}
}

func TestTwoCycleDeadlockRecovery(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("s1", "research", "first", "s2"),
		step("s2", "writing", "second", "s1"),
	))}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "goal", nil)
	if err != nil {
		t.Fatalf("2-cycle must recover, got error: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected both tasks to complete, got %d", len(result.Results))
	}
	// Recovery strips s1's dependency, so s1 runs first.
	if result.Results[0].TaskID != "s1" || result.Results[1].TaskID != "s2" {
		t.Errorf("expected [s1 s2], got [%s %s]",
			result.Results[0].TaskID, result.Results[1].TaskID)
	}
	for _, task := range orch.GetState().Tasks {
		if task.Status != TaskCompleted {
			t.Errorf("task %s ended in %s, want completed", task.ID, task.Status)
		}
	}
}

func TestFullCycleTerminates(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("a", "research", "one", "c"),
		step("b", "writing", "two", "a"),
		step("c", "career_coach", "three", "b"),
	))}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "goal", nil)
	if err != nil {
		t.Fatalf("cycle spanning all tasks must terminate: %v", err)
	}
	if len(result.Results) != 3 {
		t.Fatalf("expected all 3 tasks to resolve, got %d", len(result.Results))
	}
	for _, task := range orch.GetState().Tasks {
		if task.Status != TaskCompleted && task.Status != TaskFailed {
			t.Errorf("task %s left in %s", task.ID, task.Status)
		}
	}
}

func TestTaskFailureAbortsRun(t *testing.T) {
	boom := errors.New("model exploded")
	fp := &fakeProvider{}
	fp.respond = func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if isPlannerPrompt(last) {
			return &provider.ChatResponse{Content: planJSON(
				step("s1", "research", "fine"),
				step("s2", "writing", "explode", "s1"),
				step("s3", "career_coach", "never runs", "s2"),
			), FinishReason: "stop"}, nil
		}
		if strings.Contains(last, "explode") {
			return nil, boom
		}
		return &provider.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
	}
	orch := newTestOrchestrator(t, fp)

	_, err := orch.AchieveGoal(context.Background(), "goal", nil)
	if err == nil {
		t.Fatal("expected error from failing task")
	}
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *TaskError, got %T: %v", err, err)
	}
	if taskErr.TaskID != "s2" || !errors.Is(err, boom) {
		t.Errorf("expected s2 failure wrapping cause, got %+v", taskErr)
	}

	state := orch.GetState()
	if state.Status != StatusFailed {
		t.Errorf("expected status failed, got %s", state.Status)
	}
	statuses := map[string]TaskStatus{}
	for _, task := range state.Tasks {
		statuses[task.ID] = task.Status
	}
	if statuses["s1"] != TaskCompleted {
		t.Errorf("s1 should be completed, got %s", statuses["s1"])
	}
	if statuses["s2"] != TaskFailed {
		t.Errorf("s2 should be failed, got %s", statuses["s2"])
	}
	if statuses["s3"] == TaskCompleted {
		t.Errorf("s3 must not complete after abort, got %s", statuses["s3"])
	}
}

func TestPlanningFailureNonJSON(t *testing.T) {
	fp := &fakeProvider{respond: func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Content: "sorry, I cannot help with that", FinishReason: "stop"}, nil
	}}
	orch := newTestOrchestrator(t, fp)

	_, err := orch.AchieveGoal(context.Background(), "goal", nil)
	var planErr *PlanningError
	if !errors.As(err, &planErr) {
		t.Fatalf("expected *PlanningError, got %T: %v", err, err)
	}
	// Planning failure does not advance past the planning state.
	if got := orch.GetState().Status; got != StatusPlanning {
		t.Errorf("expected status planning after plan failure, got %s", got)
	}
}

func TestPlanningFailureEmptyPlan(t *testing.T) {
	fp := &fakeProvider{respond: func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Content: `{"approach":"none","agentWorkflow":[]}`, FinishReason: "stop"}, nil
	}}
	orch := newTestOrchestrator(t, fp)

	var planErr *PlanningError
	if _, err := orch.AchieveGoal(context.Background(), "goal", nil); !errors.As(err, &planErr) {
		t.Fatalf("expected *PlanningError for empty plan, got %v", err)
	}
}

func TestPlanWithMarkdownFences(t *testing.T) {
	fenced := "```json\n" + planJSON(step("s1", "research", "task")) + "\n```"
	fp := &fakeProvider{respond: planThenEcho(fenced)}
	orch := newTestOrchestrator(t, fp)

	result, err := orch.AchieveGoal(context.Background(), "goal", nil)
	if err != nil {
		t.Fatalf("fenced plan should parse: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(result.Results))
	}
}

func TestResetIdempotent(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(step("s1", "research", "task")))}
	orch := newTestOrchestrator(t, fp)

	if _, err := orch.AchieveGoal(context.Background(), "goal", nil); err != nil {
		t.Fatalf("AchieveGoal: %v", err)
	}

	orch.Reset()
	orch.Reset()

	state := orch.GetState()
	if state.Status != StatusIdle {
		t.Errorf("expected idle, got %s", state.Status)
	}
	if len(state.Tasks) != 0 || len(state.Assignments) != 0 || len(state.Results) != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestBusyGuardRejectsConcurrentCalls(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	fp := &fakeProvider{}
	fp.respond = func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		once.Do(func() { close(started) })
		<-block
		return &provider.ChatResponse{Content: planJSON(step("s1", "research", "task")), FinishReason: "stop"}, nil
	}
	orch := newTestOrchestrator(t, fp)

	done := make(chan error, 1)
	go func() {
		_, err := orch.AchieveGoal(context.Background(), "goal", nil)
		done <- err
	}()
	<-started

	if _, err := orch.AchieveGoal(context.Background(), "second goal", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for concurrent call, got %v", err)
	}
	if _, err := orch.Chat(context.Background(), "hello", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for concurrent chat, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first call should complete: %v", err)
	}

	// After the first run finishes, the instance accepts calls again.
	if _, err := orch.AchieveGoal(context.Background(), "third goal", nil); err != nil {
		t.Errorf("expected instance free after run, got %v", err)
	}
}

func TestCancellationBetweenTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fp := &fakeProvider{}
	fp.respond = func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if isPlannerPrompt(last) {
			return &provider.ChatResponse{Content: planJSON(
				step("s1", "research", "first"),
				step("s2", "writing", "second", "s1"),
			), FinishReason: "stop"}, nil
		}
		cancel() // cancel after the first task's call goes out
		return &provider.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
	}
	orch := newTestOrchestrator(t, fp)

	_, err := orch.AchieveGoal(ctx, "goal", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	state := orch.GetState()
	if state.Status != StatusFailed {
		t.Errorf("expected status failed after cancellation, got %s", state.Status)
	}
	for _, task := range state.Tasks {
		if task.ID == "s2" && task.Status != TaskPending {
			t.Errorf("s2 should not have started, got %s", task.Status)
		}
	}
}

func TestChatRoutesToSuggestedAgent(t *testing.T) {
	fp := &fakeProvider{}
	fp.respond = func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if isPlannerPrompt(last) {
			return &provider.ChatResponse{
				Content:      `{"requiresAgents":true,"reasoning":"career question","suggestedAgent":"career_coach","directResponse":""}`,
				FinishReason: "stop",
			}, nil
		}
		return &provider.ChatResponse{Content: "coach says hi", FinishReason: "stop"}, nil
	}
	orch := newTestOrchestrator(t, fp)

	reply, err := orch.Chat(context.Background(), "should I switch careers?", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "coach says hi" {
		t.Errorf("expected routed agent reply, got %q", reply)
	}
}

func TestChatDirectResponse(t *testing.T) {
	fp := &fakeProvider{respond: func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{
			Content:      `{"requiresAgents":false,"reasoning":"simple","suggestedAgent":"","directResponse":"just say hello back"}`,
			FinishReason: "stop",
		}, nil
	}}
	orch := newTestOrchestrator(t, fp)

	reply, err := orch.Chat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "just say hello back" {
		t.Errorf("expected direct response, got %q", reply)
	}
}

func TestChatMalformedClassificationDegrades(t *testing.T) {
	fp := &fakeProvider{respond: func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Content: "plain text answer", FinishReason: "stop"}, nil
	}}
	orch := newTestOrchestrator(t, fp)

	reply, err := orch.Chat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("malformed classification must not error: %v", err)
	}
	if reply != "plain text answer" {
		t.Errorf("expected raw reply fallback, got %q", reply)
	}
}

func TestChatUnknownSuggestedAgentFallsBack(t *testing.T) {
	fp := &fakeProvider{respond: func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{
			Content:      `{"requiresAgents":true,"reasoning":"x","suggestedAgent":"astrologer","directResponse":"fallback answer"}`,
			FinishReason: "stop",
		}, nil
	}}
	orch := newTestOrchestrator(t, fp)

	reply, err := orch.Chat(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "fallback answer" {
		t.Errorf("expected direct fallback for unknown role, got %q", reply)
	}
}

func TestGoalResultCarriesRunID(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(step("s1", "research", "task")))}
	orch := newTestOrchestrator(t, fp)

	first, err := orch.AchieveGoal(context.Background(), "goal one", nil)
	if err != nil {
		t.Fatalf("AchieveGoal: %v", err)
	}
	if first.RunID == "" {
		t.Fatal("expected a run id on the result")
	}
	if first.RunID != orch.RunID() {
		t.Errorf("result run id %s does not match orchestrator %s", first.RunID, orch.RunID())
	}

	second, err := orch.AchieveGoal(context.Background(), "goal two", nil)
	if err != nil {
		t.Fatalf("AchieveGoal: %v", err)
	}
	if second.RunID == first.RunID {
		t.Error("each run must get a distinct id")
	}
	// The first result keeps its own id after later runs overwrite the
	// orchestrator's current run; persistence must key off the result.
	if first.RunID == orch.RunID() {
		t.Error("earlier result must not track current orchestrator state")
	}
}

func TestAssignmentsMirrorPlan(t *testing.T) {
	fp := &fakeProvider{respond: planThenEcho(planJSON(
		step("s1", "research", "one"),
		step("s2", "writing", "two", "s1"),
	))}
	orch := newTestOrchestrator(t, fp)

	if _, err := orch.AchieveGoal(context.Background(), "goal", nil); err != nil {
		t.Fatalf("AchieveGoal: %v", err)
	}

	assignments := orch.GetState().Assignments
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].TaskID != "s1" || assignments[0].AgentRole != "research" {
		t.Errorf("unexpected first assignment: %+v", assignments[0])
	}
	if assignments[1].Reasoning != "because" {
		t.Errorf("expected planner reasoning preserved, got %q", assignments[1].Reasoning)
	}
}
