package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/careerpilot/careerpilot/internal/agent"
	"github.com/careerpilot/careerpilot/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator plans a workflow of agent tasks for a goal and executes it
// in dependency order, strictly one task at a time. At most one
// AchieveGoal or Chat call may be in flight per instance; concurrent calls
// are rejected with ErrBusy.
type Orchestrator struct {
	factory *agent.Factory
	router  *provider.Router
	model   string
	events  *EventBus // optional, nil disables publishing
	logger  *zap.Logger

	busy  atomic.Bool
	mu    sync.Mutex
	state State
	runID string
}

// New creates an orchestrator. Pass a nil EventBus to disable the progress
// stream.
func New(factory *agent.Factory, router *provider.Router, model string, events *EventBus, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		factory: factory,
		router:  router,
		model:   model,
		events:  events,
		logger:  logger,
		state:   newState(),
	}
}

// AchieveGoal drives the full planning and execution cycle for one goal.
// A planning failure leaves the orchestrator in the planning state; a task
// failure aborts the run and moves it to failed.
func (o *Orchestrator) AchieveGoal(ctx context.Context, goal string, callerCtx map[string]interface{}) (*GoalResult, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	o.mu.Lock()
	o.runID = uuid.New().String()
	o.state = newState()
	o.state.Status = StatusPlanning
	runID := o.runID
	o.mu.Unlock()

	o.logger.Info("planning workflow", zap.String("run", runID), zap.String("goal", goal))

	tasks, assignments, err := o.planWorkflow(ctx, goal, callerCtx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.state.Tasks = tasks
	o.state.Assignments = assignments
	o.state.Status = StatusExecuting
	o.mu.Unlock()

	o.logger.Info("executing workflow", zap.String("run", runID), zap.Int("tasks", len(tasks)))

	results, err := o.executeWorkflow(ctx, callerCtx)
	if err != nil {
		o.setStatus(StatusFailed)
		return nil, err
	}
	o.setStatus(StatusCompleted)
	o.publish(ctx, EventWorkflowCompleted, "", "", "")

	return &GoalResult{
		RunID:          runID,
		Goal:           goal,
		Results:        results,
		AgentsUsed:     agentsUsed(results),
		TasksCompleted: len(results),
		TotalTasks:     len(tasks),
	}, nil
}

// executeWorkflow runs tasks with the earliest-ready, plan-order policy:
// each iteration picks the first pending task whose dependencies are all
// completed. When pending tasks remain but none is ready, the dependency
// graph has stalled (a cycle or unsatisfiable deps the planner produced)
// and breakDeadlock forces progress. The number of forced drops is bounded
// by the task count.
func (o *Orchestrator) executeWorkflow(ctx context.Context, callerCtx map[string]interface{}) ([]TaskOutcome, error) {
	completed := make(map[string]bool)
	forcedDrops := 0
	maxDrops := len(o.snapshotTasks())

	for {
		idx, pendingRemain := o.nextReady(completed)
		if idx < 0 {
			if !pendingRemain {
				break
			}
			forcedDrops++
			if forcedDrops > maxDrops {
				return o.snapshotResults(), ErrUnresolvableWorkflow
			}
			o.breakDeadlock(ctx)
			continue
		}

		if err := ctx.Err(); err != nil {
			return o.snapshotResults(), err
		}

		task := o.markInProgress(idx)
		o.publish(ctx, EventTaskStarted, task.ID, task.AgentRole, "")

		ag, err := o.factory.GetAgent(task.AgentRole)
		if err != nil {
			o.markFailed(idx)
			o.publish(ctx, EventTaskFailed, task.ID, task.AgentRole, err.Error())
			return o.snapshotResults(), &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Cause: err}
		}

		taskCtx := o.buildTaskContext(callerCtx, task)
		result, err := ag.ExecuteTask(ctx, task.Description, taskCtx)
		if err != nil {
			o.markFailed(idx)
			o.publish(ctx, EventTaskFailed, task.ID, task.AgentRole, err.Error())
			return o.snapshotResults(), &TaskError{TaskID: task.ID, AgentRole: task.AgentRole, Cause: err}
		}

		o.markCompleted(idx, result)
		completed[task.ID] = true
		o.publish(ctx, EventTaskCompleted, task.ID, task.AgentRole, "")
		o.logger.Info("task completed", zap.String("task", task.ID), zap.String("role", task.AgentRole))
	}

	return o.snapshotResults(), nil
}

// Chat makes a single classification call to decide whether the message
// needs a specialized agent. Malformed classification output degrades to a
// direct response instead of failing.
func (o *Orchestrator) Chat(ctx context.Context, message string, chatCtx map[string]interface{}) (string, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer o.busy.Store(false)

	resp, err := o.router.Route(ctx, plannerRole, &provider.ChatRequest{
		Model:     o.model,
		Messages:  []provider.Message{{Role: "user", Content: buildRoutingPrompt(message)}},
		MaxTokens: 1024,
		JSONMode:  true,
	})
	if err != nil {
		return "", err
	}

	var routing chatRouting
	if err := json.Unmarshal(extractJSON(resp.Content), &routing); err != nil {
		// Treat the raw reply as the answer rather than surfacing a
		// classification failure.
		o.logger.Warn("chat classification unparsable, answering directly", zap.Error(err))
		return resp.Content, nil
	}

	if routing.RequiresAgents && routing.SuggestedAgent != "" {
		ag, err := o.factory.GetAgent(routing.SuggestedAgent)
		if err != nil {
			o.logger.Warn("suggested agent unknown, answering directly",
				zap.String("agent", routing.SuggestedAgent))
		} else {
			return ag.Chat(ctx, message, chatCtx)
		}
	}

	if routing.DirectResponse != "" {
		return routing.DirectResponse, nil
	}
	return resp.Content, nil
}

// GetState returns a deep-copied snapshot for polling.
func (o *Orchestrator) GetState() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		Tasks:       make([]Task, len(o.state.Tasks)),
		Assignments: make([]AgentAssignment, len(o.state.Assignments)),
		Results:     make([]TaskOutcome, len(o.state.Results)),
		Status:      o.state.Status,
	}
	copy(s.Assignments, o.state.Assignments)
	copy(s.Results, o.state.Results)
	for i, t := range o.state.Tasks {
		deps := make([]string, len(t.Dependencies))
		copy(deps, t.Dependencies)
		t.Dependencies = deps
		s.Tasks[i] = t
	}
	return s
}

// RunID returns the identifier of the current or most recent run.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// Reset returns the orchestrator to idle with empty task, assignment, and
// result state. The factory's agent cache is untouched.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = newState()
	o.runID = ""
}

// nextReady returns the index of the first pending task whose dependencies
// are all completed, and whether any pending tasks remain at all.
func (o *Orchestrator) nextReady(completed map[string]bool) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pendingRemain := false
	for i, t := range o.state.Tasks {
		if t.Status != TaskPending {
			continue
		}
		pendingRemain = true
		ready := true
		for _, dep := range t.Dependencies {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			return i, true
		}
	}
	return -1, pendingRemain
}

// breakDeadlock force-clears the dependency list of the first pending task
// in plan order so the scheduler can make progress on a stalled graph.
// Heuristic recovery for bad planner output, not a correctness proof: the
// forced task may run before what the planner intended.
func (o *Orchestrator) breakDeadlock(ctx context.Context) {
	o.mu.Lock()
	var forced *Task
	for i := range o.state.Tasks {
		if o.state.Tasks[i].Status == TaskPending {
			o.state.Tasks[i].Dependencies = []string{}
			forced = &o.state.Tasks[i]
			break
		}
	}
	o.mu.Unlock()

	if forced != nil {
		o.logger.Warn("dependency deadlock: force-cleared dependencies",
			zap.String("task", forced.ID))
		o.publish(ctx, EventDeadlockBroken, forced.ID, forced.AgentRole, "dependencies force-cleared")
	}
}

func (o *Orchestrator) buildTaskContext(callerCtx map[string]interface{}, task Task) map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	merged := make(map[string]interface{}, len(callerCtx)+2)
	for k, v := range callerCtx {
		merged[k] = v
	}

	byID := make(map[string]string, len(o.state.Results))
	for _, r := range o.state.Results {
		byID[r.TaskID] = r.Result
	}
	depResults := make(map[string]string, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		if r, ok := byID[dep]; ok {
			depResults[dep] = r
		}
	}
	if len(depResults) > 0 {
		merged["dependency_results"] = depResults
	}
	if len(o.state.Results) > 0 {
		prior := make([]TaskOutcome, len(o.state.Results))
		copy(prior, o.state.Results)
		merged["prior_results"] = prior
	}
	return merged
}

func (o *Orchestrator) markInProgress(idx int) Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Tasks[idx].Status = TaskInProgress
	return o.state.Tasks[idx]
}

func (o *Orchestrator) markCompleted(idx int, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := &o.state.Tasks[idx]
	t.Status = TaskCompleted
	t.Result = result
	o.state.Results = append(o.state.Results, TaskOutcome{
		TaskID:    t.ID,
		AgentRole: t.AgentRole,
		Result:    result,
	})
}

func (o *Orchestrator) markFailed(idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Tasks[idx].Status = TaskFailed
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Status = s
}

func (o *Orchestrator) snapshotTasks() []Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Task, len(o.state.Tasks))
	copy(out, o.state.Tasks)
	return out
}

func (o *Orchestrator) snapshotResults() []TaskOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TaskOutcome, len(o.state.Results))
	copy(out, o.state.Results)
	return out
}

func (o *Orchestrator) publish(ctx context.Context, typ EventType, taskID, role, detail string) {
	if o.events == nil {
		return
	}
	o.mu.Lock()
	runID := o.runID
	o.mu.Unlock()
	if err := o.events.Publish(ctx, &WorkflowEvent{
		RunID:     runID,
		Type:      typ,
		TaskID:    taskID,
		AgentRole: role,
		Detail:    detail,
	}); err != nil {
		o.logger.Warn("event publish failed", zap.Error(err))
	}
}

func agentsUsed(results []TaskOutcome) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		if !seen[r.AgentRole] {
			seen[r.AgentRole] = true
			out = append(out, r.AgentRole)
		}
	}
	return out
}
