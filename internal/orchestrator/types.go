package orchestrator

// TaskStatus tracks execution state. Transitions only move forward:
// pending -> in_progress -> completed | failed.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Status is the orchestrator's run state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one unit of planned work, assigned to exactly one agent role.
// Dependencies reference other task IDs in the same workflow; dangling and
// self references are stripped at plan ingestion.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	AgentRole    string     `json:"agent_role"`
	Result       string     `json:"result,omitempty"`
	Dependencies []string   `json:"dependencies"`
}

// AgentAssignment records why the planner routed a task to a role. Audit
// metadata only; never consulted during execution.
type AgentAssignment struct {
	AgentRole string `json:"agent_role"`
	TaskID    string `json:"task_id"`
	Reasoning string `json:"reasoning"`
}

// TaskOutcome is one completed task's result. The results list is ordered
// by completion, not by plan position.
type TaskOutcome struct {
	TaskID    string `json:"task_id"`
	AgentRole string `json:"agent_role"`
	Result    string `json:"result"`
}

// State is the orchestrator's observable state, polled by the UI.
type State struct {
	Tasks       []Task            `json:"tasks"`
	Assignments []AgentAssignment `json:"agent_assignments"`
	Results     []TaskOutcome     `json:"results"`
	Status      Status            `json:"status"`
}

// GoalResult is the aggregate returned to the caller of AchieveGoal.
// RunID identifies the run the result belongs to; callers persisting the
// result must key off it rather than re-reading orchestrator state, which
// a later run may have overwritten.
type GoalResult struct {
	RunID          string        `json:"run_id"`
	Goal           string        `json:"goal"`
	Results        []TaskOutcome `json:"results"`
	AgentsUsed     []string      `json:"agents_used"`
	TasksCompleted int           `json:"tasks_completed"`
	TotalTasks     int           `json:"total_tasks"`
}

func newState() State {
	return State{
		Tasks:       []Task{},
		Assignments: []AgentAssignment{},
		Results:     []TaskOutcome{},
		Status:      StatusIdle,
	}
}
