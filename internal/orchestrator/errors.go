package orchestrator

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when AchieveGoal or Chat is called while another
// call is in flight on the same orchestrator instance.
var ErrBusy = errors.New("orchestrator busy: another goal or chat call is in flight")

// ErrUnresolvableWorkflow is returned when dependency-drop recovery has
// been forced more times than the plan has tasks without reaching progress.
var ErrUnresolvableWorkflow = errors.New("workflow unresolvable: deadlock recovery limit exceeded")

// PlanningError wraps any failure to obtain or parse a workflow plan.
type PlanningError struct {
	Detail string
	Cause  error
}

func (e *PlanningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Detail, e.Cause)
	}
	return "planning failed: " + e.Detail
}

func (e *PlanningError) Unwrap() error { return e.Cause }

// TaskError wraps a single task's execution failure. One failing task
// aborts the whole run.
type TaskError struct {
	TaskID    string
	AgentRole string
	Cause     error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.AgentRole, e.Cause)
}

func (e *TaskError) Unwrap() error { return e.Cause }
