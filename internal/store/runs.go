package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Run is one persisted workflow run. The orchestrator core never reads
// this history; the API layer writes it after a run finishes and agents
// may surface it through the run-history tool.
type Run struct {
	ID             string    `json:"id"`
	Goal           string    `json:"goal"`
	Status         string    `json:"status"`
	AgentsUsed     []string  `json:"agents_used"`
	TasksCompleted int       `json:"tasks_completed"`
	TotalTasks     int       `json:"total_tasks"`
	CreatedAt      time.Time `json:"created_at"`
	Outcomes       []Outcome `json:"outcomes,omitempty"`
}

// Outcome is one task's persisted result, ordered by completion.
type Outcome struct {
	TaskID    string `json:"task_id"`
	AgentRole string `json:"agent_role"`
	Result    string `json:"result"`
}

// SaveRun persists a run and its ordered outcomes in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_runs (id, goal, status, agents_used, tasks_completed, total_tasks)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Goal, run.Status, run.AgentsUsed, run.TasksCompleted, run.TotalTasks,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, o := range run.Outcomes {
		_, err = tx.Exec(ctx, `
			INSERT INTO task_outcomes (run_id, position, task_id, agent_role, result)
			VALUES ($1, $2, $3, $4, $5)`,
			run.ID, i, o.TaskID, o.AgentRole, o.Result,
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.TaskID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetRun returns a run with its outcomes.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.QueryRow(ctx, `
		SELECT id, goal, status, agents_used, tasks_completed, total_tasks, created_at
		FROM workflow_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Goal, &run.Status, &run.AgentsUsed,
		&run.TasksCompleted, &run.TotalTasks, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT task_id, agent_role, result
		FROM task_outcomes WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get outcomes for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.TaskID, &o.AgentRole, &o.Result); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	return &run, rows.Err()
}

// ListRuns returns recent runs without outcomes, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, goal, status, agents_used, tasks_completed, total_tasks, created_at
		FROM workflow_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Goal, &run.Status, &run.AgentsUsed,
			&run.TasksCompleted, &run.TotalTasks, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRunSummaries returns recent runs as JSON for the agent tool surface.
func (s *Store) ListRunSummaries(ctx context.Context, limit int) ([]byte, error) {
	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	type summary struct {
		Goal           string `json:"goal"`
		Status         string `json:"status"`
		TasksCompleted int    `json:"tasks_completed"`
		TotalTasks     int    `json:"total_tasks"`
		CreatedAt      string `json:"created_at"`
	}
	out := make([]summary, len(runs))
	for i, r := range runs {
		out[i] = summary{
			Goal:           r.Goal,
			Status:         r.Status,
			TasksCompleted: r.TasksCompleted,
			TotalTasks:     r.TotalTasks,
			CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		}
	}
	return json.Marshal(out)
}
