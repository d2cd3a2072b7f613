package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("careerpilot_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := New(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect store: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func sampleRun(goal string) *Run {
	return &Run{
		ID:             uuid.New().String(),
		Goal:           goal,
		Status:         "completed",
		AgentsUsed:     []string{"research", "writing"},
		TasksCompleted: 2,
		TotalTasks:     2,
		Outcomes: []Outcome{
			{TaskID: "s1", AgentRole: "research", Result: "company briefing"},
			{TaskID: "s2", AgentRole: "writing", Result: "cover letter draft"},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("apply to Acme")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Goal != run.Goal || got.Status != run.Status {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.AgentsUsed) != 2 || got.AgentsUsed[0] != "research" {
		t.Errorf("agents_used mismatch: %v", got.AgentsUsed)
	}
	if len(got.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(got.Outcomes))
	}
	// Outcomes come back in completion order.
	if got.Outcomes[0].TaskID != "s1" || got.Outcomes[1].TaskID != "s2" {
		t.Errorf("outcome order lost: %+v", got.Outcomes)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func TestGetRunMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun(context.Background(), uuid.New().String()); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRun("first goal")
	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	second := sampleRun("second goal")
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Goal != "second goal" || runs[1].Goal != "first goal" {
		t.Errorf("expected newest first, got [%s %s]", runs[0].Goal, runs[1].Goal)
	}
	if len(runs[0].Outcomes) != 0 {
		t.Error("list view should not include outcomes")
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored, got %d runs", len(limited))
	}
}

func TestListRunSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, sampleRun("land a staff role")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	raw, err := s.ListRunSummaries(ctx, 5)
	if err != nil {
		t.Fatalf("ListRunSummaries: %v", err)
	}
	var summaries []map[string]interface{}
	if err := json.Unmarshal(raw, &summaries); err != nil {
		t.Fatalf("summaries not valid JSON: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0]["goal"] != "land a staff role" {
		t.Errorf("unexpected summary: %v", summaries[0])
	}
}
