package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/careerpilot/careerpilot/internal/provider"
	"go.uber.org/zap"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	logger := zap.NewNop()
	router := provider.NewRouter(logger)
	fp := &fakeProvider{respond: func(_ int, req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Content: "ok", FinishReason: "stop"}, nil
	}}
	router.Register(fp)
	return NewFactory(router, NewToolRegistry(), "test-model", logger)
}

func TestFactoryCachesSingletonPerRole(t *testing.T) {
	f := newTestFactory(t)

	a1, err := f.GetAgent(RoleCareerCoach)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	a2, err := f.GetAgent(RoleCareerCoach)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if a1 != a2 {
		t.Error("expected the same instance for consecutive GetAgent calls")
	}

	f.ClearCache()
	a3, err := f.GetAgent(RoleCareerCoach)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if a3 == a1 {
		t.Error("expected a fresh instance after ClearCache")
	}
}

func TestFactoryUnknownRole(t *testing.T) {
	f := newTestFactory(t)
	if _, err := f.GetAgent("ghostwriter"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestFactoryMemoryCumulativeAcrossRuns(t *testing.T) {
	f := newTestFactory(t)

	a, _ := f.GetAgent(RoleWriting)
	if _, err := a.ExecuteTask(context.Background(), "draft one", nil); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}

	// Same cached instance still holds its thoughts.
	again, _ := f.GetAgent(RoleWriting)
	if len(again.State().Thoughts) == 0 {
		t.Error("expected cumulative memory on cached agent")
	}
}

func TestResetAgentKeepsIdentity(t *testing.T) {
	f := newTestFactory(t)

	a, _ := f.GetAgent(RoleResearch)
	if _, err := a.ExecuteTask(context.Background(), "look it up", nil); err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}

	f.ResetAgent(RoleResearch)

	same, _ := f.GetAgent(RoleResearch)
	if same != a {
		t.Error("ResetAgent must not evict the instance")
	}
	if len(same.State().Thoughts) != 0 {
		t.Error("ResetAgent must clear the thought log")
	}

	// Resetting an unconstructed role is a no-op.
	f.ResetAgent(RoleInterviewPrep)
}

func TestRoleCatalogCoversAllRoles(t *testing.T) {
	catalog := Catalog()
	for _, role := range Roles() {
		if !strings.Contains(catalog, role) {
			t.Errorf("catalog missing role %s", role)
		}
		if _, ok := Profile(role); !ok {
			t.Errorf("no profile for role %s", role)
		}
	}
	if len(Roles()) != 6 {
		t.Errorf("expected 6 roles, got %d", len(Roles()))
	}
}
