package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/careerpilot/careerpilot/internal/provider"
	"go.uber.org/zap"
)

// ErrUnknownRole is returned for roles outside the fixed catalog.
var ErrUnknownRole = errors.New("unknown agent role")

// Factory caches at most one live Agent per role. Agent memory is
// cumulative across orchestrator runs until ClearCache; callers needing
// isolated runs clear the cache between them.
type Factory struct {
	router   *provider.Router
	registry *ToolRegistry
	model    string
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]*Agent
}

// NewFactory creates a factory with an empty cache. Construct one per
// composition root (or per test) rather than sharing a package-level
// instance.
func NewFactory(router *provider.Router, registry *ToolRegistry, model string, logger *zap.Logger) *Factory {
	return &Factory{
		router:   router,
		registry: registry,
		model:    model,
		logger:   logger,
		cache:    make(map[string]*Agent),
	}
}

// GetAgent returns the cached instance for role, constructing and caching
// one on first use.
func (f *Factory) GetAgent(role string) (*Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.cache[role]; ok {
		return a, nil
	}

	profile, ok := Profile(role)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	a := New(profile, f.router, f.registry, f.model, f.logger)
	f.cache[role] = a
	f.logger.Info("created agent", zap.String("role", role), zap.String("name", profile.Name))
	return a, nil
}

// ClearCache drops every cached instance. Subsequent GetAgent calls build
// fresh agents with empty memory.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]*Agent)
}

// ResetAgent clears an individual cached agent's memory without evicting
// it from the cache. No-op for roles not yet constructed.
func (f *Factory) ResetAgent(role string) {
	f.mu.Lock()
	a, ok := f.cache[role]
	f.mu.Unlock()
	if ok {
		a.Reset()
	}
}

// Active returns the currently cached agents in catalog order.
func (f *Factory) Active() []*Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Agent
	for _, role := range Roles() {
		if a, ok := f.cache[role]; ok {
			out = append(out, a)
		}
	}
	return out
}
