package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/careerpilot/careerpilot/internal/provider"
	"go.uber.org/zap"
)

// maxToolRounds bounds the tool-call loop for a single task.
const maxToolRounds = 5

// Agent is a role-scoped wrapper around the completion backend, bound to a
// fixed subset of registry tools. It owns a private append-only thought log.
type Agent struct {
	Role         string
	Name         string
	Instruction  string
	Capabilities []string
	ToolNames    []string

	router   *provider.Router
	registry *ToolRegistry
	model    string
	logger   *zap.Logger

	mu       sync.Mutex
	thoughts []Thought
	tasksRun int
}

// AgentState is a read-only snapshot for observability.
type AgentState struct {
	Role         string    `json:"role"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities"`
	TasksRun     int       `json:"tasks_run"`
	Thoughts     []Thought `json:"thoughts"`
}

// New creates an agent from a role profile. Callers normally go through
// the Factory instead.
func New(profile RoleProfile, router *provider.Router, registry *ToolRegistry, model string, logger *zap.Logger) *Agent {
	return &Agent{
		Role:         profile.Role,
		Name:         profile.Name,
		Instruction:  profile.Instruction,
		Capabilities: profile.Capabilities,
		ToolNames:    profile.Tools,
		router:       router,
		registry:     registry,
		model:        model,
		logger:       logger,
	}
}

// ExecuteTask synthesizes a response for the task description using the
// agent's role framing, bound tools, and supplied context. Provider and
// malformed-output errors propagate; the orchestrator treats any error as
// task failure.
func (a *Agent) ExecuteTask(ctx context.Context, task string, taskCtx map[string]interface{}) (string, error) {
	a.think(ThoughtObservation, "received task: %s", truncate(task, 200))

	req := &provider.ChatRequest{
		Model:     a.model,
		Messages:  a.buildMessages(task, taskCtx),
		MaxTokens: 4096,
	}
	if defs := a.registry.Definitions(a.ToolNames...); len(defs) > 0 {
		req.Tools = defs
		req.ToolChoice = "auto"
	}

	a.think(ThoughtAction, "dispatching task to completion backend")

	var resp *provider.ChatResponse
	for round := 0; round < maxToolRounds; round++ {
		var err error
		resp, err = a.router.Route(ctx, a.Role, req)
		if err != nil {
			a.think(ThoughtResult, "task failed: %v", err)
			return "", fmt.Errorf("agent %s: %w", a.Role, err)
		}

		if len(resp.ToolCalls) == 0 || resp.FinishReason != "tool_calls" {
			break
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			a.think(ThoughtAction, "invoking tool %s", tc.Function.Name)
			result, toolErr := a.registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			if toolErr != nil {
				result = fmt.Sprintf(`{"error":%q}`, toolErr.Error())
			}
			a.think(ThoughtReasoning, "tool %s returned %s", tc.Function.Name, truncate(result, 200))
			req.Messages = append(req.Messages, provider.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}

		a.logger.Debug("tool round complete",
			zap.String("role", a.Role),
			zap.Int("round", round+1),
			zap.Int("tool_calls", len(resp.ToolCalls)))
	}

	a.think(ThoughtResult, "%s", truncate(resp.Content, 500))

	a.mu.Lock()
	a.tasksRun++
	a.mu.Unlock()

	return resp.Content, nil
}

// Chat returns a stateless single-turn reply in the agent's persona. It
// mutates no task state; only the thought log records the exchange.
func (a *Agent) Chat(ctx context.Context, message string, chatCtx map[string]interface{}) (string, error) {
	a.think(ThoughtObservation, "chat: %s", truncate(message, 200))

	resp, err := a.router.Route(ctx, a.Role, &provider.ChatRequest{
		Model:     a.model,
		Messages:  a.buildMessages(message, chatCtx),
		MaxTokens: 2048,
	})
	if err != nil {
		a.think(ThoughtResult, "chat failed: %v", err)
		return "", fmt.Errorf("agent %s: %w", a.Role, err)
	}

	a.think(ThoughtResult, "%s", truncate(resp.Content, 500))
	return resp.Content, nil
}

// State returns a snapshot of the agent for observability.
func (a *Agent) State() AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	thoughts := make([]Thought, len(a.thoughts))
	copy(thoughts, a.thoughts)
	return AgentState{
		Role:         a.Role,
		Name:         a.Name,
		Capabilities: a.Capabilities,
		TasksRun:     a.tasksRun,
		Thoughts:     thoughts,
	}
}

// Reset clears the thought log and counters. The agent stays registered
// in the factory cache.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thoughts = nil
	a.tasksRun = 0
}

func (a *Agent) buildMessages(input string, extra map[string]interface{}) []provider.Message {
	system := a.Instruction
	if len(a.Capabilities) > 0 {
		system += "\n\nYour capabilities: " + strings.Join(a.Capabilities, ", ") + "."
	}

	user := input
	if len(extra) > 0 {
		if ctxJSON, err := json.MarshalIndent(extra, "", "  "); err == nil {
			user += "\n\nContext:\n" + string(ctxJSON)
		}
	}

	return []provider.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func (a *Agent) think(t ThoughtType, format string, args ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thoughts = append(a.thoughts, Thought{
		Type:      t,
		Content:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
