package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/careerpilot/careerpilot/internal/agent"
	"github.com/careerpilot/careerpilot/internal/provider"
	"go.uber.org/zap"
)

// plannerRole is the routing key for planning and classification calls.
const plannerRole = "planner"

// planResponse is the structured shape expected back from the planning call.
type planResponse struct {
	Approach        string     `json:"approach"`
	AgentWorkflow   []planStep `json:"agentWorkflow"`
	ExpectedOutcome string     `json:"expectedOutcome"`
}

type planStep struct {
	ID           string   `json:"id"`
	AgentType    string   `json:"agentType"`
	Task         string   `json:"task"`
	Reasoning    string   `json:"reasoning"`
	Dependencies []string `json:"dependencies"`
}

// chatRouting is the structured shape expected from the chat
// classification call.
type chatRouting struct {
	RequiresAgents bool   `json:"requiresAgents"`
	Reasoning      string `json:"reasoning"`
	SuggestedAgent string `json:"suggestedAgent"`
	DirectResponse string `json:"directResponse"`
}

// planWorkflow issues one structured-output completion request and converts
// the returned steps into pending tasks plus their audit assignments.
// Dangling dependency IDs and self references are stripped here; cycles are
// left for the scheduler's deadlock recovery.
func (o *Orchestrator) planWorkflow(ctx context.Context, goal string, callerCtx map[string]interface{}) ([]Task, []AgentAssignment, error) {
	prompt := buildPlanPrompt(goal, callerCtx)

	resp, err := o.router.Route(ctx, plannerRole, &provider.ChatRequest{
		Model:     o.model,
		Messages:  []provider.Message{{Role: "user", Content: prompt}},
		MaxTokens: 2048,
		JSONMode:  true,
	})
	if err != nil {
		return nil, nil, &PlanningError{Detail: "completion call failed", Cause: err}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, nil, &PlanningError{Detail: "empty response from planner"}
	}

	var plan planResponse
	if err := json.Unmarshal(extractJSON(resp.Content), &plan); err != nil {
		return nil, nil, &PlanningError{Detail: "response is not valid JSON", Cause: err}
	}
	if len(plan.AgentWorkflow) == 0 {
		return nil, nil, &PlanningError{Detail: "plan contains no workflow steps"}
	}

	tasks := make([]Task, 0, len(plan.AgentWorkflow))
	assignments := make([]AgentAssignment, 0, len(plan.AgentWorkflow))

	for i, step := range plan.AgentWorkflow {
		if step.ID == "" {
			step.ID = fmt.Sprintf("step_%d", i+1)
		}
		tasks = append(tasks, Task{
			ID:           step.ID,
			Description:  step.Task,
			Status:       TaskPending,
			AgentRole:    step.AgentType,
			Dependencies: step.Dependencies,
		})
		assignments = append(assignments, AgentAssignment{
			AgentRole: step.AgentType,
			TaskID:    step.ID,
			Reasoning: step.Reasoning,
		})
	}

	sanitizeDependencies(tasks, o.logger)
	return tasks, assignments, nil
}

// sanitizeDependencies drops dependency IDs that reference no task in the
// plan and dependencies of a task on itself. Hallucinated planner output
// must not stall execution.
func sanitizeDependencies(tasks []Task, logger *zap.Logger) {
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}
	for i := range tasks {
		kept := tasks[i].Dependencies[:0]
		for _, dep := range tasks[i].Dependencies {
			if dep == tasks[i].ID {
				logger.Warn("dropping self dependency", zap.String("task", tasks[i].ID))
				continue
			}
			if !ids[dep] {
				logger.Warn("dropping dangling dependency",
					zap.String("task", tasks[i].ID), zap.String("dep", dep))
				continue
			}
			kept = append(kept, dep)
		}
		tasks[i].Dependencies = kept
	}
}

func buildPlanPrompt(goal string, callerCtx map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("You are the workflow planner for a career assistant. ")
	b.WriteString("Break the goal into ordered steps and assign each to one agent.\n\n")
	b.WriteString("Available agents:\n")
	b.WriteString(agent.Catalog())
	b.WriteString("\nGoal: ")
	b.WriteString(goal)
	if len(callerCtx) > 0 {
		if ctxJSON, err := json.MarshalIndent(callerCtx, "", "  "); err == nil {
			b.WriteString("\n\nContext:\n")
			b.Write(ctxJSON)
		}
	}
	b.WriteString("\n\nReply with JSON only, in this shape:\n")
	b.WriteString(`{"approach":"...","agentWorkflow":[{"id":"step_1","agentType":"research","task":"...","reasoning":"...","dependencies":[]}],"expectedOutcome":"..."}`)
	b.WriteString("\nEach dependencies entry must be the id of an earlier step in the same plan.")
	return b.String()
}

func buildRoutingPrompt(message string) string {
	var b strings.Builder
	b.WriteString("Decide whether this message needs a specialized career agent ")
	b.WriteString("or can be answered directly.\n\nAvailable agents:\n")
	b.WriteString(agent.Catalog())
	b.WriteString("\nMessage: ")
	b.WriteString(message)
	b.WriteString("\n\nReply with JSON only, in this shape:\n")
	b.WriteString(`{"requiresAgents":false,"reasoning":"...","suggestedAgent":"","directResponse":"..."}`)
	return b.String()
}

// extractJSON returns the JSON object embedded in a completion response,
// tolerating markdown fences and leading prose.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return []byte(s[start : end+1])
	}
	return []byte(s)
}
