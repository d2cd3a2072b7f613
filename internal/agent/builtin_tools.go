package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/careerpilot/careerpilot/internal/provider"
)

// RegisterBuiltinTools adds the default career-domain tools to a registry.
func RegisterBuiltinTools(reg *ToolRegistry) {
	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "current_date",
			Description: "Get today's date, for deadlines and application timelines",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}, func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf(`{"date":"%s"}`, time.Now().Format("2006-01-02")), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "extract_keywords",
			Description: "Extract the significant keywords from a resume section or job description",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]string{"type": "string", "description": "Text to extract keywords from"},
				},
				"required": []string{"text"},
			},
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		b, _ := json.Marshal(map[string]interface{}{
			"keywords": ExtractKeywords(p.Text),
		})
		return string(b), nil
	})

	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "match_keywords",
			Description: "Score keyword overlap between a resume and a job description",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"resume":          map[string]string{"type": "string", "description": "Resume text"},
					"job_description": map[string]string{"type": "string", "description": "Job description text"},
				},
				"required": []string{"resume", "job_description"},
			},
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Resume  string `json:"resume"`
			JobDesc string `json:"job_description"`
		}
		if err := json.Unmarshal([]byte(args), &p); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
		matched, missing, score := MatchKeywords(p.Resume, p.JobDesc)
		b, _ := json.Marshal(map[string]interface{}{
			"score":   score,
			"matched": matched,
			"missing": missing,
		})
		return string(b), nil
	})
}

// RunLister is the slice of the run store the run-history tool needs.
type RunLister interface {
	ListRunSummaries(ctx context.Context, limit int) ([]byte, error)
}

// RegisterRunHistoryTool adds a tool that surfaces prior workflow runs so
// agents can reference earlier sessions. Wired only when a store exists.
func RegisterRunHistoryTool(reg *ToolRegistry, runs RunLister) {
	reg.Register(provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "list_workflow_runs",
			Description: "List recent workflow runs and their outcomes",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]string{"type": "number", "description": "Max runs to return (default 10)"},
				},
			},
		},
	}, func(ctx context.Context, args string) (string, error) {
		var p struct {
			Limit int `json:"limit"`
		}
		json.Unmarshal([]byte(args), &p)
		if p.Limit <= 0 {
			p.Limit = 10
		}
		b, err := runs.ListRunSummaries(ctx, p.Limit)
		if err != nil {
			return "", fmt.Errorf("list runs: %w", err)
		}
		return string(b), nil
	})
}

// ExtractKeywords does a simple keyword extraction from text. Splits on
// whitespace/punctuation, filters short words and stopwords, caps at 30.
func ExtractKeywords(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '+' || r == '#' ||
			r > 127)
	})

	seen := make(map[string]bool)
	var result []string
	for _, w := range words {
		lower := strings.ToLower(w)
		if len(lower) < 3 || stopwords[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		result = append(result, lower)
		if len(result) >= 30 {
			break
		}
	}
	return result
}

// MatchKeywords returns the job-description keywords present and absent in
// the resume, plus the coverage ratio.
func MatchKeywords(resume, jobDesc string) (matched, missing []string, score float64) {
	have := make(map[string]bool)
	for _, kw := range ExtractKeywords(resume) {
		have[kw] = true
	}
	wanted := ExtractKeywords(jobDesc)
	for _, kw := range wanted {
		if have[kw] {
			matched = append(matched, kw)
		} else {
			missing = append(missing, kw)
		}
	}
	if len(wanted) > 0 {
		score = float64(len(matched)) / float64(len(wanted))
	}
	return matched, missing, score
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true,
	"but": true, "not": true, "you": true, "all": true,
	"can": true, "had": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "has": true,
	"have": true, "been": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "will": true,
	"what": true, "when": true, "make": true, "like": true,
	"just": true, "into": true, "than": true, "them": true,
	"some": true, "could": true, "would": true, "there": true,
	"your": true, "about": true, "who": true, "we're": true,
}
