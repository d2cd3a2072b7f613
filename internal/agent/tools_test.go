package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/careerpilot/careerpilot/internal/provider"
)

func toolDef(name, desc string) provider.Tool {
	return provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        name,
			Description: desc,
			Parameters:  map[string]interface{}{"type": "object"},
		},
	}
}

func TestRegistryLastWriteWins(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(toolDef("echo", "first"), func(ctx context.Context, args string) (string, error) {
		return "first", nil
	})
	reg.Register(toolDef("echo", "second"), func(ctx context.Context, args string) (string, error) {
		return "second", nil
	})

	def, ok := reg.Lookup("echo")
	if !ok || def.Function.Description != "second" {
		t.Errorf("expected re-registration to replace definition, got %+v", def)
	}
	out, err := reg.Execute(context.Background(), "echo", "{}")
	if err != nil || out != "second" {
		t.Errorf("expected second handler, got %q, %v", out, err)
	}
	if n := len(reg.Definitions()); n != 1 {
		t.Errorf("expected a single definition, got %d", n)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewToolRegistry()
	if _, err := reg.Execute(context.Background(), "missing", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatal("lookup of unknown tool must report not found")
	}
}

func TestDefinitionsSubsetPreservesOrder(t *testing.T) {
	reg := NewToolRegistry()
	for _, name := range []string{"a", "b", "c"} {
		reg.Register(toolDef(name, name), func(ctx context.Context, args string) (string, error) {
			return "", nil
		})
	}

	defs := reg.Definitions("c", "a")
	if len(defs) != 2 {
		t.Fatalf("expected 2 defs, got %d", len(defs))
	}
	// Registration order wins over request order.
	if defs[0].Function.Name != "a" || defs[1].Function.Name != "c" {
		t.Errorf("expected [a c], got [%s %s]", defs[0].Function.Name, defs[1].Function.Name)
	}
}

func TestBuiltinMatchKeywordsTool(t *testing.T) {
	reg := NewToolRegistry()
	RegisterBuiltinTools(reg)

	out, err := reg.Execute(context.Background(), "match_keywords",
		`{"resume":"Go engineer with Kubernetes and Postgres experience","job_description":"Looking for Kubernetes expertise and Terraform skills"}`)
	if err != nil {
		t.Fatalf("match_keywords: %v", err)
	}
	if !strings.Contains(out, "kubernetes") {
		t.Errorf("expected kubernetes matched, got %s", out)
	}
	if !strings.Contains(out, "terraform") {
		t.Errorf("expected terraform missing, got %s", out)
	}
}

func TestExtractKeywords(t *testing.T) {
	kws := ExtractKeywords("The senior Go engineer built distributed systems with Go and gRPC")
	set := make(map[string]bool)
	for _, k := range kws {
		set[k] = true
	}
	if !set["engineer"] || !set["distributed"] || !set["grpc"] {
		t.Errorf("missing expected keywords in %v", kws)
	}
	if set["the"] || set["and"] || set["with"] {
		t.Errorf("stopwords leaked into %v", kws)
	}
	for i := 1; i < len(kws); i++ {
		if kws[i] == kws[i-1] {
			t.Errorf("duplicate keyword %q", kws[i])
		}
	}
}

func TestMatchKeywordsScore(t *testing.T) {
	matched, missing, score := MatchKeywords(
		"python pandas numpy",
		"python numpy spark",
	)
	if len(matched) != 2 || len(missing) != 1 {
		t.Fatalf("expected 2 matched / 1 missing, got %v / %v", matched, missing)
	}
	if score < 0.66 || score > 0.67 {
		t.Errorf("expected score ~2/3, got %f", score)
	}

	if _, _, score := MatchKeywords("anything", ""); score != 0 {
		t.Errorf("empty job description should score 0, got %f", score)
	}
}
