package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// GeminiProvider implements the Provider interface for the Google
// Generative Language API. It is the default backend for CareerPilot.
type GeminiProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg ProviderConfig, logger *zap.Logger) *GeminiProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *GeminiProvider) ID() string   { return p.config.ID }
func (p *GeminiProvider) Name() string { return p.config.Name }

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Tools             []geminiTool     `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Chat sends a non-streaming generateContent request.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	greq := p.convertRequest(req)

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.Endpoint, model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var gresp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(gresp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from provider")
	}

	content := ""
	var toolCalls []ToolCall
	for i, part := range gresp.Candidates[0].Content.Parts {
		content += part.Text
		if part.FunctionCall != nil {
			args := []byte("{}")
			if part.FunctionCall.Args != nil {
				args, _ = json.Marshal(part.FunctionCall.Args)
			}
			// Gemini has no call IDs; synthesize stable ones per response.
			toolCalls = append(toolCalls, ToolCall{
				ID:   fmt.Sprintf("%s-%d", part.FunctionCall.Name, i),
				Type: "function",
				Function: ToolCallFunction{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}

	finish := gresp.Candidates[0].FinishReason
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}

	return &ChatResponse{
		Model:        model,
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     gresp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gresp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gresp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (p *GeminiProvider) convertRequest(req *ChatRequest) *geminiRequest {
	greq := &geminiRequest{}

	// Gemini matches tool results by function name, not call ID, so map
	// the IDs back to the names from the assistant turn that issued them.
	callNames := make(map[string]string)
	for _, m := range req.Messages {
		for _, tc := range m.ToolCalls {
			callNames[tc.ID] = tc.Function.Name
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if greq.SystemInstruction == nil {
				greq.SystemInstruction = &geminiContent{}
			}
			greq.SystemInstruction.Parts = append(greq.SystemInstruction.Parts, geminiPart{Text: m.Content})
		case "assistant":
			content := geminiContent{Role: "model"}
			if m.Content != "" || len(m.ToolCalls) == 0 {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]interface{}
				if json.Unmarshal([]byte(tc.Function.Arguments), &args) != nil {
					args = map[string]interface{}{}
				}
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			greq.Contents = append(greq.Contents, content)
		case "tool":
			response := map[string]interface{}{}
			if json.Unmarshal([]byte(m.Content), &response) != nil {
				response = map[string]interface{}{"result": m.Content}
			}
			greq.Contents = append(greq.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{
						Name:     callNames[m.ToolCallID],
						Response: response,
					},
				}},
			})
		default:
			greq.Contents = append(greq.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		greq.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	if req.Temperature > 0 || req.MaxTokens > 0 || req.JSONMode {
		greq.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
		// The API rejects structured-output mode combined with tools.
		if req.JSONMode && len(req.Tools) == 0 {
			greq.GenerationConfig.ResponseMimeType = "application/json"
		}
	}
	return greq
}

// HealthCheck verifies the provider is reachable.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.Endpoint+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}
