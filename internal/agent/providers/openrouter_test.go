package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// testHistory is a full turn: a prompt, a tool call, its result and the
// screenshot follow-up.
func testHistory() []agent.Message {
	return []agent.Message{
		agent.UserText("open the browser"),
		{Role: agent.RoleAssistant, Content: []agent.ContentBlock{
			agent.TextBlock("Taking a screenshot first."),
			agent.ToolUseBlock("call_1", "computer", json.RawMessage(`{"action":"screenshot"}`)),
		}},
		{Role: agent.RoleTool, Content: []agent.ContentBlock{
			agent.ToolResult{Output: "ok"}.Block("call_1", "computer"),
		}},
		{Role: agent.RoleUser, Content: []agent.ContentBlock{
			agent.TextBlock("ok"),
			agent.ImageBlock("image/png", []byte{0x89, 'P', 'N', 'G'}),
		}},
	}
}

var testTools = []agent.ToolDescriptor{{
	Name:        "computer",
	Description: "Drive the desktop.",
	Schema:      json.RawMessage(`{"type":"object","properties":{"action":{"type":"string"}},"required":["action"]}`),
}}

func newTestOpenRouter(t *testing.T, handler http.HandlerFunc, cfg OpenRouterConfig) *OpenRouter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL
	if cfg.Model == "" {
		cfg.Model = "anthropic/claude-3.5-sonnet"
	}
	provider, err := NewOpenRouter(cfg)
	if err != nil {
		t.Fatalf("NewOpenRouter() error = %v", err)
	}
	return provider
}

func TestNewOpenRouterRequiresKeyAndModel(t *testing.T) {
	if _, err := NewOpenRouter(OpenRouterConfig{Model: "m"}); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewOpenRouter(OpenRouterConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestOpenRouterCreate(t *testing.T) {
	var body map[string]any
	var headers http.Header
	provider := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "gen-1",
			"object": "chat.completion",
			"model": "anthropic/claude-3.5-sonnet",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "Clicking the icon.",
					"tool_calls": [{
						"id": "call_2",
						"type": "function",
						"function": {"name": "computer", "arguments": "{\"action\":\"left_click\",\"coordinate\":[10,20]}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 15, "total_tokens": 135}
		}`)
	}, OpenRouterConfig{AppName: "deskpilot"})

	resp, err := provider.Create(context.Background(), agent.ModelRequest{
		System:    "You control a desktop.",
		Messages:  testHistory(),
		Tools:     testTools,
		MaxTokens: 1024,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if got := headers.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := headers.Get("X-Title"); got != "deskpilot" {
		t.Errorf("X-Title = %q", got)
	}

	messages := body["messages"].([]any)
	roles := make([]string, len(messages))
	for i, m := range messages {
		roles[i] = m.(map[string]any)["role"].(string)
	}
	if got := strings.Join(roles, ","); got != "system,user,assistant,tool,user" {
		t.Fatalf("roles = %s", got)
	}
	assistant := messages[2].(map[string]any)
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	if call["id"] != "call_1" || call["function"].(map[string]any)["arguments"] != `{"action":"screenshot"}` {
		t.Errorf("tool call = %v", call)
	}
	tool := messages[3].(map[string]any)
	if tool["tool_call_id"] != "call_1" || tool["content"] != "ok" {
		t.Errorf("tool message = %v", tool)
	}
	parts := messages[4].(map[string]any)["content"].([]any)
	image := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(image, "data:image/png;base64,") {
		t.Errorf("image url = %q", image)
	}
	fn := body["tools"].([]any)[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "computer" {
		t.Errorf("tools = %v", body["tools"])
	}
	if body["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v", body["max_tokens"])
	}

	if len(resp.Message.Content) != 2 {
		t.Fatalf("content = %+v", resp.Message.Content)
	}
	if resp.Message.Content[0].Text != "Clicking the icon." {
		t.Errorf("text = %q", resp.Message.Content[0].Text)
	}
	use := resp.Message.Content[1]
	if use.Type != agent.BlockToolUse || use.ID != "call_2" || use.Name != "computer" ||
		string(use.Input) != `{"action":"left_click","coordinate":[10,20]}` {
		t.Errorf("tool_use = %+v", use)
	}
	ex := resp.Exchange
	if ex.Provider != "openrouter" || ex.StatusCode != 200 || ex.StopReason != "tool_use" ||
		ex.Usage.InputTokens != 120 || ex.Usage.OutputTokens != 15 || ex.RequestID != "gen-1" {
		t.Errorf("exchange = %+v", ex)
	}
}

func TestOpenRouterFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantReason FailureReason
		wantStatus int
	}{
		{
			name:       "empty choices",
			status:     200,
			body:       `{"id":"gen-2","choices":[],"usage":{"prompt_tokens":1,"completion_tokens":0}}`,
			wantReason: FailureMalformedResponse,
			wantStatus: 200,
		},
		{
			name:       "bad arguments",
			status:     200,
			body:       `{"id":"gen-3","choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c","type":"function","function":{"name":"computer","arguments":"{oops"}}]}}]}`,
			wantReason: FailureMalformedResponse,
			wantStatus: 200,
		},
		{
			name:       "rate limited",
			status:     429,
			body:       `{"error":{"message":"Rate limit exceeded","type":"rate_limit_error","code":"rate_limit_exceeded"}}`,
			wantReason: FailureRateLimit,
			wantStatus: 429,
		},
		{
			name:       "bad key",
			status:     401,
			body:       `{"error":{"message":"No auth credentials found","code":401}}`,
			wantReason: FailureAuth,
			wantStatus: 401,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, OpenRouterConfig{})

			_, err := provider.Create(context.Background(), agent.ModelRequest{Messages: []agent.Message{agent.UserText("hi")}, MaxTokens: 10})
			if !errors.Is(err, agent.ErrTransport) {
				t.Fatalf("error = %v, want ErrTransport", err)
			}
			var terr *agent.TransportError
			if !errors.As(err, &terr) || terr.Exchange.StatusCode != tt.wantStatus || terr.Exchange.Provider != "openrouter" {
				t.Fatalf("transport error = %+v", terr)
			}
			perr, ok := GetProviderError(err)
			if !ok || perr.Reason != tt.wantReason {
				t.Fatalf("provider error = %+v, want reason %s", perr, tt.wantReason)
			}
		})
	}
}

func TestOpenRouterTimeout(t *testing.T) {
	provider := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, OpenRouterConfig{Timeout: 50 * time.Millisecond})

	_, err := provider.Create(context.Background(), agent.ModelRequest{Messages: []agent.Message{agent.UserText("hi")}})
	perr, ok := GetProviderError(err)
	if !ok || perr.Reason != FailureTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded in chain", err)
	}
}

func TestConvertOpenAIMessagesRejectsMisplacedToolUse(t *testing.T) {
	history := []agent.Message{{Role: agent.RoleUser, Content: []agent.ContentBlock{
		agent.ToolUseBlock("x", "computer", nil),
	}}}
	if _, err := convertOpenAIMessages("", history); err == nil {
		t.Fatal("expected error for tool_use in a user message")
	}
}

func TestToolResultText(t *testing.T) {
	tests := []struct {
		name  string
		block agent.ContentBlock
		want  string
	}{
		{"text", agent.ToolResult{Output: "done"}.Block("a", "bash"), "done"},
		{"image only", agent.ToolResult{Image: []byte{1}}.Block("a", "computer"), "(no text output)"},
		{"error", agent.ContentBlock{Type: agent.BlockToolResult, IsError: true}, "(tool failed without output)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toolResultText(tt.block); got != tt.want {
				t.Fatalf("toolResultText() = %q, want %q", got, tt.want)
			}
		})
	}
}
