package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/agent/toolconv"
)

// DefaultOpenRouterBaseURL is the OpenRouter chat completions endpoint root.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter calls an OpenAI-compatible chat completions endpoint,
// OpenRouter by default. Model IDs use the provider/model form
// (e.g. "anthropic/claude-3.5-sonnet").
//
// It is safe for concurrent use.
type OpenRouter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// OpenRouterConfig holds configuration for the OpenRouter provider.
type OpenRouterConfig struct {
	// APIKey is the bearer token (required)
	APIKey string

	// BaseURL overrides the endpoint root for other compatible servers
	BaseURL string

	// Model is sent with every request (required)
	Model string

	// AppName and SiteURL identify the app in the OpenRouter dashboard
	AppName string
	SiteURL string

	// Timeout bounds each request; zero means no bound beyond ctx
	Timeout time.Duration

	// HTTPClient replaces the default client
	HTTPClient *http.Client
}

// NewOpenRouter creates an OpenRouter model caller.
func NewOpenRouter(cfg OpenRouterConfig) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openrouter: model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.AppName != "" || cfg.SiteURL != "" {
		headers := http.Header{}
		if cfg.AppName != "" {
			headers.Set("X-Title", cfg.AppName)
		}
		if cfg.SiteURL != "" {
			headers.Set("HTTP-Referer", cfg.SiteURL)
		}
		wrapped := *httpClient
		wrapped.Transport = &headerTransport{base: httpClient.Transport, headers: headers}
		httpClient = &wrapped
	}
	clientConfig.HTTPClient = httpClient

	return &OpenRouter{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenRouter) Name() string {
	return "openrouter"
}

// Create sends one non-streaming chat completion.
func (p *OpenRouter) Create(ctx context.Context, req agent.ModelRequest) (*agent.ModelResponse, error) {
	started := time.Now()
	exchange := agent.Exchange{Provider: p.Name(), Model: p.model}

	messages, err := convertOpenAIMessages(req.System, req.Messages)
	if err != nil {
		perr := newProviderError(p.Name(), p.model, 0, err)
		perr.Reason = FailureInvalidRequest
		return nil, transportFailure(exchange, started, perr)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		Tools:     toolconv.ToOpenAITools(req.Tools),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, transportFailure(exchange, started, p.wrapError(err))
	}

	exchange.StatusCode = http.StatusOK
	exchange.RequestID = resp.ID
	if id := resp.Header().Get("X-Request-Id"); id != "" {
		exchange.RequestID = id
	}
	exchange.Usage = agent.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	if len(resp.Choices) == 0 {
		perr := newProviderError(p.Name(), p.model, http.StatusOK, errors.New("response has no choices"))
		perr.Reason = FailureMalformedResponse
		perr.RequestID = exchange.RequestID
		return nil, transportFailure(exchange, started, perr)
	}

	choice := resp.Choices[0]
	message, err := parseOpenAIMessage(choice.Message)
	if err != nil {
		perr := newProviderError(p.Name(), p.model, http.StatusOK, err)
		perr.Reason = FailureMalformedResponse
		perr.RequestID = exchange.RequestID
		return nil, transportFailure(exchange, started, perr)
	}

	exchange.StopReason = openAIStopReason(choice.FinishReason)
	exchange.Duration = time.Since(started)
	return &agent.ModelResponse{Message: message, Exchange: exchange}, nil
}

// convertOpenAIMessages maps the conversation to chat completion messages.
// Tool results become tool-role messages keyed by tool_call_id; images ride
// in user messages as data URIs.
func convertOpenAIMessages(system string, history []agent.Message) ([]openai.ChatCompletionMessage, error) {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range history {
		switch msg.Role {
		case agent.RoleSystem:
			if text := joinText(msg.Content); text != "" {
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleSystem,
					Content: text,
				})
			}

		case agent.RoleAssistant:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: joinText(msg.Content),
			}
			for _, block := range msg.Content {
				if block.Type != agent.BlockToolUse {
					continue
				}
				args := string(block.Input)
				if args == "" {
					args = "{}"
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   block.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      block.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, out)

		case agent.RoleTool, agent.RoleUser:
			var parts []openai.ChatMessagePart
			hasImage := false
			for _, block := range msg.Content {
				switch block.Type {
				case agent.BlockToolResult:
					result = append(result, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						ToolCallID: block.ToolUseID,
						Name:       block.Name,
						Content:    toolResultText(block),
					})
				case agent.BlockText:
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: block.Text,
					})
				case agent.BlockImage:
					hasImage = true
					parts = append(parts, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: block.DataURI()},
					})
				case agent.BlockToolUse:
					return nil, fmt.Errorf("tool_use block %q in a %s message", block.ID, msg.Role)
				}
			}
			switch {
			case len(parts) == 0:
			case hasImage:
				result = append(result, openai.ChatCompletionMessage{
					Role:         openai.ChatMessageRoleUser,
					MultiContent: parts,
				})
			default:
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: joinText(msg.Content),
				})
			}

		default:
			return nil, fmt.Errorf("unknown message role %q", msg.Role)
		}
	}
	return result, nil
}

// parseOpenAIMessage turns the first choice into an assistant message.
func parseOpenAIMessage(msg openai.ChatCompletionMessage) (agent.Message, error) {
	out := agent.Message{Role: agent.RoleAssistant}
	if msg.Content != "" {
		out.Content = append(out.Content, agent.TextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return agent.Message{}, fmt.Errorf("tool call %q has invalid arguments: %s", call.Function.Name, args)
		}
		out.Content = append(out.Content, agent.ToolUseBlock(call.ID, call.Function.Name, json.RawMessage(args)))
	}
	return out, nil
}

func openAIStopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return "tool_use"
	case openai.FinishReasonStop:
		return "end_turn"
	case openai.FinishReasonLength:
		return "max_tokens"
	default:
		return string(reason)
	}
}

func (p *OpenRouter) wrapError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := newProviderError(p.Name(), p.model, apiErr.HTTPStatusCode, err)
		perr.Message = apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code != "" {
			perr = perr.withCode(code)
		} else if apiErr.Type != "" {
			perr = perr.withCode(apiErr.Type)
		}
		return perr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newProviderError(p.Name(), p.model, reqErr.HTTPStatusCode, err)
	}
	return newProviderError(p.Name(), p.model, 0, err)
}

// toolResultText flattens the text of a tool_result block. Tool messages
// need content, so a result with no text says so.
func toolResultText(block agent.ContentBlock) string {
	if text := joinText(block.Content); text != "" {
		return text
	}
	if block.IsError {
		return "(tool failed without output)"
	}
	return "(no text output)"
}

func joinText(blocks []agent.ContentBlock) string {
	var texts []string
	for _, block := range blocks {
		if block.Type == agent.BlockText && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range t.headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
