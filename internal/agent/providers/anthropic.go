package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/agent/toolconv"
)

// DefaultAnthropicModel is used when the config names no model.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic calls the Anthropic Messages API.
//
// It is safe for concurrent use.
type Anthropic struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required)
	APIKey string

	// BaseURL overrides the API endpoint
	BaseURL string

	// Model defaults to DefaultAnthropicModel
	Model string

	// Timeout bounds each request; zero means no bound beyond ctx
	Timeout time.Duration

	// HTTPClient replaces the default client
	HTTPClient *http.Client
}

// NewAnthropic creates an Anthropic model caller. SDK retries are disabled.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Anthropic{
		client:  anthropic.NewClient(options...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the provider identifier.
func (p *Anthropic) Name() string {
	return "anthropic"
}

// Create sends one Messages API request.
func (p *Anthropic) Create(ctx context.Context, req agent.ModelRequest) (*agent.ModelResponse, error) {
	started := time.Now()
	exchange := agent.Exchange{Provider: p.Name(), Model: p.model}

	system, messages, err := convertAnthropicMessages(req.System, req.Messages)
	if err != nil {
		perr := newProviderError(p.Name(), p.model, 0, err)
		perr.Reason = FailureInvalidRequest
		return nil, transportFailure(exchange, started, perr)
	}
	tools, err := toolconv.ToAnthropicTools(req.Tools)
	if err != nil {
		perr := newProviderError(p.Name(), p.model, 0, err)
		perr.Reason = FailureInvalidRequest
		return nil, transportFailure(exchange, started, perr)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
		Tools:     tools,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, transportFailure(exchange, started, p.wrapError(err))
	}

	exchange.StatusCode = http.StatusOK
	exchange.RequestID = msg.ID
	exchange.StopReason = string(msg.StopReason)
	exchange.Usage = agent.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}

	out := agent.Message{Role: agent.RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, agent.TextBlock(block.Text))
		case "tool_use":
			input := json.RawMessage(block.Input)
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			out.Content = append(out.Content, agent.ToolUseBlock(block.ID, block.Name, input))
		}
	}

	exchange.Duration = time.Since(started)
	return &agent.ModelResponse{Message: out, Exchange: exchange}, nil
}

// convertAnthropicMessages maps the conversation to Messages API turns.
// Tool-role messages become tool_result blocks in user turns, consecutive
// turns of the same role are merged, and system messages are folded into
// the system prompt.
func convertAnthropicMessages(system string, history []agent.Message) (string, []anthropic.MessageParam, error) {
	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}

	var result []anthropic.MessageParam
	for _, msg := range history {
		if msg.Role == agent.RoleSystem {
			if text := joinText(msg.Content); text != "" {
				systemParts = append(systemParts, text)
			}
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == agent.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		var content []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			param, ok, err := anthropicBlock(block)
			if err != nil {
				return "", nil, err
			}
			if ok {
				content = append(content, param)
			}
		}
		if len(content) == 0 {
			continue
		}

		if n := len(result); n > 0 && result[n-1].Role == role {
			result[n-1].Content = append(result[n-1].Content, content...)
			continue
		}
		result = append(result, anthropic.MessageParam{Role: role, Content: content})
	}
	return strings.Join(systemParts, "\n\n"), result, nil
}

func anthropicBlock(block agent.ContentBlock) (anthropic.ContentBlockParamUnion, bool, error) {
	switch block.Type {
	case agent.BlockText:
		if block.Text == "" {
			return anthropic.ContentBlockParamUnion{}, false, nil
		}
		return anthropic.NewTextBlock(block.Text), true, nil

	case agent.BlockImage:
		img, err := anthropicImage(block)
		if err != nil {
			return anthropic.ContentBlockParamUnion{}, false, err
		}
		return anthropic.ContentBlockParamUnion{OfImage: img}, true, nil

	case agent.BlockToolUse:
		var input map[string]any
		if len(block.Input) > 0 {
			if err := json.Unmarshal(block.Input, &input); err != nil {
				return anthropic.ContentBlockParamUnion{}, false, fmt.Errorf("invalid tool call input: %w", err)
			}
		}
		if input == nil {
			input = map[string]any{}
		}
		return anthropic.NewToolUseBlock(block.ID, input, block.Name), true, nil

	case agent.BlockToolResult:
		result := anthropic.ToolResultBlockParam{ToolUseID: block.ToolUseID}
		if block.IsError {
			result.IsError = anthropic.Bool(true)
		}
		for _, inner := range block.Content {
			switch inner.Type {
			case agent.BlockText:
				if inner.Text != "" {
					result.Content = append(result.Content, anthropic.ToolResultBlockParamContentUnion{
						OfText: &anthropic.TextBlockParam{Text: inner.Text},
					})
				}
			case agent.BlockImage:
				img, err := anthropicImage(inner)
				if err != nil {
					return anthropic.ContentBlockParamUnion{}, false, err
				}
				result.Content = append(result.Content, anthropic.ToolResultBlockParamContentUnion{OfImage: img})
			}
		}
		return anthropic.ContentBlockParamUnion{OfToolResult: &result}, true, nil
	}
	return anthropic.ContentBlockParamUnion{}, false, fmt.Errorf("unknown content block type %q", block.Type)
}

func anthropicImage(block agent.ContentBlock) (*anthropic.ImageBlockParam, error) {
	mediaType, ok := anthropicMediaType(block.MediaType)
	if !ok {
		return nil, fmt.Errorf("unsupported image media type %q", block.MediaType)
	}
	return &anthropic.ImageBlockParam{
		Source: anthropic.ImageBlockParamSourceUnion{
			OfBase64: &anthropic.Base64ImageSourceParam{
				Data:      block.Base64(),
				MediaType: mediaType,
			},
		},
	}, nil
}

func anthropicMediaType(mediaType string) (anthropic.Base64ImageSourceMediaType, bool) {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return anthropic.Base64ImageSourceMediaTypeImageJPEG, true
	case "image/png":
		return anthropic.Base64ImageSourceMediaTypeImagePNG, true
	case "image/gif":
		return anthropic.Base64ImageSourceMediaTypeImageGIF, true
	case "image/webp":
		return anthropic.Base64ImageSourceMediaTypeImageWebP, true
	default:
		return "", false
	}
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *Anthropic) wrapError(err error) *ProviderError {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return newProviderError(p.Name(), p.model, 0, err)
	}

	perr := newProviderError(p.Name(), p.model, apiErr.StatusCode, err)
	perr.RequestID = apiErr.RequestID
	if raw := apiErr.RawJSON(); raw != "" {
		var payload anthropicErrorPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			perr.Message = payload.Error.Message
			if payload.Error.Type != "" {
				perr = perr.withCode(payload.Error.Type)
			}
			if payload.RequestID != "" {
				perr.RequestID = payload.RequestID
			}
		}
	}
	if perr.Message == "" {
		perr.Message = "anthropic request failed"
	}
	return perr
}
