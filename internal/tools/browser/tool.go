// Package browser provides the browser tool: a headless Chromium session the
// model can visit pages with, read, click through and screenshot.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"

	"github.com/playwright-community/playwright-go"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/desktop"
	"github.com/haasonsaas/deskpilot/internal/observability"
)

// Request is the input of the browser tool.
type Request struct {
	Action       string `json:"action" jsonschema:"enum=visit,enum=get_content,enum=click,enum=back" jsonschema_description:"visit a URL, get_content of the current page, click an element, or go back."`
	URL          string `json:"url,omitempty" jsonschema_description:"URL to visit."`
	Selector     string `json:"selector,omitempty" jsonschema_description:"Element to click: a CSS selector, an XPath starting with /, or link text."`
	ContentType  string `json:"content_type,omitempty" jsonschema:"enum=text,enum=title,enum=clickable,enum=screenshot" jsonschema_description:"What get_content returns."`
	SelectorType string `json:"selector_type,omitempty" jsonschema:"enum=text,enum=id,enum=class,enum=tag,enum=position" jsonschema_description:"Selector flavour listed for clickable content."`
	TextType     string `json:"text_type,omitempty" jsonschema:"enum=all,enum=heading,enum=paragraph,enum=list,enum=link" jsonschema_description:"Which text get_content returns for content_type text."`
}

var requestSchema = agent.ReflectSchema(&Request{})

// Validate checks the per-action required fields.
func (r Request) Validate() error {
	switch r.Action {
	case "visit":
		if r.URL == "" {
			return agent.Validationf("url is required for visit")
		}
	case "get_content":
		if r.ContentType == "" {
			return agent.Validationf("content_type is required for get_content")
		}
	case "click":
		if r.Selector == "" {
			return agent.Validationf("selector is required for click")
		}
	case "back":
	default:
		return agent.Validationf("unsupported action: %q", r.Action)
	}
	return nil
}

// Config tunes the browser tool.
type Config struct {
	// MaxImageBytes bounds page screenshots the same way desktop ones are.
	MaxImageBytes int
}

// Tool drives a browser Session.
type Tool struct {
	session *Session
	config  Config
	logger  *observability.Logger
}

// NewTool creates the browser tool.
func NewTool(session *Session, cfg Config, logger *observability.Logger) *Tool {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = desktop.DefaultMaxImageBytes
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Tool{session: session, config: cfg, logger: logger}
}

func (t *Tool) Name() string { return "browser" }

func (t *Tool) Description() string {
	return "Browse the web in a headless browser.\n" +
		"* visit opens a URL; back returns to the previous page.\n" +
		"* get_content returns page text, the title, clickable elements with selectors, or a screenshot.\n" +
		"* click accepts the selectors listed by get_content with content_type clickable."
}

func (t *Tool) Schema() json.RawMessage { return requestSchema }

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var req Request
	if err := agent.DecodeInput(input, &req); err != nil {
		return agent.ToolResult{}, err
	}
	if err := req.Validate(); err != nil {
		return agent.ToolResult{}, err
	}

	var result agent.ToolResult
	err := t.session.Do(ctx, func(page playwright.Page) error {
		var err error
		result, err = t.perform(page, req)
		return err
	})
	if err != nil {
		var verr *agent.ValidationError
		if errors.As(err, &verr) {
			return agent.ToolResult{}, err
		}
		t.logger.Warn(ctx, "browser session reset", "action", req.Action, "error", err)
		return agent.ToolResult{}, agent.Execution("browser operation failed", err)
	}
	return result, nil
}

func (t *Tool) perform(page playwright.Page, req Request) (agent.ToolResult, error) {
	switch req.Action {
	case "visit":
		if _, err := page.Goto(req.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return agent.ToolResult{}, fmt.Errorf("visit %s: %w", req.URL, err)
		}
		return pageSummary(page, "Visited page")

	case "get_content":
		if err := requireVisited(page); err != nil {
			return agent.ToolResult{}, err
		}
		return t.content(page, req)

	case "click":
		if err := requireVisited(page); err != nil {
			return agent.ToolResult{}, err
		}
		html, err := page.Content()
		if err != nil {
			return agent.ToolResult{}, fmt.Errorf("read page: %w", err)
		}
		css, ok := Locate(html, req.Selector)
		if !ok {
			return agent.ToolResult{}, agent.Validationf("no clickable element found for selector: %s", req.Selector)
		}
		if err := page.Locator(css).First().Click(); err != nil {
			return agent.ToolResult{}, fmt.Errorf("click %s: %w", css, err)
		}
		if err := waitLoaded(page); err != nil {
			return agent.ToolResult{}, err
		}
		return pageSummary(page, "After click")

	case "back":
		if err := requireVisited(page); err != nil {
			return agent.ToolResult{}, err
		}
		if _, err := page.GoBack(); err != nil {
			return agent.ToolResult{}, fmt.Errorf("go back: %w", err)
		}
		if err := waitLoaded(page); err != nil {
			return agent.ToolResult{}, err
		}
		return pageSummary(page, "Went back to")
	}
	return agent.ToolResult{}, agent.Validationf("unsupported action: %q", req.Action)
}

func (t *Tool) content(page playwright.Page, req Request) (agent.ToolResult, error) {
	switch req.ContentType {
	case "title":
		title, err := page.Title()
		if err != nil {
			return agent.ToolResult{}, fmt.Errorf("read title: %w", err)
		}
		return agent.ToolResult{Output: title}, nil

	case "text", "clickable":
		html, err := page.Content()
		if err != nil {
			return agent.ToolResult{}, fmt.Errorf("read page: %w", err)
		}
		if req.ContentType == "text" {
			text, err := ExtractText(html, req.TextType)
			if err != nil {
				return agent.ToolResult{}, agent.Validationf("%v", err)
			}
			return agent.ToolResult{Output: text}, nil
		}
		items, err := ExtractClickables(html, req.SelectorType, page.URL())
		if err != nil {
			return agent.ToolResult{}, err
		}
		if len(items) == 0 {
			return agent.ToolResult{Output: "no clickable elements found"}, nil
		}
		return agent.ToolResult{Output: FormatClickables(items)}, nil

	case "screenshot":
		data, err := page.Screenshot()
		if err != nil {
			return agent.ToolResult{}, fmt.Errorf("screenshot: %w", err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return agent.ToolResult{}, fmt.Errorf("decode screenshot: %w", err)
		}
		shot, err := desktop.EncodeCascade(img, t.config.MaxImageBytes)
		if err != nil {
			return agent.ToolResult{}, err
		}
		result := agent.ToolResult{Output: "Page screenshot", Image: shot.Data}
		if shot.OverBudget {
			result.System = fmt.Sprintf("screenshot is %d bytes after compression, above the configured budget", len(shot.Data))
		}
		return result, nil
	}
	return agent.ToolResult{}, agent.Validationf("unsupported content_type: %q", req.ContentType)
}

func requireVisited(page playwright.Page) error {
	if u := page.URL(); u == "" || u == "about:blank" {
		return agent.Validationf("the browser has not visited any page yet")
	}
	return nil
}

func waitLoaded(page playwright.Page) error {
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("wait for page: %w", err)
	}
	return nil
}

func pageSummary(page playwright.Page, label string) (agent.ToolResult, error) {
	title, err := page.Title()
	if err != nil {
		return agent.ToolResult{}, fmt.Errorf("read title: %w", err)
	}
	return agent.ToolResult{Output: fmt.Sprintf("%s: %s\nURL: %s", label, title, page.URL())}, nil
}
