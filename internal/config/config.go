// Package config loads the deskpilot configuration file.
//
// Files are YAML, or JSON5 when the extension is .json or .json5. Values may
// reference environment variables as ${NAME} and pull in other files with
// $include; see LoadRaw.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted in model.provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Config is the root configuration. Build it with Load or Default and pass
// it to constructors; nothing reads configuration globally.
type Config struct {
	Version  int            `yaml:"version"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Computer ComputerConfig `yaml:"computer"`
	Editor   EditorConfig   `yaml:"editor"`
	Bash     BashConfig     `yaml:"bash"`
	Browser  BrowserConfig  `yaml:"browser"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ModelConfig selects and authenticates the language model.
type ModelConfig struct {
	// Provider is "openrouter" (any OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" jsonschema:"enum=openrouter,enum=anthropic"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// AppName and SiteURL are sent to OpenRouter as X-Title and HTTP-Referer.
	AppName string `yaml:"app_name"`
	SiteURL string `yaml:"site_url"`

	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	// OnlyNMostRecentImages keeps this many screenshots in history; 0 keeps all.
	OnlyNMostRecentImages *int `yaml:"only_n_most_recent_images"`
	// MaxIterations bounds model turns per run; 0 is unbounded.
	MaxIterations      int    `yaml:"max_iterations"`
	SystemPromptSuffix string `yaml:"system_prompt_suffix"`
}

// ComputerConfig tunes the computer tool.
type ComputerConfig struct {
	TypingGroupSize int           `yaml:"typing_group_size"`
	ScrollAmount    int           `yaml:"scroll_amount"`
	ScreenshotDelay time.Duration `yaml:"screenshot_delay"`
	MaxImageBytes   int           `yaml:"max_image_bytes"`
	IconMinSize     int           `yaml:"icon_min_size"`
	IconMaxSize     int           `yaml:"icon_max_size"`
	DisableSnap     bool          `yaml:"disable_snap"`

	// Presets replaces the logical resolutions screenshots are scaled to.
	Presets []PresetConfig `yaml:"presets"`
}

// PresetConfig is one logical target resolution.
type PresetConfig struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// EditorConfig tunes the str_replace_editor tool.
type EditorConfig struct {
	// Root confines edits to a directory tree when set.
	Root         string `yaml:"root"`
	SnippetLines int    `yaml:"snippet_lines"`
}

// BashConfig tunes the bash tool.
type BashConfig struct {
	Shell     []string          `yaml:"shell"`
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env"`
	Timeout   time.Duration     `yaml:"timeout"`
	MaxOutput int               `yaml:"max_output"`
}

// BrowserConfig tunes the browser tool.
type BrowserConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	Headless       *bool         `yaml:"headless"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user_agent"`
	// Install downloads the driver and Chromium on first use.
	Install bool `yaml:"install"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format    string `yaml:"format" jsonschema:"enum=json,enum=text"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr serves /metrics while a run is active, e.g. ":9090". Empty disables it.
	Addr string `yaml:"addr"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

// Load reads, merges, decodes and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = ProviderOpenRouter
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 4096
	}
	if cfg.Model.RequestTimeout == 0 {
		cfg.Model.RequestTimeout = 60 * time.Second
	}
	if cfg.Model.AppName == "" {
		cfg.Model.AppName = "deskpilot"
	}
	if cfg.Agent.OnlyNMostRecentImages == nil {
		n := 5
		cfg.Agent.OnlyNMostRecentImages = &n
	}
	if cfg.Computer.TypingGroupSize == 0 {
		cfg.Computer.TypingGroupSize = 50
	}
	if cfg.Computer.ScrollAmount == 0 {
		cfg.Computer.ScrollAmount = 400
	}
	if cfg.Computer.ScreenshotDelay == 0 {
		cfg.Computer.ScreenshotDelay = 1500 * time.Millisecond
	}
	if cfg.Computer.MaxImageBytes == 0 {
		cfg.Computer.MaxImageBytes = 5 * 1024 * 1024
	}
	if cfg.Computer.IconMinSize == 0 {
		cfg.Computer.IconMinSize = 16
	}
	if cfg.Computer.IconMaxSize == 0 {
		cfg.Computer.IconMaxSize = 64
	}
	if cfg.Editor.SnippetLines == 0 {
		cfg.Editor.SnippetLines = 4
	}
	if cfg.Bash.MaxOutput == 0 {
		cfg.Bash.MaxOutput = 64000
	}
	if cfg.Browser.Enabled == nil {
		enabled := true
		cfg.Browser.Enabled = &enabled
	}
	if cfg.Browser.Headless == nil {
		headless := true
		cfg.Browser.Headless = &headless
	}
	if cfg.Browser.ViewportWidth == 0 {
		cfg.Browser.ViewportWidth = 1280
	}
	if cfg.Browser.ViewportHeight == 0 {
		cfg.Browser.ViewportHeight = 800
	}
	if cfg.Browser.Timeout == 0 {
		cfg.Browser.Timeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "deskpilot"
	}
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config:\n  - " + strings.Join(e.Issues, "\n  - ")
}

// ErrMissingAPIKey is reported by RequireModel when no key is configured.
var ErrMissingAPIKey = errors.New("model.api_key is required")

// Validate checks ranges and enums. It does not require an API key, so
// commands that never call the model work without one; see RequireModel.
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	switch c.Model.Provider {
	case ProviderOpenRouter, ProviderAnthropic:
	default:
		add("model.provider must be %q or %q, got %q", ProviderOpenRouter, ProviderAnthropic, c.Model.Provider)
	}
	if c.Model.MaxTokens < 1 {
		add("model.max_tokens must be positive")
	}
	if c.Model.RequestTimeout < 0 {
		add("model.request_timeout must not be negative")
	}
	if n := c.Agent.OnlyNMostRecentImages; n != nil && *n < 0 {
		add("agent.only_n_most_recent_images must not be negative")
	}
	if c.Agent.MaxIterations < 0 {
		add("agent.max_iterations must not be negative")
	}

	comp := c.Computer
	if comp.TypingGroupSize < 1 {
		add("computer.typing_group_size must be positive")
	}
	if comp.ScrollAmount < 1 {
		add("computer.scroll_amount must be positive")
	}
	if comp.ScreenshotDelay < 0 {
		add("computer.screenshot_delay must not be negative")
	}
	if comp.MaxImageBytes < 1 {
		add("computer.max_image_bytes must be positive")
	}
	if comp.IconMinSize < 1 || comp.IconMaxSize < comp.IconMinSize {
		add("computer.icon_min_size and icon_max_size must satisfy 1 <= min <= max, got %d and %d", comp.IconMinSize, comp.IconMaxSize)
	}
	for i, p := range comp.Presets {
		if p.Width < 1 || p.Height < 1 {
			add("computer.presets[%d] must have a positive width and height", i)
		}
	}

	if c.Editor.SnippetLines < 0 {
		add("editor.snippet_lines must not be negative")
	}
	if c.Bash.Timeout < 0 {
		add("bash.timeout must not be negative")
	}
	if c.Bash.MaxOutput < 0 {
		add("bash.max_output must not be negative")
	}
	if c.Browser.ViewportWidth < 1 || c.Browser.ViewportHeight < 1 {
		add("browser viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		add("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// RequireModel reports whether the model section is complete enough to
// make calls.
func (c *Config) RequireModel() error {
	if strings.TrimSpace(c.Model.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.Model.Provider == ProviderOpenRouter && strings.TrimSpace(c.Model.Model) == "" {
		return errors.New("model.model is required for the openrouter provider")
	}
	return nil
}

// ImagesToKeep is the retention limit; 0 keeps every screenshot.
func (c *Config) ImagesToKeep() int {
	if c.Agent.OnlyNMostRecentImages == nil {
		return 0
	}
	return *c.Agent.OnlyNMostRecentImages
}
