package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/agent/providers"
	"github.com/haasonsaas/deskpilot/internal/agent/tape"
	"github.com/haasonsaas/deskpilot/internal/config"
	"github.com/haasonsaas/deskpilot/internal/desktop"
	"github.com/haasonsaas/deskpilot/internal/observability"
	"github.com/haasonsaas/deskpilot/internal/tools/browser"
	"github.com/haasonsaas/deskpilot/internal/tools/computer"
	"github.com/haasonsaas/deskpilot/internal/tools/exec"
	"github.com/haasonsaas/deskpilot/internal/tools/files"
)

const defaultConfigPath = "deskpilot.yaml"

// resolveConfigPath picks --config, then DESKPILOT_CONFIG, then
// deskpilot.yaml when it exists. An empty result means built-in defaults.
func resolveConfigPath() string {
	if path := strings.TrimSpace(configPath); path != "" {
		return path
	}
	if path := strings.TrimSpace(os.Getenv("DESKPILOT_CONFIG")); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// loadConfig loads the configuration and applies flag and environment
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := resolveConfigPath()
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flagChanged(cmd, "log-level") {
		cfg.Logging.Level = logLevel
	}
	if strings.TrimSpace(cfg.Model.APIKey) == "" {
		cfg.Model.APIKey = apiKeyFromEnv(cfg.Model.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case config.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENROUTER_API_KEY")
	}
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}

func newLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
		Output:    os.Stderr,
	})
}

// newModel builds the configured model caller.
func newModel(cfg *config.Config) (agent.ModelCaller, error) {
	if err := cfg.RequireModel(); err != nil {
		return nil, err
	}
	m := cfg.Model
	switch m.Provider {
	case config.ProviderAnthropic:
		return providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:  m.APIKey,
			BaseURL: m.BaseURL,
			Model:   m.Model,
			Timeout: m.RequestTimeout,
		})
	default:
		return providers.NewOpenRouter(providers.OpenRouterConfig{
			APIKey:  m.APIKey,
			BaseURL: m.BaseURL,
			Model:   m.Model,
			AppName: m.AppName,
			SiteURL: m.SiteURL,
			Timeout: m.RequestTimeout,
		})
	}
}

func presets(cfg *config.Config) []desktop.Preset {
	if len(cfg.Computer.Presets) == 0 {
		return desktop.DefaultPresets
	}
	out := make([]desktop.Preset, 0, len(cfg.Computer.Presets))
	for _, p := range cfg.Computer.Presets {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("%dx%d", p.Width, p.Height)
		}
		out = append(out, desktop.Preset{Name: name, Width: p.Width, Height: p.Height})
	}
	return out
}

func probeGeometry(ctx context.Context, cfg *config.Config) (desktop.Geometry, error) {
	return desktop.ProbeGeometry(ctx, desktop.NewX11Prober(desktop.ExecRunner), presets(cfg))
}

// toolset is the registry plus whatever must be released after a run.
type toolset struct {
	registry *agent.ToolRegistry
	session  *browser.Session
}

func (ts *toolset) Close() error {
	if ts.session == nil {
		return nil
	}
	return ts.session.Close()
}

type toolDeps struct {
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// buildTools registers computer, bash, str_replace_editor and, when enabled,
// browser.
func buildTools(cfg *config.Config, geometry desktop.Geometry, withBrowser bool, deps toolDeps) (*toolset, error) {
	if deps.logger == nil {
		deps.logger = observability.NopLogger()
	}
	registry := agent.NewToolRegistry(
		agent.WithRegistryLogger(deps.logger),
		agent.WithRegistryMetrics(deps.metrics),
		agent.WithRegistryTracer(deps.tracer),
	)

	comp := cfg.Computer
	computerTool := computer.New(desktop.NewX11(desktop.ExecRunner), geometry, computer.Config{
		TypingGroupSize: comp.TypingGroupSize,
		ScrollAmount:    comp.ScrollAmount,
		ScreenshotDelay: comp.ScreenshotDelay,
		MaxImageBytes:   comp.MaxImageBytes,
		IconMinSize:     comp.IconMinSize,
		IconMaxSize:     comp.IconMaxSize,
		DisableSnap:     comp.DisableSnap,
	},
		computer.WithLogger(deps.logger),
		computer.WithMetrics(deps.metrics),
		computer.WithTracer(deps.tracer),
	)

	manager := exec.NewManager(exec.ManagerConfig{
		Shell:     cfg.Bash.Shell,
		Dir:       cfg.Bash.Dir,
		Env:       cfg.Bash.Env,
		Timeout:   cfg.Bash.Timeout,
		MaxOutput: cfg.Bash.MaxOutput,
	})
	editor := files.NewTool(files.Config{Root: cfg.Editor.Root, SnippetLines: cfg.Editor.SnippetLines}, deps.logger)

	tools := []agent.Tool{computerTool, exec.NewTool(manager, deps.logger), editor}
	ts := &toolset{registry: registry}

	if withBrowser && cfg.Browser.Enabled != nil && *cfg.Browser.Enabled {
		pool := browser.NewPool(browser.PoolConfig{
			MaxInstances:   1,
			Timeout:        cfg.Browser.Timeout,
			Headless:       cfg.Browser.Headless == nil || *cfg.Browser.Headless,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			UserAgent:      cfg.Browser.UserAgent,
			Install:        cfg.Browser.Install,
		})
		ts.session = browser.NewSession(pool)
		tools = append(tools, browser.NewTool(ts.session, browser.Config{MaxImageBytes: comp.MaxImageBytes}, deps.logger))
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func runAgent(cmd *cobra.Command, prompt string, opts *runOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.maxIterations > 0 {
		cfg.Agent.MaxIterations = opts.maxIterations
	}
	if opts.images >= 0 {
		n := opts.images
		cfg.Agent.OnlyNMostRecentImages = &n
	}

	logger := newLogger(cfg)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	metricsAddr := cfg.Metrics.Addr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		server := serveMetrics(ctx, metricsAddr, registry, logger)
		defer server.Close()
	}

	var (
		model   agent.ModelCaller
		runner  agent.ToolRunner
		system  string
		history []agent.Message
	)
	if opts.replay != "" {
		recorded, err := tape.Load(opts.replay)
		if err != nil {
			return err
		}
		replayer := tape.NewReplayer(recorded)
		model, runner, system = replayer, replayer, recorded.SystemPrompt
		history = recorded.Initial
		if strings.TrimSpace(prompt) != "" {
			history = []agent.Message{agent.UserText(prompt)}
		}
		logger.Info(ctx, "replaying tape", "path", opts.replay, "turns", len(recorded.Turns))
	} else {
		if strings.TrimSpace(prompt) == "" {
			if prompt, err = readPrompt(cmd.InOrStdin()); err != nil {
				return err
			}
		}
		if model, err = newModel(cfg); err != nil {
			return err
		}

		geometry, err := probeGeometry(ctx, cfg)
		if err != nil {
			return fmt.Errorf("probe display: %w", err)
		}
		logger.Info(ctx, "display geometry", "geometry", geometry.String())

		ts, err := buildTools(cfg, geometry, !opts.noBrowser, toolDeps{logger: logger, metrics: metrics, tracer: tracer})
		if err != nil {
			return err
		}
		defer func() {
			if ts.session != nil {
				stats := ts.session.Stats()
				logger.Debug(context.Background(), "browser pool", "live", stats.LiveInstances, "available", stats.AvailableInstances)
			}
			if err := ts.Close(); err != nil {
				logger.Warn(context.Background(), "browser shutdown failed", "error", err)
			}
		}()
		runner = ts.registry

		env := agent.DefaultPromptEnv(ts.registry.Descriptors())
		env.Display = fmt.Sprintf("%dx%d", geometry.LogicalWidth, geometry.LogicalHeight)
		env.Suffix = cfg.Agent.SystemPromptSuffix
		system = agent.SystemPrompt(env)
		history = []agent.Message{agent.UserText(prompt)}
	}
	if len(history) == 0 {
		return errors.New("nothing to run: empty prompt and tape has no initial history")
	}

	if opts.record != "" {
		recorder := tape.NewRecorder(model, runner)
		model, runner = recorder, recorder
		defer func() {
			if err := recorder.Tape().Save(opts.record); err != nil {
				logger.Error(context.Background(), "saving tape failed", "path", opts.record, "error", err)
				return
			}
			logger.Info(context.Background(), "tape saved", "path", opts.record)
		}()
	}

	out := cmd.OutOrStdout()
	renderer := newTranscript(out)
	callbacks := renderer.Callbacks()
	if opts.jsonOut {
		callbacks = agent.Callbacks{}
	}

	controller := agent.NewController(model, runner, agent.ControllerConfig{
		System:                system,
		MaxTokens:             cfg.Model.MaxTokens,
		OnlyNMostRecentImages: cfg.ImagesToKeep(),
		MaxIterations:         cfg.Agent.MaxIterations,
	},
		agent.WithCallbacks(callbacks),
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
		agent.WithTracer(tracer),
	)

	history, report, runErr := controller.RunWithReport(ctx, history)
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(history); err != nil {
			return err
		}
	} else {
		renderer.Summary(report)
	}
	return runErr
}

func readPrompt(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(strings.Join(lines, "\n"))
	if prompt == "" {
		return "", errors.New("a prompt is required (argument or stdin)")
	}
	return prompt, nil
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info(ctx, "serving metrics", "addr", addr)
	return server
}

func runGeometry(cmd *cobra.Command, point string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	geometry, err := probeGeometry(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Physical:  %dx%d\n", geometry.PhysicalWidth, geometry.PhysicalHeight)
	fmt.Fprintf(out, "Logical:   %dx%d\n", geometry.LogicalWidth, geometry.LogicalHeight)
	fmt.Fprintf(out, "DPI scale: %.2f\n", geometry.DPIScale)
	fmt.Fprintf(out, "Taskbar:   %d\n", geometry.TaskbarOffsetY)

	if point == "" {
		return nil
	}
	x, y, err := parsePoint(point)
	if err != nil {
		return err
	}
	sx, sy := desktop.NewTranslator(geometry).LogicalToScreen(float64(x), float64(y))
	fmt.Fprintf(out, "Point:     (%d, %d) -> (%d, %d)\n", x, y, sx, sy)
	return nil
}

func parsePoint(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("point must be x,y, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return x, y, nil
}

func runScreenshot(cmd *cobra.Command, output string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	geometry, err := probeGeometry(ctx, cfg)
	if err != nil {
		return err
	}
	codec := desktop.NewCodec(desktop.NewX11(desktop.ExecRunner), geometry, desktop.CodecConfig{
		MaxBytes: cfg.Computer.MaxImageBytes,
	})
	shot, err := codec.Capture(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, shot.Data, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	note := ""
	if shot.OverBudget {
		note = " (over budget)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %dx%d %s, %d bytes%s\n",
		output, shot.Width, shot.Height, shot.Candidate, len(shot.Data), note)
	return nil
}

func runTools(cmd *cobra.Command, noBrowser bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Descriptors do not depend on the display, so a nominal geometry is
	// enough when none can be probed.
	geometry, err := probeGeometry(cmd.Context(), cfg)
	if err != nil {
		geometry, err = desktop.NewGeometry(1, 0, 1280, 800, presets(cfg))
		if err != nil {
			return err
		}
	}
	ts, err := buildTools(cfg, geometry, !noBrowser, toolDeps{})
	if err != nil {
		return err
	}
	defer ts.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ts.registry.Descriptors())
}

func runConfigSchema(cmd *cobra.Command) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, requireModel bool) error {
	path := resolveConfigPath()
	if path == "" {
		return errors.New("no configuration file found; pass --config or create deskpilot.yaml")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if requireModel {
		if err := cfg.RequireModel(); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (provider=%s, version=%d)\n", path, cfg.Model.Provider, cfg.Version)
	return nil
}
