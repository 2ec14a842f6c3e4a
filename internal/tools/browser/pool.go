package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// BrowserInstance represents a browser instance with its page
type BrowserInstance struct {
	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page
	ID      string
}

// Pool manages a pool of browser instances. The playwright driver is started
// on first use, so constructing a pool never touches the machine.
type Pool struct {
	config    PoolConfig
	instances chan *BrowserInstance
	mu        sync.Mutex
	closed    bool
	pw        *playwright.Playwright
	created   int // Number of live instances
}

// PoolConfig configures the browser pool
type PoolConfig struct {
	MaxInstances   int           // Maximum number of browser instances
	Timeout        time.Duration // Default timeout for operations
	Headless       bool          // Run browsers in headless mode
	ViewportWidth  int           // Viewport width (default: 1280)
	ViewportHeight int           // Viewport height (default: 800)
	UserAgent      string        // Optional user agent override
	// Install downloads the driver and Chromium before the first launch.
	Install bool
}

// NewPool creates a new browser instance pool
func NewPool(config PoolConfig) *Pool {
	if config.MaxInstances <= 0 {
		config.MaxInstances = 1
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1280
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 800
	}
	return &Pool{
		config:    config,
		instances: make(chan *BrowserInstance, config.MaxInstances),
	}
}

// Acquire gets a browser instance from the pool or creates a new one
func (p *Pool) Acquire(ctx context.Context) (*BrowserInstance, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed")
		}
		select {
		case instance := <-p.instances:
			p.mu.Unlock()
			return instance, nil
		default:
		}
		if p.created < p.config.MaxInstances {
			p.created++
			p.mu.Unlock()
			instance, err := p.createInstance()
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return nil, err
			}
			return instance, nil
		}
		p.mu.Unlock()

		select {
		case instance := <-p.instances:
			return instance, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a browser instance to the pool
func (p *Pool) Release(instance *BrowserInstance) {
	if instance == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		instance.cleanup()
		p.created--
		return
	}

	select {
	case p.instances <- instance:
	default:
		instance.cleanup()
		p.created--
	}
}

// Discard closes an instance that is no longer usable instead of returning
// it to the pool.
func (p *Pool) Discard(instance *BrowserInstance) {
	if instance == nil {
		return
	}
	instance.cleanup()
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
}

// Close closes all browser instances and shuts down the pool
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.instances)
	for instance := range p.instances {
		instance.cleanup()
	}
	p.created = 0

	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
	}

	return nil
}

// driver starts playwright once.
func (p *Pool) driver() (*playwright.Playwright, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw != nil {
		return p.pw, nil
	}
	if p.config.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: false}); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	p.pw = pw
	return pw, nil
}

// createInstance creates a new browser instance
func (p *Pool) createInstance() (*BrowserInstance, error) {
	pw, err := p.driver()
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.config.Headless),
		Timeout:  playwright.Float(float64(p.config.Timeout.Milliseconds())),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  p.config.ViewportWidth,
			Height: p.config.ViewportHeight,
		},
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if p.config.UserAgent != "" {
		contextOptions.UserAgent = playwright.String(p.config.UserAgent)
	}

	context, err := browser.NewContext(contextOptions)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(p.config.Timeout.Milliseconds()))

	return &BrowserInstance{
		Browser: browser,
		Context: context,
		Page:    page,
		ID:      fmt.Sprintf("browser-%d", time.Now().UnixNano()),
	}, nil
}

// cleanup closes the browser instance
func (instance *BrowserInstance) cleanup() {
	if instance.Page != nil {
		instance.Page.Close()
	}
	if instance.Context != nil {
		instance.Context.Close()
	}
	if instance.Browser != nil {
		instance.Browser.Close()
	}
}

// GetStats returns pool statistics
func (p *Pool) GetStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		MaxInstances:       p.config.MaxInstances,
		LiveInstances:      p.created,
		AvailableInstances: len(p.instances),
		IsClosed:           p.closed,
	}
}

// PoolStats contains pool statistics
type PoolStats struct {
	MaxInstances       int
	LiveInstances      int
	AvailableInstances int
	IsClosed           bool
}
