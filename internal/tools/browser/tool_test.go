package browser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

var playwrightCheck struct {
	once sync.Once
	err  error
}

func requirePlaywright(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser integration tests in short mode")
	}
	playwrightCheck.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool := NewPool(PoolConfig{Timeout: 10 * time.Second, Headless: true})
		defer pool.Close()

		instance, err := pool.Acquire(ctx)
		if err != nil {
			playwrightCheck.err = err
			return
		}
		pool.Release(instance)
	})

	if playwrightCheck.err != nil {
		t.Skipf("Playwright not available: %v", playwrightCheck.err)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`{"action":"visit"}`, "url is required"},
		{`{"action":"get_content"}`, "content_type is required"},
		{`{"action":"click"}`, "selector is required"},
		{`{"action":"fly"}`, "unsupported action"},
	}
	// Validation runs before the session is touched, so no browser is needed.
	tool := NewTool(NewSession(NewPool(PoolConfig{})), Config{}, nil)
	for _, tt := range tests {
		_, err := tool.Execute(context.Background(), json.RawMessage(tt.input))
		var verr *agent.ValidationError
		if !errors.As(err, &verr) || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Execute(%s) error = %v, want %q", tt.input, err, tt.want)
		}
	}
	if tool.session.Active() {
		t.Fatal("validation failures must not launch a browser")
	}
}

func TestSchemaCompiles(t *testing.T) {
	reg := agent.NewToolRegistry()
	if err := reg.Register(NewTool(NewSession(NewPool(PoolConfig{})), Config{}, nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got := reg.Run(context.Background(), "browser", json.RawMessage(`{"action":"get_content","content_type":"pdf"}`))
	if !strings.Contains(got.Error, "invalid input") {
		t.Fatalf("enum not enforced: %+v", got)
	}
}

func TestBrowserSession(t *testing.T) {
	requirePlaywright(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Home</title></head><body><h1>Home</h1><a href="/next">Next page</a></body></html>`))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Next</title></head><body><p>Arrived.</p></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	session := NewSession(NewPool(PoolConfig{Timeout: 10 * time.Second, Headless: true}))
	defer session.Close()
	tool := NewTool(session, Config{}, nil)

	run := func(input string) agent.ToolResult {
		t.Helper()
		res, err := tool.Execute(context.Background(), json.RawMessage(input))
		if err != nil {
			t.Fatalf("Execute(%s) error = %v", input, err)
		}
		return res
	}

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"back"}`)); err == nil {
		t.Fatal("back before visiting should fail")
	}

	out := run(`{"action":"visit","url":"` + server.URL + `"}`).Output
	if !strings.HasPrefix(out, "Visited page: Home\nURL: "+server.URL) {
		t.Fatalf("visit output = %q", out)
	}
	if got := run(`{"action":"get_content","content_type":"title"}`).Output; got != "Home" {
		t.Fatalf("title = %q", got)
	}
	if got := run(`{"action":"get_content","content_type":"clickable","selector_type":"tag"}`).Output; !strings.Contains(got, `a[href="/next"]`) {
		t.Fatalf("clickable = %q", got)
	}

	out = run(`{"action":"click","selector":"Next page"}`).Output
	if !strings.HasPrefix(out, "After click: ") {
		t.Fatalf("click output = %q", out)
	}
	if got := run(`{"action":"get_content","content_type":"text","text_type":"paragraph"}`).Output; got != "Arrived." {
		t.Fatalf("text after click = %q", got)
	}

	shot := run(`{"action":"get_content","content_type":"screenshot"}`)
	if len(shot.Image) == 0 {
		t.Fatal("screenshot carried no image")
	}

	out = run(`{"action":"back"}`).Output
	if !strings.HasPrefix(out, "Went back to: Home") {
		t.Fatalf("back output = %q", out)
	}

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"click","selector":"#missing"}`))
	var verr *agent.ValidationError
	if !errors.As(err, &verr) || !session.Active() {
		t.Fatalf("missing element error = %v, session active = %v", err, session.Active())
	}
}
