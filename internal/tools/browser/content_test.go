package browser

import (
	"strings"
	"testing"
)

const samplePage = `<html><head><title>Sample</title><style>p{}</style></head>
<body>
  <h1>Welcome</h1>
  <div>
    <p>First   paragraph.</p>
    <script>var hidden = 1;</script>
    <ul><li>one</li><li>two</li></ul>
  </div>
  <div>
    <a href="/docs" id="docs" class="nav primary">Read the docs</a>
    <a href="https://example.com/x">External</a>
    <button type="submit">Go</button>
    <input name="q" type="search">
  </div>
  <h2>Footer</h2>
</body></html>`

func TestExtractText(t *testing.T) {
	tests := []struct {
		textType string
		want     string
	}{
		{TextAll, "Sample\nWelcome\nFirst   paragraph.\none\ntwo\nRead the docs\nExternal\nGo\nFooter"},
		{TextHeading, "H1: Welcome\nH2: Footer"},
		{TextParagraph, "First paragraph."},
		{TextList, "one\ntwo"},
		{TextLink, "Read the docs -> /docs\nExternal -> https://example.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.textType, func(t *testing.T) {
			got, err := ExtractText(samplePage, tt.textType)
			if err != nil {
				t.Fatalf("ExtractText() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractText() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}

	if _, err := ExtractText(samplePage, "tables"); err == nil {
		t.Fatal("expected error for unknown text type")
	}
}

func TestExtractClickables(t *testing.T) {
	tests := []struct {
		selectorType string
		want         []string
	}{
		{SelectorText, []string{"//a[contains(text(), 'Read the docs')]", "//a[contains(text(), 'External')]", "//button[contains(text(), 'Go')]"}},
		{SelectorID, []string{"#docs"}},
		{SelectorClass, []string{".nav.primary"}},
		{SelectorTag, []string{`a[href="/docs"]`, `a[href="https://example.com/x"]`, `button[type="submit"]`, `input[name="q"][type="search"]`}},
		{SelectorPosition, []string{"div > a:nth-of-type(1)", "div > a:nth-of-type(2)", "div > button", "div > input"}},
	}
	for _, tt := range tests {
		t.Run(tt.selectorType, func(t *testing.T) {
			items, err := ExtractClickables(samplePage, tt.selectorType, "https://site.test/start/")
			if err != nil {
				t.Fatalf("ExtractClickables() error = %v", err)
			}
			var got []string
			for _, item := range items {
				got = append(got, item.Selector)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("selectors = %q, want %q", got, tt.want)
			}
		})
	}

	items, _ := ExtractClickables(samplePage, SelectorTag, "https://site.test/start/")
	if items[0].URL != "https://site.test/docs" || items[2].Type != "submit" || items[3].Type != "search" {
		t.Fatalf("clickable details = %+v", items)
	}
	out := FormatClickables(items[:1])
	if out != "1. Read the docs (a)\n   selector: a[href=\"/docs\"]\n   link: https://site.test/docs" {
		t.Fatalf("FormatClickables() = %q", out)
	}
}

func TestXPathLiteral(t *testing.T) {
	tests := map[string]string{
		"plain":       "'plain'",
		"it's":        `"it's"`,
		`it's "both"`: `concat('it', "'", 's "both"')`,
	}
	for in, want := range tests {
		if got := xpathLiteral(in); got != want {
			t.Errorf("xpathLiteral(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     string
		wantOK   bool
	}{
		{"css", "#docs", "#docs", true},
		{"xpath", "//button[contains(text(), 'Go')]", "html > body > div:nth-of-type(2) > button", true},
		{"xpath text node", "//a[2]/text()", "html > body > div:nth-of-type(2) > a:nth-of-type(2)", true},
		{"exact link text", "External", "html > body > div:nth-of-type(2) > a:nth-of-type(2)", true},
		{"partial link text", "the docs", "html > body > div:nth-of-type(2) > a:nth-of-type(1)", true},
		{"invalid xpath", "//a[", "", false},
		{"no match", "Nowhere", "", false},
		{"empty", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Locate(samplePage, tt.selector)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("Locate(%q) = (%q, %v), want (%q, %v)", tt.selector, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct{ base, href, want string }{
		{"https://a.test/dir/page", "other", "https://a.test/dir/other"},
		{"https://a.test/dir/page", "/root", "https://a.test/root"},
		{"https://a.test/", "https://b.test/x", "https://b.test/x"},
		{"", "rel", "rel"},
	}
	for _, tt := range tests {
		if got := absoluteURL(tt.base, tt.href); got != tt.want {
			t.Errorf("absoluteURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
