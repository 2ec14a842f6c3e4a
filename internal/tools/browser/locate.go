package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Locate resolves a click selector against the page HTML and returns a CSS
// selector the browser can click. Strategies are tried in order: CSS, XPath
// (selectors starting with "/"), exact link text, partial link text.
func Locate(pageHTML, selector string) (string, bool) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", false
	}
	doc, err := parseHTML(pageHTML)
	if err != nil {
		return "", false
	}

	// goquery yields an empty selection for selectors it cannot compile.
	if !strings.HasPrefix(selector, "/") && doc.Find(selector).Length() > 0 {
		return selector, true
	}

	if strings.HasPrefix(selector, "/") {
		if node := xpathElement(pageHTML, selector); node != nil {
			return cssPath(node), true
		}
	}

	links := doc.Find("a")
	exact := links.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return compact(s.Text()) == selector
	})
	if exact.Length() > 0 {
		return cssPath(exact.Nodes[0]), true
	}
	partial := links.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(compact(s.Text()), selector)
	})
	if partial.Length() > 0 {
		return cssPath(partial.Nodes[0]), true
	}
	return "", false
}

// xpathElement returns the first element matched by expr, or nil when the
// expression is invalid or matches no element.
func xpathElement(pageHTML, expr string) *html.Node {
	root, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil
	}
	for _, n := range nodes {
		// Attribute matches come back as detached nodes; they have no path.
		if n.Parent == nil {
			continue
		}
		switch n.Type {
		case html.ElementNode:
			return n
		case html.TextNode:
			if n.Parent.Type == html.ElementNode {
				return n.Parent
			}
		}
	}
	return nil
}

// cssPath builds an nth-of-type chain from the document root to n.
func cssPath(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		index, total := 0, 0
		if n.Parent != nil {
			for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
				if sib.Type != html.ElementNode || sib.Data != n.Data {
					continue
				}
				total++
				if sib == n {
					index = total
				}
			}
		}
		if total > 1 {
			parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", n.Data, index))
		} else {
			parts = append(parts, n.Data)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func absoluteURL(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return href
	}
	return b.ResolveReference(ref).String()
}
