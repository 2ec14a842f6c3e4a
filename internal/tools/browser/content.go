package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Text filters for get_content with content_type text.
const (
	TextAll       = "all"
	TextHeading   = "heading"
	TextParagraph = "paragraph"
	TextList      = "list"
	TextLink      = "link"
)

// Selector flavours reported for clickable elements.
const (
	SelectorText     = "text"
	SelectorID       = "id"
	SelectorClass    = "class"
	SelectorTag      = "tag"
	SelectorPosition = "position"
)

func parseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

// ExtractText returns the visible text of a page, one trimmed string per
// line. textType narrows the result to headings, paragraphs, list items or
// links.
func ExtractText(html, textType string) (string, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()

	var parts []string
	switch textType {
	case "", TextAll:
		parts = textNodes(doc.Selection)
	case TextHeading:
		doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
			if text := compact(s.Text()); text != "" {
				parts = append(parts, strings.ToUpper(goquery.NodeName(s))+": "+text)
			}
		})
	case TextParagraph:
		parts = texts(doc.Find("p"))
	case TextList:
		parts = texts(doc.Find("ul li, ol li"))
	case TextLink:
		doc.Find("a").Each(func(_ int, s *goquery.Selection) {
			text := compact(s.Text())
			if text == "" {
				return
			}
			if href, ok := s.Attr("href"); ok && href != "" {
				text += " -> " + href
			}
			parts = append(parts, text)
		})
	default:
		return "", fmt.Errorf("unsupported text_type %q", textType)
	}
	return strings.Join(parts, "\n"), nil
}

func textNodes(sel *goquery.Selection) []string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == "#text" {
				if text := strings.TrimSpace(child.Text()); text != "" {
					parts = append(parts, text)
				}
				return
			}
			walk(child)
		})
	}
	walk(sel)
	return parts
}

func texts(sel *goquery.Selection) []string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if text := compact(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return parts
}

// compact trims text and collapses internal whitespace runs.
func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clickable is an element the model can target with the click action.
type Clickable struct {
	Tag      string
	Text     string
	Selector string
	URL      string
	Type     string
}

// ExtractClickables lists links, buttons, inputs and selects with a selector
// of the requested flavour. Elements without such a selector are skipped.
// Relative links are resolved against pageURL.
func ExtractClickables(html, selectorType, pageURL string) ([]Clickable, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, err
	}
	if selectorType == "" {
		selectorType = SelectorText
	}

	var out []Clickable
	doc.Find("a, button, input, select").Each(func(_ int, s *goquery.Selection) {
		selector := selectorFor(s, selectorType)
		if selector == "" {
			return
		}
		tag := goquery.NodeName(s)
		c := Clickable{Tag: tag, Text: compact(s.Text()), Selector: selector}
		switch tag {
		case "a":
			if href, ok := s.Attr("href"); ok {
				c.URL = absoluteURL(pageURL, href)
			}
		case "button":
			c.Type = s.AttrOr("type", "button")
		case "input":
			c.Type = s.AttrOr("type", "text")
		}
		out = append(out, c)
	})
	return out, nil
}

func selectorFor(s *goquery.Selection, selectorType string) string {
	tag := goquery.NodeName(s)
	switch selectorType {
	case SelectorText:
		text := compact(s.Text())
		if text == "" {
			return ""
		}
		if tag == "a" || tag == "button" {
			return fmt.Sprintf("//%s[contains(text(), %s)]", tag, xpathLiteral(text))
		}
		return fmt.Sprintf("//*[contains(text(), %s)]", xpathLiteral(text))
	case SelectorID:
		if id := s.AttrOr("id", ""); id != "" {
			return "#" + id
		}
	case SelectorClass:
		if classes := strings.Fields(s.AttrOr("class", "")); len(classes) > 0 {
			return "." + strings.Join(classes, ".")
		}
	case SelectorTag:
		switch tag {
		case "a":
			if href := s.AttrOr("href", ""); href != "" {
				return fmt.Sprintf("a[href=%q]", href)
			}
		case "button":
			if typ := s.AttrOr("type", ""); typ != "" {
				return fmt.Sprintf("button[type=%q]", typ)
			}
		case "input":
			var attrs []string
			if name := s.AttrOr("name", ""); name != "" {
				attrs = append(attrs, fmt.Sprintf("[name=%q]", name))
			}
			if typ := s.AttrOr("type", ""); typ != "" {
				attrs = append(attrs, fmt.Sprintf("[type=%q]", typ))
			}
			if len(attrs) > 0 {
				return "input" + strings.Join(attrs, "")
			}
		}
	case SelectorPosition:
		parent := s.Parent()
		if parent.Length() == 0 {
			return ""
		}
		siblings := parent.ChildrenFiltered(tag)
		if siblings.Length() == 1 {
			return goquery.NodeName(parent) + " > " + tag
		}
		return fmt.Sprintf("%s > %s:nth-of-type(%d)", goquery.NodeName(parent), tag, siblings.IndexOfSelection(s)+1)
	}
	return ""
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// FormatClickables renders clickables as a numbered list for the model.
func FormatClickables(items []Clickable) string {
	var b strings.Builder
	for i, c := range items {
		text := c.Text
		if text == "" {
			text = "(no text)"
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, text, c.Tag)
		fmt.Fprintf(&b, "   selector: %s\n", c.Selector)
		if c.URL != "" {
			fmt.Fprintf(&b, "   link: %s\n", c.URL)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
