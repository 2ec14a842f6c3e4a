package files

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

const tabWidth = 8

func viewFile(path string, viewRange []int) (string, error) {
	content, err := readText(path)
	if err != nil {
		return "", err
	}
	if viewRange == nil {
		return numbered(content, path, 1), nil
	}
	if len(viewRange) != 2 {
		return "", agent.Validationf("view_range must be a list of two integers")
	}

	lines := strings.Split(content, "\n")
	start, end := viewRange[0], viewRange[1]
	if start < 1 || start > len(lines) {
		return "", agent.Validationf("invalid view_range start %d: the file has %d lines", start, len(lines))
	}
	if end == -1 {
		end = len(lines)
	} else if end < start || end > len(lines) {
		return "", agent.Validationf("invalid view_range end %d: must be -1 or between %d and %d", end, start, len(lines))
	}
	return numbered(strings.Join(lines[start-1:end], "\n"), path, start), nil
}

// viewDir lists non-hidden entries up to two levels deep.
func viewDir(path string, viewRange []int) (string, error) {
	if viewRange != nil {
		return "", agent.Validationf("view_range cannot be used with directories")
	}
	matches, err := doublestar.Glob(os.DirFS(path), "{*,*/*}")
	if err != nil {
		return "", fmt.Errorf("list %s: %w", path, err)
	}
	entries := matches[:0]
	for _, m := range matches {
		if !hidden(m) {
			entries = append(entries, m)
		}
	}
	sort.Strings(entries)
	return fmt.Sprintf("Files in directory '%s' up to two levels deep, excluding hidden items:\n%s",
		path, strings.Join(entries, "\n")), nil
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// readText reads a file and refuses content that is not text.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if mt := mimetype.Detect(data); !isText(mt) {
		return "", agent.Validationf("file '%s' is %s, not text. Only text files can be viewed or edited", path, mt.String())
	}
	return string(data), nil
}

func isText(mt *mimetype.MIME) bool {
	for ; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}

// numbered renders content with cat -n style line numbers.
func numbered(content, desc string, firstLine int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the result of running `cat -n` on %s:\n", desc)
	for i, line := range strings.Split(expandTabs(content), "\n") {
		fmt.Fprintf(&b, "%6d\t%s\n", firstLine+i, line)
	}
	return b.String()
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			spaces := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", spaces))
			col += spaces
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
