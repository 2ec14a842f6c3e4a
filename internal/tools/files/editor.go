// Package files provides the str_replace_editor tool for viewing, creating
// and editing files by absolute path.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/observability"
)

// DefaultSnippetLines is the context shown around an edit.
const DefaultSnippetLines = 4

// Command is an editor operation.
type Command string

const (
	CommandView       Command = "view"
	CommandCreate     Command = "create"
	CommandStrReplace Command = "str_replace"
	CommandInsert     Command = "insert"
	CommandUndoEdit   Command = "undo_edit"
)

// Request is the input of the editor tool.
type Request struct {
	Command    Command `json:"command" jsonschema:"enum=view,enum=create,enum=str_replace,enum=insert,enum=undo_edit" jsonschema_description:"The operation to run."`
	Path       string  `json:"path" jsonschema_description:"Absolute path to a file or directory."`
	FileText   *string `json:"file_text,omitempty" jsonschema_description:"Content of the new file. Required for create."`
	ViewRange  []int   `json:"view_range,omitempty" jsonschema:"minItems=2,maxItems=2" jsonschema_description:"[start, end] 1-based line range for view; end -1 reads to the end of the file."`
	OldStr     *string `json:"old_str,omitempty" jsonschema_description:"Exact text to replace. Must occur exactly once."`
	NewStr     *string `json:"new_str,omitempty" jsonschema_description:"Replacement text for str_replace or the text to insert."`
	InsertLine *int    `json:"insert_line,omitempty" jsonschema:"minimum=0" jsonschema_description:"Insert new_str after this line; 0 inserts at the top."`
}

var requestSchema = agent.ReflectSchema(&Request{})

// Config controls the editor.
type Config struct {
	// Root confines edits to a directory tree when set.
	Root         string
	SnippetLines int
}

// Tool is the str_replace_editor tool. It remembers previous contents per
// path so edits can be undone.
type Tool struct {
	resolver     Resolver
	snippetLines int
	logger       *observability.Logger

	mu      sync.Mutex
	history map[string][]string
}

// NewTool creates the editor tool.
func NewTool(cfg Config, logger *observability.Logger) *Tool {
	if cfg.SnippetLines <= 0 {
		cfg.SnippetLines = DefaultSnippetLines
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Tool{
		resolver:     Resolver{Root: cfg.Root},
		snippetLines: cfg.SnippetLines,
		logger:       logger,
		history:      make(map[string][]string),
	}
}

func (t *Tool) Name() string { return "str_replace_editor" }

func (t *Tool) Description() string {
	return "View, create and edit files.\n" +
		"* view shows a file with line numbers, or lists a directory two levels deep.\n" +
		"* create refuses to overwrite an existing path.\n" +
		"* str_replace needs old_str to match exactly one place in the file, whitespace included.\n" +
		"* undo_edit reverts the last str_replace or insert on a path."
}

func (t *Tool) Schema() json.RawMessage { return requestSchema }

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var req Request
	if err := agent.DecodeInput(input, &req); err != nil {
		return agent.ToolResult{}, err
	}
	path, err := t.resolver.Resolve(req.Path)
	if err != nil {
		return agent.ToolResult{}, agent.Validationf("%v", err)
	}
	info, statErr := os.Stat(path)
	if err := validatePath(req.Command, path, info, statErr); err != nil {
		return agent.ToolResult{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var output string
	switch req.Command {
	case CommandView:
		if info.IsDir() {
			output, err = viewDir(path, req.ViewRange)
		} else {
			output, err = viewFile(path, req.ViewRange)
		}
	case CommandCreate:
		if req.FileText == nil {
			return agent.ToolResult{}, agent.Validationf("parameter 'file_text' is required for create command")
		}
		output, err = t.create(path, *req.FileText)
	case CommandStrReplace:
		if req.OldStr == nil || *req.OldStr == "" {
			return agent.ToolResult{}, agent.Validationf("parameter 'old_str' is required for str_replace command")
		}
		newStr := ""
		if req.NewStr != nil {
			newStr = *req.NewStr
		}
		output, err = t.strReplace(path, *req.OldStr, newStr)
	case CommandInsert:
		if req.InsertLine == nil {
			return agent.ToolResult{}, agent.Validationf("parameter 'insert_line' is required for insert command")
		}
		if req.NewStr == nil {
			return agent.ToolResult{}, agent.Validationf("parameter 'new_str' is required for insert command")
		}
		output, err = t.insert(path, *req.InsertLine, *req.NewStr)
	case CommandUndoEdit:
		output, err = t.undo(path)
	}
	if err != nil {
		var verr *agent.ValidationError
		if errors.As(err, &verr) {
			return agent.ToolResult{}, err
		}
		return agent.ToolResult{}, agent.Execution("file operation failed", err)
	}
	t.logger.Debug(ctx, "editor command finished", "command", string(req.Command), "path", path)
	return agent.ToolResult{Output: output}, nil
}

func validatePath(cmd Command, path string, info fs.FileInfo, statErr error) error {
	switch cmd {
	case CommandView, CommandCreate, CommandStrReplace, CommandInsert, CommandUndoEdit:
	default:
		return agent.Validationf("unrecognized command: %q. Allowed commands: view, create, str_replace, insert, undo_edit", cmd)
	}
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return agent.Execution("file operation failed", statErr)
	}
	if cmd == CommandCreate {
		if exists {
			return agent.Validationf("path '%s' already exists. Cannot overwrite existing files with 'create'", path)
		}
		return nil
	}
	if !exists {
		return agent.Validationf("path '%s' does not exist", path)
	}
	if info.IsDir() && cmd != CommandView {
		return agent.Validationf("path '%s' is a directory. Only 'view' command can be used on directories", path)
	}
	return nil
}

func (t *Tool) create(path, text string) (string, error) {
	if err := writeFile(path, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("File created successfully at '%s'", path), nil
}

func (t *Tool) strReplace(path, oldStr, newStr string) (string, error) {
	content, err := readText(path)
	if err != nil {
		return "", err
	}
	switch n := strings.Count(content, oldStr); {
	case n == 0:
		return "", agent.Validationf("no replacement was performed: '%s' did not appear verbatim in %s", oldStr, path)
	case n > 1:
		return "", agent.Validationf("no replacement was performed: multiple occurrences of '%s' in lines %s", oldStr, occurrenceLines(content, oldStr))
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := writeFile(path, updated); err != nil {
		return "", err
	}
	t.history[path] = append(t.history[path], content)

	line := strings.Count(content[:strings.Index(content, oldStr)], "\n")
	snippet, start := t.snippet(updated, line, strings.Count(newStr, "\n"))
	return "Replacement successful. Here's the context:\n" +
		numbered(snippet, "edited section in "+path, start), nil
}

func (t *Tool) insert(path string, insertLine int, newStr string) (string, error) {
	content, err := readText(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(content, "\n")
	if insertLine < 0 || insertLine > len(lines) {
		return "", agent.Validationf("invalid insert_line %d: the file has %d lines", insertLine, len(lines))
	}

	inserted := strings.Split(newStr, "\n")
	merged := make([]string, 0, len(lines)+len(inserted))
	merged = append(merged, lines[:insertLine]...)
	merged = append(merged, inserted...)
	merged = append(merged, lines[insertLine:]...)
	updated := strings.Join(merged, "\n")

	if err := writeFile(path, updated); err != nil {
		return "", err
	}
	t.history[path] = append(t.history[path], content)

	snippet, start := t.snippet(updated, insertLine, len(inserted)-1)
	return "Insertion successful. Here's the context:\n" +
		numbered(snippet, "edited section in "+path, start), nil
}

func (t *Tool) undo(path string) (string, error) {
	versions := t.history[path]
	if len(versions) == 0 {
		return "", agent.Validationf("no edit history for file '%s'", path)
	}
	previous := versions[len(versions)-1]
	if err := writeFile(path, previous); err != nil {
		return "", err
	}
	t.history[path] = versions[:len(versions)-1]
	return "Last edit undone. Current content:\n" + numbered(previous, path, 1), nil
}

// snippet returns the lines around an edit that starts at 0-based line and
// spans extra more lines, with the 1-based number of its first line.
func (t *Tool) snippet(content string, line, extra int) (string, int) {
	lines := strings.Split(content, "\n")
	start := max(0, line-t.snippetLines)
	end := min(len(lines), line+extra+t.snippetLines+1)
	return strings.Join(lines[start:end], "\n"), start + 1
}

func occurrenceLines(content, needle string) string {
	var lines []string
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, needle) {
			lines = append(lines, strconv.Itoa(i+1))
		}
	}
	if len(lines) == 0 {
		// The needle spans lines; report where each occurrence starts.
		offset := 0
		for {
			idx := strings.Index(content[offset:], needle)
			if idx < 0 {
				break
			}
			lines = append(lines, strconv.Itoa(strings.Count(content[:offset+idx], "\n")+1))
			offset += idx + 1
		}
	}
	return "[" + strings.Join(lines, ", ") + "]"
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
