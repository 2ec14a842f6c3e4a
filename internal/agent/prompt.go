package agent

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// PromptEnv describes the machine the model is driving.
type PromptEnv struct {
	OS   string
	Arch string
	Date time.Time

	// Tools are the descriptors the model will be offered.
	Tools []ToolDescriptor

	// Display is a one-line description of the logical screen, e.g. "1280x800".
	Display string

	// Suffix is appended after the capabilities block, separated by a space.
	Suffix string
}

// DefaultPromptEnv fills OS, architecture and date from the running process.
func DefaultPromptEnv(tools []ToolDescriptor) PromptEnv {
	return PromptEnv{
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
		Date:  time.Now(),
		Tools: tools,
	}
}

var toolHints = map[string]string{
	"computer":           "GUI interaction (mouse/keyboard control, screenshots)",
	"bash":               "command line operations (preferred for system tasks)",
	"str_replace_editor": "viewing, creating and editing files by absolute path",
	"browser":            "headless web browsing (visit, read, click, back)",
}

// SystemPrompt renders the capabilities block sent as the system prompt.
func SystemPrompt(env PromptEnv) string {
	var b strings.Builder
	b.WriteString("<SYSTEM_CAPABILITIES>\n")
	b.WriteString("* Environment:\n")
	fmt.Fprintf(&b, "  - OS: %s %s\n", env.OS, env.Arch)
	b.WriteString("  - Internet: Available\n")
	fmt.Fprintf(&b, "  - Date: %s\n", env.Date.Format("Monday, January 02, 2006"))

	b.WriteString("\n* Available Tools:\n")
	for _, tool := range env.Tools {
		hint, ok := toolHints[tool.Name]
		if !ok {
			hint = firstLine(tool.Description)
		}
		fmt.Fprintf(&b, "  - '%s': %s\n", tool.Name, hint)
	}

	b.WriteString("\n* Tool Usage Best Practices:\n")
	b.WriteString("  - Use 'bash' over 'computer' when possible\n")
	b.WriteString("  - Batch operations for efficiency\n")
	b.WriteString("  - Take screenshots when visual context is needed\n")
	b.WriteString("  - Consider command execution delays\n")

	b.WriteString("\n* Display & Coordinates:\n")
	if env.Display != "" {
		fmt.Fprintf(&b, "  - Screenshots and coordinates use a %s logical screen\n", env.Display)
	}
	b.WriteString("  - Coordinates are mapped to the physical display, including DPI scaling and taskbar offset\n")
	b.WriteString("  - Clicks near an icon snap to its center\n")
	b.WriteString("  - Scroll to reach content outside the visible area\n")
	b.WriteString("  - Screenshots are compressed when they exceed the size budget\n")
	b.WriteString("</SYSTEM_CAPABILITIES>")

	prompt := b.String()
	if env.Suffix != "" {
		prompt += " " + env.Suffix
	}
	return prompt
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
