package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/tools"
)

// maxResultLines caps how much tool output the transcript echoes.
const maxResultLines = 8

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	outputStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).PaddingLeft(2).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).PaddingLeft(2)
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).
			BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(lipgloss.Color("238"))
)

// transcript prints a run as it happens.
type transcript struct {
	out io.Writer
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out}
}

// Callbacks returns the controller observers that feed the transcript.
func (t *transcript) Callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnOutput:     t.block,
		OnToolOutput: t.result,
	}
}

func (t *transcript) block(block agent.ContentBlock) {
	switch block.Type {
	case agent.BlockText:
		if text := strings.TrimSpace(block.Text); text != "" {
			fmt.Fprintln(t.out, assistantStyle.Render(text))
		}
	case agent.BlockToolUse:
		display := tools.ResolveToolDisplay(block.Name, block.Input)
		fmt.Fprintln(t.out, toolStyle.Render(tools.FormatToolSummary(display)))
	}
}

func (t *transcript) result(result agent.ToolResult, _ string) {
	if result.System != "" {
		fmt.Fprintln(t.out, systemStyle.Render(result.System))
	}
	if result.IsError() {
		fmt.Fprintln(t.out, errorStyle.Render(clip(result.Error, maxResultLines)))
		return
	}
	if output := strings.TrimSpace(result.Output); output != "" {
		fmt.Fprintln(t.out, outputStyle.Render(clip(output, maxResultLines)))
	}
	if len(result.Image) > 0 {
		fmt.Fprintln(t.out, outputStyle.Render(fmt.Sprintf("[screenshot, %d bytes]", len(result.Image))))
	}
}

// Summary prints the closing line for a run.
func (t *transcript) Summary(report agent.RunReport) {
	line := fmt.Sprintf("%s after %d turns, %d tool calls in %s",
		report.FinalState, report.Iterations, report.ToolCalls, report.Duration.Round(time.Millisecond))
	fmt.Fprintln(t.out, summaryStyle.Render(line))
}

// clip keeps the first n lines of s and notes how many were dropped.
func clip(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}
