package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/forgecode/orchestra/internal/display"
	"github.com/forgecode/orchestra/internal/tokencount"
)

// terminalRenderer draws provider panes as plain text strips. It
// prints the whole block again on each call without clearing earlier
// output, which is enough for a scrolling terminal without taking on
// a full TUI dependency.
type terminalRenderer struct {
	out io.Writer
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out}
}

func (r *terminalRenderer) Render(layout display.Layout, panes []display.PaneState, cfg display.Config) {
	if layout == display.LayoutSideBySide && len(panes) == 2 {
		r.renderSideBySide(panes, cfg)
		return
	}
	for _, pane := range panes {
		r.renderStrip(pane, cfg)
	}
	fmt.Fprintln(r.out)
}

func (r *terminalRenderer) renderStrip(pane display.PaneState, cfg display.Config) {
	header := fmt.Sprintf("── %s [%s]", pane.Provider, pane.Status)
	if cfg.ShowTimestamps && !pane.StartedAt.IsZero() {
		header += " " + pane.StartedAt.Format(time.Kitchen)
	}
	if cfg.ShowTokenCount {
		tokens := pane.TokenCount
		if tokens == 0 {
			tokens = tokencount.EstimateTokens(pane.AccumulatedContent)
		}
		header += fmt.Sprintf(" (%d tokens)", tokens)
	}
	fmt.Fprintln(r.out, header)

	if pane.Err != "" {
		fmt.Fprintf(r.out, "  error: %s\n", pane.Err)
		return
	}
	for _, line := range tailLines(pane.AccumulatedContent, cfg.MaxPaneHeight) {
		fmt.Fprintf(r.out, "  %s\n", line)
	}
}

func (r *terminalRenderer) renderSideBySide(panes []display.PaneState, cfg display.Config) {
	const width = 38
	left := paneLines(panes[0], cfg, width)
	right := paneLines(panes[1], cfg, width)
	for len(left) < len(right) {
		left = append(left, "")
	}
	for len(right) < len(left) {
		right = append(right, "")
	}
	for i := range left {
		fmt.Fprintf(r.out, "%-*s │ %s\n", width, left[i], right[i])
	}
	fmt.Fprintln(r.out)
}

func paneLines(pane display.PaneState, cfg display.Config, width int) []string {
	lines := []string{fmt.Sprintf("%s [%s]", pane.Provider, pane.Status)}
	if pane.Err != "" {
		lines = append(lines, "error: "+pane.Err)
		return lines
	}
	for _, l := range tailLines(pane.AccumulatedContent, cfg.MaxPaneHeight) {
		if len(l) > width {
			l = l[:width]
		}
		lines = append(lines, l)
	}
	return lines
}

// tailLines returns the last max lines of content.
func tailLines(content string, max int) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if max > 0 && len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return lines
}
