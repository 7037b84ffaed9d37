package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Err, format, args...)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// newTable returns a table writer rendering to w in the CLI's style.
func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(header)

	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)

	return t
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	if n <= 3 {
		return string(r[:n])
	}

	return string(r[:n-3]) + "..."
}

// formatExpiry renders an expiry instant with the time remaining.
func formatExpiry(t, now time.Time) string {
	left := t.Sub(now).Round(time.Second)
	if left <= 0 {
		return t.Local().Format(time.DateTime) + " (expired)"
	}

	return fmt.Sprintf("%s (in %s)", t.Local().Format(time.DateTime), left)
}

var (
	greenCheck = color.GreenString("✓")
	redCross   = color.RedString("✗")
)
