// Package report renders the summary of a moderation run.
package report

import (
	"fmt"
	"io"

	"github.com/ppiankov/flaircheck/internal/bot"
)

// Formatter writes a run report to w.
type Formatter interface {
	Format(w io.Writer, rep bot.RunReport) error
}

const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
)

// New returns the formatter for name. color only affects terminal output.
func New(name string, color bool) (Formatter, error) {
	switch name {
	case "", FormatTerminal:
		return NewTerminal(color), nil
	case FormatJSON:
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown report format %q (want %s or %s)", name, FormatTerminal, FormatJSON)
	}
}
