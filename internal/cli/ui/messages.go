package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a structured CLI message
//
//	✗ INVALID METADATA: billing.subscribe
//	   service.fn: is required
//
//	   Did you mean: billing.subscription?
//
//	   → Validate leniently: opmeta validate --lenient
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Details     []string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders the message
func (m Message) Format() string {
	var (
		head, body *color.Color
		symbol     string
	)
	switch m.Level {
	case LevelWarning:
		head, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		head, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		head, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "✗"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if m.NoColor {
		for _, c := range []*color.Color{head, body, yellow, cyan} {
			c.DisableColor()
		}
	}

	var b strings.Builder
	if m.Context != "" {
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	for _, d := range m.Details {
		body.Fprintf(&b, "   %s\n", d)
	}
	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range m.Hints {
			cyan.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// Write writes the message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ValidationFailed describes invalid metadata for one route
func ValidationFailed(route string, verrs *opmeta.ValidationErrors, noColor bool) Message {
	problem := route
	if verrs.Op != "" {
		problem = fmt.Sprintf("%s (%s)", route, verrs.Op)
	}
	var details []string
	for _, path := range verrs.Paths() {
		for _, msg := range verrs.Fields[path] {
			details = append(details, fmt.Sprintf("%s: %s", path, msg))
		}
	}
	return Message{
		Level:   LevelError,
		Context: "invalid metadata",
		Problem: problem,
		Details: details,
		Hints:   []string{"Continue past invalid metadata: opmeta validate --lenient"},
		NoColor: noColor,
	}
}

// UnknownOp describes a reference to an operation that is not declared
func UnknownOp(ref string, known []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "unknown operation",
		Problem:     ref,
		Suggestions: FindSimilar(ref, known, DefaultMaxDistance, DefaultMaxSuggestions),
		Hints:       []string{"List operations: opmeta routes"},
		NoColor:     noColor,
	}
}

// ConfigFailed describes a configuration error
func ConfigFailed(err error, noColor bool) Message {
	return Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Hints:   []string{"Check opmeta.yaml and OPMETA_* environment variables"},
		NoColor: noColor,
	}
}

// Warning creates a warning message
func Warning(problem string, noColor bool) Message {
	return Message{Level: LevelWarning, Problem: problem, NoColor: noColor}
}
