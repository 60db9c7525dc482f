package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/ormeta/internal/meta"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Details      []string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ ALIAS NOT FOUND: Dpt
//	   No registered class has the alias 'Dpt'.
//
//	   Did you mean: Dept?
//
//	   → See all aliases: ormeta aliases
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if opts.NoColor {
		for _, c := range []*color.Color{headerColor, bodyColor, yellow, cyan} {
			c.DisableColor()
		}
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	for _, detail := range opts.Details {
		bodyColor.Fprintf(&b, "     - %s\n", detail)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
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

// ClassNotFoundError reports a class name that no mapping or manifest knows
func ClassNotFoundError(name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     "class not found",
		Problem:     fmt.Sprintf("Cannot find class '%s'.", name),
		Suggestions: suggestions,
		HelpCommands: []string{
			"See every persistent type: ormeta order",
		},
		NoColor: noColor,
	})
}

// AliasNotFoundError reports an alias no registered class declares
func AliasNotFoundError(alias string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     "alias not found",
		Problem:     fmt.Sprintf("No registered class has the alias '%s'.", alias),
		Suggestions: suggestions,
		HelpCommands: []string{
			"See all aliases: ormeta aliases",
		},
		NoColor: noColor,
	})
}

// ResolutionError renders a metadata error with one detail line per nested
// failure, so every type that failed in a pass is listed.
func ResolutionError(err error, noColor bool) string {
	opts := ErrorOptions{
		Context: "metadata resolution failed",
		Problem: err.Error(),
		HelpCommands: []string{
			"Check the mapping documents listed under metadata.resources",
			"Get help: ormeta validate --help",
		},
		NoColor: noColor,
	}

	var me *meta.MetaDataError
	if errors.As(err, &me) && len(me.Nested) > 0 {
		opts.Problem = me.Message
		for _, nested := range me.Nested {
			opts.Details = append(opts.Details, nested.Error())
		}
	}
	return FormatError(opts)
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat ormeta.yml",
			"Get help: ormeta --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelWarning,
		Problem: message,
		NoColor: noColor,
	})
}
