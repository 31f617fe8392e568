// Package ui provides styled terminal output for the CLI commands.
// Styling is disabled automatically when stdout is not a TTY.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Printer writes styled lines to a terminal, or plain lines to a pipe.
type Printer struct {
	out    io.Writer
	styles Styles
}

// Config configures a Printer.
type Config struct {
	// Output defaults to os.Stdout.
	Output io.Writer
	// NoColor forces plain output even on a TTY.
	NoColor bool
}

// NewPrinter creates a printer, detecting TTY capability of the output.
func NewPrinter(cfg Config) *Printer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	noColor := cfg.NoColor || !isTerminal(out)
	return &Printer{out: out, styles: GetStyles(noColor)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Header prints a bold section header.
func (p *Printer) Header(text string) {
	fmt.Fprintln(p.out, p.styles.Header.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// KeyValue prints an aligned "label: value" line.
func (p *Printer) KeyValue(label, format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n",
		p.styles.Label.Render(fmt.Sprintf("%-22s", label+":")),
		p.styles.Value.Render(fmt.Sprintf(format, args...)))
}

// Dim prints a secondary line.
func (p *Printer) Dim(format string, args ...any) {
	fmt.Fprintln(p.out, p.styles.Dim.Render(fmt.Sprintf(format, args...)))
}

// Raw prints unstyled text without a trailing newline.
func (p *Printer) Raw(text string) {
	fmt.Fprint(p.out, text)
}
