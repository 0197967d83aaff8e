package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/composer"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// renderReply prints a turn reply for the terminal chat.
func renderReply(w io.Writer, r composer.Reply) {
	fmt.Fprintln(w, colorize(colorBold, "assistant: ")+r.Text)

	for _, p := range r.Products {
		line := fmt.Sprintf("  %d. %s  %s", p.Position, p.Name, colorize(colorGreen, p.PriceText))
		if p.Color != "" {
			line += colorize(colorDim, "  "+p.Color)
		}
		fmt.Fprintln(w, line)
	}

	if c := r.Clarify; c != nil {
		for _, o := range c.Options {
			fmt.Fprintf(w, "  %d. %s\n", o.Index, o.Name)
		}
		for _, g := range c.Groups {
			labels := make([]string, len(g.Chips))
			for i, ch := range g.Chips {
				labels[i] = "[" + ch.Label + "]"
			}
			fmt.Fprintf(w, "  %s %s\n", g.Question, colorize(colorCyan, strings.Join(labels, " ")))
		}
	}

	if r.Confirm != nil {
		fmt.Fprintln(w, colorize(colorCyan, "  [yes] [no]"))
	}

	if c := r.Cart; c != nil {
		for _, l := range c.Lines {
			fmt.Fprintf(w, "  %dx %s  %s\n", l.Quantity, l.Name, l.LineTotal)
		}
		if c.MediaRef != "" {
			fmt.Fprintln(w, colorize(colorDim, "  screenshot: "+c.MediaRef))
		}
	}

	if t := r.Totals; t != nil {
		fmt.Fprintf(w, "  subtotal %s  tax %s  %s\n", t.Subtotal, t.Tax, colorize(colorBold, "total "+t.Total))
	}
}
