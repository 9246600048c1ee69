// Package ui styles human-facing CLI output.
package ui

import (
	"fmt"
	"os"
)

// ANSI color and style constants for CLI output
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

// Enabled turns styling on. It is off when NO_COLOR is set.
var Enabled = os.Getenv("NO_COLOR") == ""

func style(codes, s string) string {
	if !Enabled {
		return s
	}
	return codes + s + ColorReset
}

func Bold(s string) string {
	return style(ColorBold, s)
}

func Success(s string) string {
	return style(ColorGreen, s)
}

func Info(s string) string {
	return style(ColorDim+ColorYellow, s)
}

func Error(s string) string {
	return style(ColorRed, s)
}

func Dim(s string) string {
	return style(ColorDim, s)
}

func Accent(s string) string {
	return style(ColorCyan, s)
}

// Field renders an aligned "Label: value" line
func Field(label string, value any) string {
	return fmt.Sprintf("  %s %v", Bold(fmt.Sprintf("%-9s", label+":")), value)
}

// Rule is the divider printed under section titles
func Rule() string {
	return Dim("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}
