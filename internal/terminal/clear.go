// Package terminal provides small terminal helpers for the interactive prompts.
package terminal

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/term"
)

// ClearPreviousLines erases previously printed prompt text. It works out how
// many terminal lines the text wrapped into at the current width and clears
// each one with ANSI escapes, plus the line the cursor landed on after Enter.
// Used to remove password prompts from the scrollback once entered.
func ClearPreviousLines(textLength int) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}

	totalLines := int(math.Ceil(float64(textLength) / float64(termWidth)))
	if totalLines < 1 {
		totalLines = 1
	}

	// +1 for the new line the cursor moved to when the user pressed Enter.
	linesToClear := totalLines + 1
	for i := 0; i < linesToClear; i++ {
		fmt.Print("\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
