package cliui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// markdownWidth is the word-wrap column for rendered answers.
const markdownWidth = 80

// RenderMarkdown renders markdown content for terminal display using
// glamour. The style follows the terminal background of out, and a nil out
// renders without color. On failure the raw content is returned alongside
// the error.
func RenderMarkdown(content string, out *os.File) (string, error) {
	style := "notty"
	if out != nil && ColorEnabled(out) {
		style = "light"
		if termenv.NewOutput(out).HasDarkBackground() {
			style = "dark"
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(markdownWidth),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
