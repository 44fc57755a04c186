package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/universal-adapter/hubctl/internal"
	"golang.org/x/term"
)

const defaultWidth = 100

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	actorStyles = map[string]lipgloss.Style{
		"user":      lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		"assistant": lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Bold(true),
		"tool":      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"system":    lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
)

func actorStyle(actor string) lipgloss.Style {
	if s, ok := actorStyles[actor]; ok {
		return s
	}
	return metaStyle
}

// statusStyle colours a marketplace status
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "BETA":
		return warnStyle
	case "DEPRECATED":
		return failStyle
	default:
		return okStyle
	}
}

// termWidth returns the width of w when it is a terminal
func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && internal.IsTerminal(f) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return defaultWidth
}

// renderMarkdown renders the agent's markdown for a terminal. Anything
// that is not a terminal gets the markdown unchanged.
func renderMarkdown(w io.Writer, md string) string {
	if !internal.IsTerminal(w) {
		return md
	}
	style := "dark"
	if cfg != nil && cfg.Output.Style != "" {
		style = cfg.Output.Style
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(termWidth(w)-4),
	)
	if err != nil {
		internal.LogDebug("Markdown renderer unavailable: %v", err)
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		internal.LogDebug("Failed to render markdown: %v", err)
		return md
	}
	return out
}

// printCode writes source code, highlighted when w is a terminal
func printCode(w io.Writer, code, language string) {
	code = strings.TrimRight(code, "\n") + "\n"
	if internal.IsTerminal(w) {
		if err := quick.Highlight(w, code, lexerName(language), "terminal256", "monokai"); err == nil {
			return
		}
	}
	_, _ = fmt.Fprint(w, code)
}

func lexerName(language string) string {
	switch strings.ToLower(language) {
	case "", "py":
		return "python"
	case "ts":
		return "typescript"
	case "js":
		return "javascript"
	default:
		return strings.ToLower(language)
	}
}

// wrapText wraps s on word boundaries to at most width columns
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	var b strings.Builder
	for i, para := range strings.Split(s, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		col := 0
		for j, word := range strings.Fields(para) {
			n := len([]rune(word))
			if j > 0 {
				if col+1+n > width {
					b.WriteByte('\n')
					col = 0
				} else {
					b.WriteByte(' ')
					col++
				}
			}
			b.WriteString(word)
			col += n
		}
	}
	return b.String()
}

// truncate shortens s to max runes, marking the cut with "..."
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
