package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/universal-adapter/hubctl/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	title := session.Prompt
	if title == "" {
		title = "Session " + session.ID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", firstLine(title))

	if session.ConversationID != "" {
		_, _ = fmt.Fprintf(w, "**Conversation:** %s  \n", session.ConversationID)
	}
	_, _ = fmt.Fprintf(w, "**Phase:** %s  \n", session.Phase)
	if session.Metadata.Model != "" {
		_, _ = fmt.Fprintf(w, "**Model:** %s  \n", session.Metadata.Model)
	}
	_, _ = fmt.Fprintf(w, "**Tool calls:** %d  \n", session.Metadata.ToolCalls)
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(session.Messages))

	if session.Error != "" {
		_, _ = fmt.Fprintf(w, "> **Error:** %s\n\n", session.Error)
	}

	if session.Answer != "" {
		_, _ = fmt.Fprintf(w, "## Answer\n\n%s\n\n", session.Answer)
	}

	if len(session.References) > 0 {
		_, _ = fmt.Fprintf(w, "## References\n\n")
		for _, ref := range session.References {
			if ref.Label != "" {
				_, _ = fmt.Fprintf(w, "- [%s](%s)\n", ref.Label, ref.URL)
			} else {
				_, _ = fmt.Fprintf(w, "- <%s>\n", ref.URL)
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	if ft := session.ForgedTool; ft != nil {
		_, _ = fmt.Fprintf(w, "## Forged tool: %s\n\n", ft.Name)
		switch {
		case ft.Code != "":
			_, _ = fmt.Fprintf(w, "```%s\n%s\n```\n\n", ft.Language, strings.TrimRight(ft.Code, "\n"))
		case ft.CodeUnavailable:
			_, _ = fmt.Fprintf(w, "_Source code unavailable._\n\n")
		}
	}

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range session.Messages {
		timestamp := ""
		if msg.Timestamp != "" {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp)
		}

		content := escapeMarkdown(msg.Content)

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", msg.Actor, timestamp, content)

		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
