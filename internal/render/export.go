// Package render turns chat transcripts into export documents.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// exportMarkdown is a shared goldmark instance with the GFM extensions,
// matching what the web frontend renders.
var exportMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// Message is one transcript entry to export.
type Message struct {
	Role      string
	Content   string // markdown
	CreatedAt string
}

// SessionHTML renders a transcript as a standalone HTML document. Message
// bodies go through goldmark; a body that fails to convert is escaped and
// kept as preformatted text.
func SessionHTML(title string, messages []Message) []byte {
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("<style>\n")
	sb.WriteString(exportCSS)
	sb.WriteString("</style>\n</head>\n<body>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", html.EscapeString(title))

	for _, m := range messages {
		fmt.Fprintf(&sb, "<section class=%q>\n", "message "+roleClass(m.Role))
		sb.WriteString("<div class=\"meta\">")
		sb.WriteString(html.EscapeString(RoleLabel(m.Role)))
		if m.CreatedAt != "" {
			fmt.Fprintf(&sb, " <time>%s</time>", html.EscapeString(m.CreatedAt))
		}
		sb.WriteString("</div>\n")
		sb.WriteString(bodyHTML(m.Content))
		sb.WriteString("</section>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String())
}

// SessionMarkdown renders a transcript as one markdown document with a
// heading per message.
func SessionMarkdown(title string, messages []Message) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n", title)
	for _, m := range messages {
		sb.WriteString("\n## ")
		sb.WriteString(RoleLabel(m.Role))
		if m.CreatedAt != "" {
			sb.WriteString(" (")
			sb.WriteString(m.CreatedAt)
			sb.WriteString(")")
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimRight(m.Content, "\n"))
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}

// RoleLabel maps wire roles to display names.
func RoleLabel(role string) string {
	switch role {
	case "user":
		return "You"
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	case "tool":
		return "Tool"
	default:
		return role
	}
}

func roleClass(role string) string {
	switch role {
	case "user", "assistant", "system", "tool":
		return role
	default:
		return "other"
	}
}

func bodyHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := exportMarkdown.Convert([]byte(md), &buf); err != nil {
		// Fallback: keep the raw text readable.
		return "<pre>" + html.EscapeString(md) + "</pre>\n"
	}
	return buf.String()
}

const exportCSS = `body {
  max-width: 46rem;
  margin: 2rem auto;
  padding: 0 1rem;
  font-family: system-ui, sans-serif;
  line-height: 1.5;
}
section.message {
  margin: 1.5rem 0;
  padding: 0.75rem 1rem;
  border-left: 3px solid #ccc;
}
section.user { border-color: #00add8; }
section.assistant { border-color: #a8cc8c; }
.meta {
  font-size: 0.85rem;
  font-weight: 600;
  color: #555;
  margin-bottom: 0.5rem;
}
.meta time { font-weight: 400; }
pre {
  background: #f5f5f5;
  padding: 0.75rem;
  overflow-x: auto;
}
code { font-family: ui-monospace, monospace; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.25rem 0.5rem; }
`
