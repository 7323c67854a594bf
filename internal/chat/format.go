// ABOUTME: Renders agent responses into HTML chat replies.
// ABOUTME: Content and tool summaries are truncated independently and sanitized.

package chat

import (
	"bytes"
	"encoding/json"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-librarian/internal/agent"
)

// MaxBlockRunes bounds each block of a reply.
const MaxBlockRunes = 1900

// markdown renders without raw HTML passthrough, so model output cannot
// inject markup.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FormatResponse renders resp as the HTML body of a chat reply.
func FormatResponse(resp *agent.Response) string {
	var b strings.Builder

	if content := strings.TrimSpace(resp.Content); content != "" {
		b.WriteString("<blockquote>")
		b.WriteString(renderMarkdown(truncate(content, MaxBlockRunes)))
		b.WriteString("</blockquote>")
	}

	stop := resp.StopReason
	if resp.DepthExhausted {
		stop += " (depth exhausted)"
	}
	b.WriteString("<blockquote><pre><code>StopReason=")
	b.WriteString(html.EscapeString(stop))
	b.WriteString("</code>")

	if summary := toolSummary(resp.ToolCalls); summary != "" {
		b.WriteString("\n\n<code class=\"language-json\">")
		b.WriteString(html.EscapeString(truncate(summary, MaxBlockRunes)))
		b.WriteString("</code>")
	}
	b.WriteString("</pre></blockquote>")
	return b.String()
}

func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return strings.TrimSpace(buf.String())
}

// toolSummary renders one JSON line per tool call.
func toolSummary(calls []agent.ToolCallRecord) string {
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		data, err := json.Marshal(c)
		if err != nil {
			data, _ = json.Marshal(map[string]string{"name": c.Name, "error": err.Error()})
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
