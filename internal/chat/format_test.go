// ABOUTME: Tests for reply formatting.
// ABOUTME: Checks truncation bounds, markup sanitization and the tool summary block.

package chat

import (
	"encoding/json"
	"html"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-librarian/internal/agent"
)

func TestFormatResponse_ContentAndStopReason(t *testing.T) {
	out := FormatResponse(&agent.Response{Content: "Moved **two** files.", StopReason: "stop"})

	assert.Contains(t, out, "<strong>two</strong>")
	assert.Contains(t, out, "StopReason=stop")
	assert.NotContains(t, out, "language-json")
}

func TestFormatResponse_SanitizesContent(t *testing.T) {
	out := FormatResponse(&agent.Response{
		Content:    "<script>alert(1)</script> and [x](javascript:alert(1))",
		StopReason: "stop",
	})

	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
}

func TestFormatResponse_ToolSummaryEscaped(t *testing.T) {
	out := FormatResponse(&agent.Response{
		StopReason: "tool_calls",
		ToolCalls: []agent.ToolCallRecord{
			{ID: "1", Name: "move", Arguments: json.RawMessage(`{"sourcePath":"/lib/<b>"}`), Result: json.RawMessage(`{"status":"success"}`)},
			{ID: "2", Name: "cleanup", Error: "boom & bust"},
		},
	})

	assert.Contains(t, out, `<code class="language-json">`)
	assert.NotContains(t, out, "/lib/<b>")
	assert.Contains(t, out, "&#34;")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "cleanup")
	assert.NotContains(t, out, "<blockquote><p>", "empty content renders no content block")
}

func TestFormatResponse_DepthExhausted(t *testing.T) {
	out := FormatResponse(&agent.Response{StopReason: agent.StopDepthExhausted, DepthExhausted: true})
	assert.Contains(t, out, "StopReason=depth_exhausted (depth exhausted)")
}

func TestFormatResponse_TruncatesEachBlock(t *testing.T) {
	long := strings.Repeat("é", 5000)
	calls := make([]agent.ToolCallRecord, 200)
	for i := range calls {
		calls[i] = agent.ToolCallRecord{ID: "x", Name: "list_files", Result: json.RawMessage(`{"files":["` + strings.Repeat("a", 50) + `"]}`)}
	}

	out := FormatResponse(&agent.Response{Content: long, StopReason: "stop", ToolCalls: calls})

	assert.Equal(t, MaxBlockRunes, strings.Count(out, "é"))
	start := strings.Index(out, `language-json">`) + len(`language-json">`)
	end := strings.LastIndex(out, "</code>")
	assert.Equal(t, MaxBlockRunes, utf8.RuneCountInString(html.UnescapeString(out[start:end])))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", truncate("abc", 0))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "日本", truncate("日本語", 2))
}
