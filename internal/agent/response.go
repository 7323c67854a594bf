// ABOUTME: Externally observable result of one agent round.
// ABOUTME: Carries content, stop reason and a record of every tool call made.

package agent

import (
	"encoding/json"
)

// StopDepthExhausted is the stop reason of a round cut short by the depth bound.
const StopDepthExhausted = "depth_exhausted"

// Response is the outcome of one completed round.
type Response struct {
	Content        string           `json:"content"`
	StopReason     string           `json:"stop_reason"`
	ToolCalls      []ToolCallRecord `json:"tool_calls,omitempty"`
	DepthExhausted bool             `json:"depth_exhausted,omitempty"`
	Round          int              `json:"round"`
}

// ToolCallRecord is one tool invocation and its outcome.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Observation renders the record as the tool message the model sees.
func (r ToolCallRecord) Observation() string {
	if r.Error != "" {
		data, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(data)
	}
	if len(r.Result) == 0 {
		return "{}"
	}
	return string(r.Result)
}
