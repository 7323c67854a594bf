// ABOUTME: Chat transport contract and the inbound prompt value.
// ABOUTME: Transports stream prompts lazily and deliver HTML replies.

package chat

import (
	"context"
	"iter"
)

// Prompt is one inbound chat message.
type Prompt struct {
	ChatID    string
	MessageID string
	Sender    string
	Text      string
	// ReplyToMessageID is empty for messages that start a new thread.
	ReplyToMessageID string
}

// IsReply reports whether the prompt answers an earlier message.
func (p Prompt) IsReply() bool {
	return p.ReplyToMessageID != ""
}

// Transport delivers prompts from and responses to a chat service.
type Transport interface {
	// ReadPrompts streams inbound prompts until ctx is done or the
	// subscription fails. A failure is yielded once as the final element.
	ReadPrompts(ctx context.Context, bufferSize int) iter.Seq2[Prompt, error]
	// SendResponse posts html into chatID as a reply to replyTo and returns
	// the new message's id.
	SendResponse(ctx context.Context, chatID, html, replyTo string) (string, error)
}
