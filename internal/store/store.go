// ABOUTME: Turn ledger types and the TurnStore interface
// ABOUTME: A Turn records one agent response delivered to a chat

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Turn is one agent response as it was delivered to a chat.
type Turn struct {
	ID              string
	AgentID         string
	ChatID          string
	PromptMessageID string
	ReplyMessageID  string
	Sender          string
	Prompt          string
	Content         string
	StopReason      string
	ToolCallsJSON   string // JSON array of tool call records, "[]" when none
	DepthExhausted  bool
	Round           int
	CreatedAt       time.Time
}

// TurnStore persists and lists delivered turns.
type TurnStore interface {
	// SaveTurn appends a turn. An empty ID is filled with a new UUID and a
	// zero CreatedAt with the current time.
	SaveTurn(ctx context.Context, turn *Turn) error

	// GetTurn returns the turn with the given ID or ErrNotFound.
	GetTurn(ctx context.Context, id string) (*Turn, error)

	// ListTurnsByAgent returns an agent's turns oldest first. A non-positive
	// limit returns all of them, otherwise only the most recent limit turns.
	ListTurnsByAgent(ctx context.Context, agentID string, limit int) ([]*Turn, error)

	// ListAgents returns the IDs of agents with at least one turn, most
	// recently active first.
	ListAgents(ctx context.Context, limit int) ([]AgentSummary, error)

	Close() error
}

// AgentSummary is the ledger's view of one agent's activity.
type AgentSummary struct {
	AgentID    string
	Turns      int
	LastTurnAt time.Time
}
