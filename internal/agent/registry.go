// ABOUTME: Registry maps conversation correlation keys to live agents.
// ABOUTME: Entries expire at a fixed time after insertion; misses create new agents.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-librarian/internal/ttlcache"
)

// ErrUnsupportedAgentKind indicates no factory is registered for a kind.
var ErrUnsupportedAgentKind = errors.New("unsupported agent kind")

// Kind selects which tool set and prompt an agent is built with.
type Kind string

// KindDownload manages downloads and organises the remote library.
const KindDownload Kind = "download"

// CorrelationKey links a chat message to the agent handling its thread.
type CorrelationKey string

// Correlate derives the key for a message sent or received by sender.
// An empty message id yields the empty key, meaning "no thread".
func Correlate(messageID, sender string) CorrelationKey {
	if messageID == "" {
		return ""
	}
	return CorrelationKey(sender + "|" + messageID)
}

// Factory constructs a fresh agent of one kind.
type Factory func() (*Agent, error)

// Registry resolves correlation keys to agents.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory

	agents *ttlcache.Cache[*Agent]
	logger *slog.Logger
}

// NewRegistry creates a registry whose associations live for ttl.
// A non-positive maxEntries leaves the registry unbounded.
func NewRegistry(ttl time.Duration, maxEntries int, logger *slog.Logger, opts ...ttlcache.Option) *Registry {
	return &Registry{
		factories: make(map[Kind]Factory),
		agents:    ttlcache.New[*Agent](ttl, maxEntries, opts...),
		logger:    logger,
	}
}

// Register installs the factory for kind, replacing any previous one.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

func (r *Registry) factory(kind Kind) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Resolve returns the agent associated with source, creating one on a miss.
// A live association is returned unchanged. An empty source always yields a
// new agent that is not stored until Associate is called.
func (r *Registry) Resolve(kind Kind, source CorrelationKey) (*Agent, error) {
	f, ok := r.factory(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAgentKind, kind)
	}

	if source == "" {
		a, err := f()
		if err != nil {
			return nil, fmt.Errorf("creating %s agent: %w", kind, err)
		}
		r.logger.Info("agent created", "agent_id", a.ID(), "kind", kind)
		return a, nil
	}

	a, created, err := r.agents.GetOrCreate(string(source), f)
	if err != nil {
		return nil, fmt.Errorf("creating %s agent: %w", kind, err)
	}
	if created {
		r.logger.Info("agent created", "agent_id", a.ID(), "kind", kind, "correlation", source)
	} else {
		r.logger.Debug("agent resolved", "agent_id", a.ID(), "correlation", source)
	}
	return a, nil
}

// Associate maps key to a, overwriting any previous association. The entry
// expires a fixed duration from now regardless of later reads.
func (r *Registry) Associate(key CorrelationKey, a *Agent) {
	if key == "" || a == nil {
		return
	}
	r.agents.Set(string(key), a)
	r.logger.Debug("agent associated", "agent_id", a.ID(), "correlation", key)
}

// Len returns the number of stored associations, expired ones included until purged.
func (r *Registry) Len() int {
	return r.agents.Len()
}

// Sweep purges expired associations.
func (r *Registry) Sweep() int {
	return r.agents.Sweep()
}

// RunJanitor sweeps expired associations every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	r.agents.Run(ctx, interval)
}
