// ABOUTME: Tool contract used by agents and the fixed catalog built at startup.
// ABOUTME: Tools are looked up by name and described to the model via JSON schemas.

package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/coven-librarian/internal/llm"
)

// Tool is a named unit of work the model may invoke.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON schema of the tool's parameters.
	Schema() json.RawMessage
	Run(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// Catalog is an immutable, ordered set of tools keyed by name.
type Catalog struct {
	byName  map[string]Tool
	ordered []Tool
}

// NewCatalog builds a catalog. Duplicate or empty names are rejected.
func NewCatalog(tools ...Tool) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		c.byName[name] = t
		c.ordered = append(c.ordered, t)
	}
	return c, nil
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.ordered))
	for i, t := range c.ordered {
		names[i] = t.Name()
	}
	return names
}

// Schemas describes every tool to the completion engine.
func (c *Catalog) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, len(c.ordered))
	for i, t := range c.ordered {
		schemas[i] = llm.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		}
	}
	return schemas
}
