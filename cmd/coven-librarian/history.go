// ABOUTME: history command: reads the turn ledger
// ABOUTME: Lists recently active agents or prints every delivered turn of one agent

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-librarian/internal/config"
	"github.com/2389/coven-librarian/internal/store"
)

const defaultHistoryLimit = 20

type historyArgs struct {
	AgentID string
	Limit   int
}

// parseHistoryArgs supports "[agent-id] [--limit N | --limit=N]".
func parseHistoryArgs(args []string) (historyArgs, error) {
	h := historyArgs{Limit: defaultHistoryLimit}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var raw string
		switch {
		case arg == "--limit" || arg == "-n":
			if i+1 >= len(args) {
				return h, fmt.Errorf("%s requires a value", arg)
			}
			raw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--limit="):
			raw = strings.TrimPrefix(arg, "--limit=")
		case strings.HasPrefix(arg, "-"):
			return h, fmt.Errorf("unknown flag: %s", arg)
		default:
			if h.AgentID != "" {
				return h, fmt.Errorf("unexpected argument: %s", arg)
			}
			h.AgentID = arg
			continue
		}

		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return h, fmt.Errorf("invalid limit %q", raw)
		}
		h.Limit = n
	}
	return h, nil
}

func runHistory(ctx context.Context, args []string) error {
	h, err := parseHistoryArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is not set; the turn ledger is disabled")
	}

	// Keep store logs out of the listing.
	setupLogger(config.LoggingConfig{Level: "error", Format: cfg.Logging.Format}, os.Stderr)

	s, err := store.NewSQLiteStore(cfg.Database.Path, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	if h.AgentID == "" {
		agents, err := s.ListAgents(ctx, h.Limit)
		if err != nil {
			return err
		}
		printAgents(os.Stdout, agents)
		return nil
	}

	turns, err := s.ListTurnsByAgent(ctx, h.AgentID, h.Limit)
	if err != nil {
		return err
	}
	printTurns(os.Stdout, turns)
	return nil
}

func printAgents(w io.Writer, agents []store.AgentSummary) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No turns recorded yet.")
		return
	}
	for _, a := range agents {
		fmt.Fprintf(w, "%s  %3d turn(s)  last %s\n", a.AgentID, a.Turns, a.LastTurnAt.Local().Format("2006-01-02 15:04"))
	}
}

func printTurns(w io.Writer, turns []*store.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "No turns for this agent.")
		return
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	lastPrompt := ""
	for _, t := range turns {
		if t.PromptMessageID != lastPrompt {
			fmt.Fprintln(w)
			cyan.Fprintf(w, "%s %s: ", t.CreatedAt.Local().Format("2006-01-02 15:04"), t.Sender)
			fmt.Fprintln(w, t.Prompt)
			lastPrompt = t.PromptMessageID
		}

		stop := t.StopReason
		if t.DepthExhausted {
			stop += " (depth exhausted)"
		}
		gray.Fprintf(w, "  round %d  %s\n", t.Round, stop)

		for _, call := range toolCallNames(t.ToolCallsJSON) {
			yellow.Fprintf(w, "    → %s\n", call)
		}
		if content := strings.TrimSpace(t.Content); content != "" {
			for _, line := range strings.Split(content, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

// toolCallNames extracts "name" or "name: error" per recorded tool call.
func toolCallNames(raw string) []string {
	var calls []struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		return nil
	}
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		if c.Error != "" {
			names = append(names, c.Name+": "+c.Error)
			continue
		}
		names = append(names, c.Name)
	}
	return names
}
