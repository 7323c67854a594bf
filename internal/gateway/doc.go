// Package gateway wires the librarian's components together.
//
// New builds, from a config.Config:
//
//   - a chat.MatrixTransport for prompts and replies
//   - a remote.Channel over an SSH shell for the library host
//   - a Transmission download manager and, when configured, a Jackett searcher
//   - an OpenAI-compatible completion client
//   - an agent.Registry with a download agent factory
//   - an optional SQLite turn ledger
//   - the dispatch.Dispatcher tying them together
//
// Run logs in to Matrix, starts the registry janitor and serves prompts until
// the context is cancelled. The component constructors (NewShell,
// NewDownloadManager, NewSearcher, NewCompleter, NewAgentFactory) are exported
// for CLI commands that need only part of the stack.
package gateway
