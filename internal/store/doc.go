// Package store persists the librarian's turn ledger in SQLite.
//
// Every agent response that reaches a chat is recorded as a Turn: which
// agent produced it, the prompt it answered, the message it was sent as, its
// stop reason and the tool calls of that round. The ledger is append-only and
// is read back by the CLI's history command.
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) in WAL mode. The
// schema is created on open.
package store
