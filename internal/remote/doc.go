// Package remote executes filesystem operations on a host reachable only
// over a remote shell.
//
// # Shell
//
// Shell is the transport contract: Connect, Disconnect, IsConnected and
// Execute. SSHShell implements it with golang.org/x/crypto/ssh, using
// password or private key authentication and a known_hosts host key check.
//
// # Channel
//
// Channel turns filesystem intents into shell commands. Every operation runs
// inside one critical section:
//
//	lock → connect if needed → run commands → disconnect → unlock
//
// so remote operations are globally serialized and no connection outlives
// the operation that opened it.
//
// Operations:
//
//   - DescribeDirectory(path): directory → file names under it, recursively
//   - ListDirectories(path), ListFiles(path): existence-checked listings
//   - Move(src, dst): checks, parent creation, then an atomic rename
//   - RemoveDirectory(path), RemoveFile(path): idempotent deletes
//
// # Errors
//
// Missing paths fail with ErrPathNotFound and an existing move destination
// with ErrDestinationExists. Any output on a command's error stream becomes a
// *CommandError matching ErrRemoteCommandFailed and carrying the text
// verbatim.
package remote
