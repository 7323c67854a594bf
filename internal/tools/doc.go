// Package tools provides the closed set of tools available to download agents.
//
// # Tools
//
// Library tools (read-only unless noted):
//
//   - library_description: every library directory and the files inside it
//   - list_directories: directories under a library or download path
//   - list_files: files directly inside a library or download path
//   - move: rename a file or directory inside the library (mutating)
//
// Download tools:
//
//   - search: find downloadable items through the configured indexers
//   - download: start a download into <downloads>/<id>
//   - download_status: progress of a download
//   - cleanup: remove a download's folder and release it (mutating)
//
// # Parameters
//
// Each tool declares a JSON schema. Arguments that do not decode, or that
// omit a required field, fail with ErrInvalidParameters. Paths outside the
// configured roots fail with ErrOutsideLibrary before any remote command is
// issued.
//
// # Results
//
// Mutating tools return an envelope:
//
//	{"status": "success", "message": "...", ...}
//
// Failures are returned as errors; the agent records them as observations.
package tools
