// Package config handles configuration loading for coven-librarian.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_LIBRARIAN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/librarian.yaml
//  3. ~/.config/coven/librarian.yaml
//
// Files ending in .toml are read as TOML, anything else as YAML. Both use
// the same keys.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}:
//
//	llm:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	matrix:
//	  homeserver: "https://matrix.example.org"
//	  user_id: "@librarian:example.org"
//	  access_token: "${MATRIX_TOKEN}"     # or username + password
//	  allowed_rooms: ["!media:example.org"]
//
//	ssh:
//	  host: "nas.lan"                     # port 22 unless given
//	  user: "media"
//	  private_key_path: "~/.ssh/id_ed25519"
//	  timeout: "15s"
//
//	library:
//	  path: "/srv/library"
//
//	downloads:
//	  base_path: "/srv/downloads"
//	  transmission:
//	    url: "http://nas.lan:9091/transmission/rpc"
//	  jackett:                            # optional, enables search
//	    url: "http://nas.lan:9117"
//	    api_key: "${JACKETT_API_KEY}"
//
//	llm:
//	  model: "gpt-4o-mini"
//	  api_key: "${OPENAI_API_KEY}"
//
//	agents:
//	  max_depth: 10
//	  affinity_ttl: "1440h"
//	  sweep_interval: "10m"
//
//	dispatcher:
//	  workers: 4
//	  buffer_size: 1000
//
//	database:
//	  path: "~/.local/share/coven/librarian.db"   # empty disables the ledger
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax. Unset fields take the Default*
// constants. Validate reports the first invalid field.
package config
