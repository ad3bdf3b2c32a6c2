// Package config handles configuration loading for graphrag-tui and graphrag-relay.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Missing values fall back to defaults, then the result is validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from GRAPHRAG_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/graphrag/config.yaml
//  4. ~/.config/graphrag/config.yaml
//
// A file ending in .toml is decoded as TOML, anything else as YAML.
//
// # Environment Variable Expansion
//
//	service:
//	  auth_secret: "${GRAPHRAG_AUTH_SECRET}"
//
// # Configuration Sections
//
//	service:
//	  base_url: "http://localhost:5005"
//	  search_path: "/agents/search"
//	  submit_path: "/queries"
//	  result_path: "/queries/result"
//	  request_timeout: "10s"
//	  max_requests_per_second: 5
//
//	polling:
//	  attempt_limit: 30
//	  interval: "1s"
//
//	storage:
//	  path: "~/.local/share/graphrag/settings.db"
//	  driver: "sqlite"            # sqlite (pure Go) or sqlite3 (cgo)
//	  plaintext_secrets: false
//
//	modes:
//	  - "GraphRag Entity-Focused Assistant"
//	  - "GraphRag Global Assistant"
//
//	relay:
//	  addr: "localhost:5005"
//	  answer_delay: "3s"
//	  agents:
//	    - name: "GraphRag Global Assistant"
//	      address: "agent1qglobal"
//	  tailscale:
//	    enabled: false
//	    hostname: "graphrag-relay"
//
//	logging:
//	  level: "warn"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # empty logs to stderr
package config
