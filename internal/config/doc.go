// Package config handles configuration loading for vpd-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VPD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/vpd/gateway.yaml
//  3. ~/.config/vpd/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${VPD_JWT_SECRET}"
//
// Syntax: ${VAR_NAME} or $VAR_NAME
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	analysis:
//	  timeout: "30s"
//	broadcast:
//	  heartbeat_interval: "1s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and WebSocket monitoring
//
// Storage backend (sqlite or supabase):
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "vpd.db"
//	    artifact_dir: "artifacts"
//	  supabase:
//	    project_url: "${SUPABASE_URL}"
//	    api_key: "${SUPABASE_API_KEY}"
//	    bucket: "audio-chunks"
//
// Analyzer service:
//
//	analysis:
//	  endpoint: "http://127.0.0.1:8500/analyze"
//	  timeout: "30s"
//
// Alert thresholds:
//
//	alerts:
//	  medium_threshold: 0.6
//	  high_threshold: 0.8
//
// Session lifecycle:
//
//	sessions:
//	  ttl: "10m"            # empty disables idle reaping
//	  reap_interval: "30s"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${VPD_JWT_SECRET}"   # empty disables auth
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Storage backend is sqlite or supabase
//   - Supabase credentials present when selected
//   - Analyzer endpoint presence
//   - Alert thresholds in (0, 1) with high above medium
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/vpd/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
