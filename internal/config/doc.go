// Package config handles configuration loading for paceline.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_secret: "${PACELINE_TOKEN_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "168h"
//	  challenge_ttl: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/paceline/paceline.db"
//
// Authentication:
//
//	auth:
//	  base_url: "https://paceline.example.com"
//	  rp_display_name: "paceline"
//	  token_secret: "${PACELINE_TOKEN_SECRET}"
//	  session_ttl: "168h"
//	  challenge_ttl: "5m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
