// Package config provides configuration management for the relay.
//
// Configuration is loaded from a YAML file, completed with defaults, overridden
// by environment variables and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD:
//
//   - RELAY_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - RELAY_UPSTREAM_API_KEY overrides upstream.api_key
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// The API key is best supplied through the environment so it never lands in
// a configuration file.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	upstream:
//	  model: "gemini-1.5-flash"
//	  api_key_location: "header"
//
//	retry:
//	  max_attempts: 5
//	  base_delay: "1s"
//
//	profile:
//	  persona_file: "./persona.txt"
//	  knowledge_file: "./knowledge.txt"
//	  watch: true
//
// A loaded Config is treated as immutable. Values that change at runtime
// (persona and knowledge base) live in the profile package instead.
package config
