package upstream

import "fmt"

// ConfigError represents an unusable upstream configuration.
type ConfigError struct {
	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("upstream configuration error for field %q: %s", e.Field, e.Message)
}
