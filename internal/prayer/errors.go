package prayer

import "fmt"

var (
	ErrConfigurationInvalid = &ConfigurationError{msg: "configuration invalid"}
)

// ConfigurationError reports an input that must be rejected before any day
// is processed. All instances match ErrConfigurationInvalid with errors.Is.
type ConfigurationError struct {
	Field string
	msg   string
}

// NewConfigurationError creates a configuration error for a named field
func NewConfigurationError(field, msg string) *ConfigurationError {
	return &ConfigurationError{Field: field, msg: msg}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.msg)
}

// Is makes every ConfigurationError match ErrConfigurationInvalid
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigurationInvalid
}
