package config

import "fmt"

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRequired checks that a string field is not empty.
func ValidateRequired(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidatePort checks that a port number is in range.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// ValidateOneOf checks that value is one of allowed.
func ValidateOneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("must be one of %v", allowed)}
}

// ValidateLogLevel checks that a log level is known.
func ValidateLogLevel(level string) error {
	return ValidateOneOf("logging.level", level, "debug", "info", "warn", "warning", "error", "fatal")
}

// Validator is implemented by config types that can validate themselves.
type Validator interface {
	Validate() error
}

// Validate calls cfg.Validate when cfg implements Validator.
func Validate(cfg any) error {
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}
	return nil
}
