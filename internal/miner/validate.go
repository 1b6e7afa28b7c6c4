package miner

import (
	"errors"
	"fmt"
	"net"
	"regexp"

	"github.com/robgonnella/hashwatch/internal/exception"
)

var (
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,62})(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,62}))*$`)
	dottedNumeric   = regexp.MustCompile(`^[0-9.]+$`)
)

// ValidationError is returned by configuration operations. Code is one of
// the exception sentinels so callers can use errors.Is.
type ValidationError struct {
	Code    error
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// Is matches the validation code
func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Code, target)
}

// Unwrap returns the validation code
func (e *ValidationError) Unwrap() error {
	return e.Code
}

func invalid(code error, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validate checks a config for everything except id uniqueness, which only
// the registry can decide
func Validate(c Config) error {
	if !c.Kind.Valid() {
		return invalid(exception.ErrUnsupportedAdapterKind, "kind", "unknown adapter kind %q", c.Kind)
	}

	if !ValidHost(c.Address) {
		return invalid(exception.ErrInvalidAddress, "address", "%q is not an ip address or hostname", c.Address)
	}

	if c.Port < 0 || c.Port > 65535 {
		return invalid(exception.ErrInvalidAddress, "port", "port %d out of range", c.Port)
	}

	if c.Pool.Port < 0 || c.Pool.Port > 65535 {
		return invalid(exception.ErrInvalidAddress, "pool.port", "port %d out of range", c.Pool.Port)
	}

	if c.PollInterval < 0 {
		return invalid(exception.ErrInvalidTuning, "pollInterval", "poll interval cannot be negative")
	}

	return ValidateTuning(c.Kind, c.Tuning)
}

// ValidateTuning checks tuning values against the kind's limits
func ValidateTuning(kind Kind, t Tuning) error {
	limits := kind.Limits()

	checks := []struct {
		name  string
		value *int
		limit *Range
	}{
		{"tuning.fanSpeed", t.FanSpeed, limits.FanSpeed},
		{"tuning.frequency", t.Frequency, limits.Frequency},
		{"tuning.powerLimit", t.PowerLimit, limits.PowerLimit},
	}

	for _, c := range checks {
		if c.value == nil {
			continue
		}

		if c.limit == nil {
			return invalid(exception.ErrInvalidTuning, c.name, "not supported by %s devices", kind)
		}

		if !c.limit.Contains(*c.value) {
			return invalid(
				exception.ErrInvalidTuning,
				c.name,
				"%d outside %d-%d",
				*c.value,
				c.limit.Min,
				c.limit.Max,
			)
		}
	}

	return nil
}

// ValidHost reports whether s is an ip address or a syntactically valid
// hostname
func ValidHost(s string) bool {
	if s == "" || len(s) > 253 {
		return false
	}

	if net.ParseIP(s) != nil {
		return true
	}

	// looks like an ipv4 address but did not parse as one
	if dottedNumeric.MatchString(s) {
		return false
	}

	return hostnamePattern.MatchString(s)
}
