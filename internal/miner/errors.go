package miner

import (
	"errors"
	"fmt"
)

// ConnectReason classifies connection failures
type ConnectReason string

// Connection failure reasons
const (
	ConnectTimeout ConnectReason = "timeout"
	ConnectRefused ConnectReason = "refused"
	ConnectDNS     ConnectReason = "dns"
)

// ConnectError is returned when a device could not be reached
type ConnectError struct {
	Reason  ConnectReason
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Address, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// FetchReason classifies telemetry fetch failures
type FetchReason string

// Fetch failure reasons
const (
	FetchTimeout      FetchReason = "timeout"
	FetchMalformed    FetchReason = "malformed-payload"
	FetchSchemaDrift  FetchReason = "schema-drift"
	FetchUnauthorized FetchReason = "unauthorized"
)

// FetchError is returned when a device answered but no snapshot could be
// produced from the answer (or the answer never arrived in time)
type FetchError struct {
	Reason FetchReason
	// Field names the payload field or selector involved, when known
	Field string
	Err   error
}

func (e *FetchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("fetch: %s (%s): %v", e.Reason, e.Field, e.Err)
	}

	return fmt.Sprintf("fetch: %s: %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SettingsReason classifies settings failures
type SettingsReason string

// Settings failure reasons
const (
	SettingsRejected    SettingsReason = "rejected"
	SettingsUnsupported SettingsReason = "unsupported-parameter"
)

// SettingsError is returned when a device refused or cannot take a setting
type SettingsError struct {
	Reason SettingsReason
	Param  string
	Err    error
}

func (e *SettingsError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("settings: %s (%s): %v", e.Reason, e.Param, e.Err)
	}

	return fmt.Sprintf("settings: %s: %v", e.Reason, e.Err)
}

func (e *SettingsError) Unwrap() error {
	return e.Err
}

// ScanReason classifies per-probe discovery failures
type ScanReason string

// Discovery failure reasons
const (
	ScanHostUnreachable ScanReason = "host-unreachable"
	ScanProbeTimeout    ScanReason = "probe-timeout"
)

// ScanError is attached to unresponsive discovery results
type ScanError struct {
	Reason ScanReason
	Host   string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.Host, e.Reason, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError
func NewFetchError(reason FetchReason, field string, err error) *FetchError {
	if err == nil {
		err = errors.New(string(reason))
	}

	return &FetchError{Reason: reason, Field: field, Err: err}
}

// NewSettingsError builds a SettingsError
func NewSettingsError(reason SettingsReason, param string, err error) *SettingsError {
	if err == nil {
		err = errors.New(string(reason))
	}

	return &SettingsError{Reason: reason, Param: param, Err: err}
}

// ErrorClass returns "<family>/<reason>" for taxonomy errors, e.g.
// "fetch/timeout", and "internal" for anything else
func ErrorClass(err error) string {
	var connErr *ConnectError
	var fetchErr *FetchError
	var settingsErr *SettingsError
	var scanErr *ScanError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return "connect/" + string(connErr.Reason)
	case errors.As(err, &fetchErr):
		return "fetch/" + string(fetchErr.Reason)
	case errors.As(err, &settingsErr):
		return "settings/" + string(settingsErr.Reason)
	case errors.As(err, &scanErr):
		return "scan/" + string(scanErr.Reason)
	default:
		return "internal"
	}
}

// IsPersistent reports failures that will not clear up on a quick retry
// (bad dns name, wrong credentials, page layout changed)
func IsPersistent(err error) bool {
	var connErr *ConnectError
	var fetchErr *FetchError

	if errors.As(err, &connErr) {
		return connErr.Reason == ConnectDNS
	}

	if errors.As(err, &fetchErr) {
		return fetchErr.Reason == FetchUnauthorized || fetchErr.Reason == FetchSchemaDrift
	}

	return false
}
