package exception

import "errors"

// ErrRecordNotFound custom database error for failure to find record
var ErrRecordNotFound = errors.New("record not found")

// ErrDuplicateID returned when a miner id is already registered
var ErrDuplicateID = errors.New("duplicate-id")

// ErrInvalidAddress returned when a miner address or port cannot be used
var ErrInvalidAddress = errors.New("invalid-address")

// ErrUnsupportedAdapterKind returned for adapter kinds outside the known set
var ErrUnsupportedAdapterKind = errors.New("unsupported-adapter-kind")

// ErrInvalidTuning returned when tuning parameters are out of range or not
// supported by the miner's adapter kind
var ErrInvalidTuning = errors.New("invalid-tuning")

// ErrRegistryCorrupt is fatal: persisted miner configuration violates the
// registry's invariants (e.g. two entries share an id)
var ErrRegistryCorrupt = errors.New("miner registry is corrupt")

// ErrScanNotFound returned when stopping a discovery scan that is not running
var ErrScanNotFound = errors.New("scan not found")
