package model

import "errors"

// Record validation errors.
var (
	ErrInvalidTable    = errors.New("unknown table")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidTxType   = errors.New("invalid transaction type")
	ErrMissingSyncID   = errors.New("syncId must not be empty")
	ErrFloatAttribute  = errors.New("floats are forbidden in record attributes")
	ErrRecurringSource = errors.New("recurring source requires a pattern")
	ErrInvalidAttrs    = errors.New("invalid record attributes")
)
