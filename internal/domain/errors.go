// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity changed underneath the caller (e.g. a control
// was requested while another transition was still in flight).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed input that failed validation.
var ErrValidation = errors.New("validation failed")
