package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout indicates a stock lock could not be acquired within the
	// configured bound. No partial state was committed; the caller may retry
	// the whole operation.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// DuplicateError reports a uniqueness violation (SKU, order number,
// transaction number). Number generators retry with a fresh candidate
// before this reaches the caller.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Entity, e.Key)
}

// ValidationError reports a business rule violation on caller input that
// struct tags cannot express, such as threshold ordering rules.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// IntegrityError signals that an internal invariant was about to be broken.
// It is logged as a defect and never shown as an ordinary user error.
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %s", e.Detail)
}
