package domain

import "errors"

// Sentinel errors returned by repositories and matched with errors.Is.
var (
	ErrNotPending  = errors.New("transaction is not pending")
	ErrDuplicate   = errors.New("duplicate record")
	ErrLockTimeout = errors.New("lock wait timed out")
	ErrConstraint  = errors.New("constraint violated")
)
