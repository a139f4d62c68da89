package domain

import "errors"

// Sentinel errors for the taxonomy in spec.md §7, named the way
// original_source/src/error.rs names its error enum variants.
var (
	ErrNoNetwork       = errors.New("container has no network to derive a registry address from")
	ErrMissingID       = errors.New("event is missing a container id")
	ErrTagAlreadyGone  = errors.New("tag manifest already deleted")
	ErrDeleteDisabled  = errors.New("registry has manifest deletes disabled")
	ErrInvalidSchedule = errors.New("invalid cron schedule")
)
