package oms

import "errors"

var (
	ErrIdentifierTimeout = errors.New("timed out waiting for order identifier")
	ErrCancelled         = errors.New("order request cancelled")
	ErrOrderNotFound     = errors.New("order request not found")
	ErrNotCancellable    = errors.New("order request already submitted")
	ErrStopped           = errors.New("coordinator stopped")
)
