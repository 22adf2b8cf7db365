package discovery

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a session that is not idle.
	ErrAlreadyStarted = errors.New("discovery already started")

	// ErrNotStarted is returned by Update before Start.
	ErrNotStarted = errors.New("discovery not started")

	// ErrStopped is returned by operations on a stopped session.
	ErrStopped = errors.New("discovery stopped")
)
