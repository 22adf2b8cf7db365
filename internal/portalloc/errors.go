package portalloc

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNoAvailablePort is returned when every candidate port was rejected.
	ErrNoAvailablePort = errors.New("no available ports found")

	// ErrLocked matches any *LockedError through errors.Is.
	ErrLocked = errors.New("port is locked")
)

// LockedError reports an explicit port request that collides with a port
// issued by this process within the current lock window.
type LockedError struct {
	Port int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%d is locked", e.Port)
}

// Is lets errors.Is(err, ErrLocked) match.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// RangeError reports an invalid bound passed to Range.
type RangeError struct {
	Bound string // "from" or "to"
	Value int
	Msg   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("port range: `%s` = %d: %s", e.Bound, e.Value, e.Msg)
}

// InputError reports an invalid allocation request, detected before any I/O.
type InputError struct {
	Field string
	Value int
	Msg   string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Field, e.Value, e.Msg)
}

// IsLocked reports whether err is a lock collision.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// IsTransient reports whether a bind failure should move on to the next
// candidate instead of aborting the allocation.
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EACCES)
}

// isHostSkippable reports bind failures that only mean the address cannot
// be bound on this particular host, not that the port is taken.
func isHostSkippable(err error) bool {
	return errors.Is(err, syscall.EADDRNOTAVAIL) || errors.Is(err, syscall.EINVAL)
}
