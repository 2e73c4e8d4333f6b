package reader

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented indicates the command is recognized but the bus
	// transaction behind it does not exist yet.
	ErrNotImplemented = errors.New("not implemented")
	// ErrPollExhausted indicates a bounded poll gave up before the link
	// became ready.
	ErrPollExhausted = errors.New("poll exhausted")
)

// NotImplementedError is returned by stub commands.
type NotImplementedError struct {
	Command Command
	// Placeholders is the number of placeholder bytes emitted instead of data.
	Placeholders int
}

// Error implements error.
func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: %v (%d placeholder bytes)", e.Command, ErrNotImplemented, e.Placeholders)
}

// Is matches ErrNotImplemented.
func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}
