package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a webhook secret matches no channel.
	ErrUnauthorized = errors.New("invalid secret")

	// ErrNotFound is returned when a dashboard lookup misses or crosses tenants.
	ErrNotFound = errors.New("not found")
)

// StoreError wraps any entity store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// UpstreamError wraps a failure of an external collaborator (Agent-Brain,
// Telegram Bot API).
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
