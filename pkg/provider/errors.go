// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMatch is returned when no registered factory accepts a hint.
	ErrNoMatch = errors.New("no backend matches configuration")
	// ErrAmbiguousMatch is returned when more than one factory accepts a hint.
	ErrAmbiguousMatch = errors.New("configuration matches more than one backend")
	// ErrDuplicateID is returned by Create when the identifier is taken.
	ErrDuplicateID = errors.New("provider already exists")
	// ErrNotFound is returned by mutating operations on an unknown identifier.
	ErrNotFound = errors.New("provider not found")
	// ErrDuplicateKind is returned when two factories share a kind name.
	ErrDuplicateKind = errors.New("backend kind already registered")
	// ErrClosed is returned by mutating operations after DisposeAll.
	ErrClosed = errors.New("registry is closed")
	// ErrInvalidID is returned for an empty or malformed identifier.
	ErrInvalidID = errors.New("invalid provider id")
)

// MatchError reports a capability-matching failure. It matches ErrNoMatch
// when Kinds is empty and ErrAmbiguousMatch otherwise.
type MatchError struct {
	Category string
	Hint     Hint
	Kinds    []string
}

func (e *MatchError) Error() string {
	if len(e.Kinds) == 0 {
		return fmt.Sprintf("%s: no backend matches hint %q", e.Category, e.Hint)
	}
	return fmt.Sprintf("%s: hint %q matches several backends: %s", e.Category, e.Hint, strings.Join(e.Kinds, ", "))
}

func (e *MatchError) Is(target error) bool {
	if len(e.Kinds) == 0 {
		return target == ErrNoMatch
	}
	return target == ErrAmbiguousMatch
}

// ConstructionFailedError wraps a factory Build failure, including a
// configuration that does not satisfy the factory's parameter schema.
type ConstructionFailedError struct {
	Category string
	Kind     string
	ID       string
	Cause    error
}

func (e *ConstructionFailedError) Error() string {
	return fmt.Sprintf("%s provider %q (kind %s): construction failed: %v", e.Category, e.ID, e.Kind, e.Cause)
}

func (e *ConstructionFailedError) Unwrap() error {
	return e.Cause
}

// CleanupFailedError is an advisory error: the provider is gone from the
// index but its backing store did not release or drop cleanly.
type CleanupFailedError struct {
	Category string
	ID       string
	Op       string // "dispose" or "remove_all"
	Cause    error
}

func (e *CleanupFailedError) Error() string {
	return fmt.Sprintf("%s provider %q: %s failed: %v", e.Category, e.ID, e.Op, e.Cause)
}

func (e *CleanupFailedError) Unwrap() error {
	return e.Cause
}

// InvalidConfigError lists schema violations of a configuration. Kind
// is empty when the tree was rejected before a backend was resolved.
type InvalidConfigError struct {
	Kind   string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	if e.Kind == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid %s configuration: %s", e.Kind, e.Reason)
}

func notFound(category, id string) error {
	return fmt.Errorf("%s provider %q: %w", category, id, ErrNotFound)
}
