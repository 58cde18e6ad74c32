// Package entity resolves import rows into domain records. Every handler
// follows the same contract: look the record up by its identity key, create
// it when missing, and when the create loses a race against another writer
// read it again instead of failing.
package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/research-office/research-registry/internal/repository"
)

// ErrResolution marks row data that cannot be resolved into an entity,
// such as a malformed leader entry or an email that is not an address.
var ErrResolution = errors.New("entity resolution failed")

func resolutionErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrResolution, fmt.Sprintf(format, args...))
}

// Status tells how a resolution obtained its entity.
type Status int

const (
	// Found means the entity already existed.
	Found Status = iota
	// Created means this call inserted the entity.
	Created
	// ConflictRetried means the insert hit a unique key and a re-read
	// returned the record another writer created first.
	ConflictRetried
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Created:
		return "created"
	case ConflictRetried:
		return "conflict_retried"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Resolution is the outcome of a resolve-or-create call.
type Resolution[T any] struct {
	Entity T
	Status Status
}

// Created reports whether the entity was inserted by this call.
func (r Resolution[T]) Created() bool {
	return r.Status == Created
}

// resolveOrCreate runs find, then create, then find again when create
// reports a unique violation.
func resolveOrCreate[T any](
	ctx context.Context,
	kind string,
	find func(ctx context.Context) (*T, error),
	create func(ctx context.Context) (*T, error),
) (Resolution[*T], error) {
	existing, err := find(ctx)
	if err != nil {
		return Resolution[*T]{}, fmt.Errorf("find %s: %w", kind, err)
	}
	if existing != nil {
		return Resolution[*T]{Entity: existing, Status: Found}, nil
	}

	created, err := create(ctx)
	if err == nil {
		return Resolution[*T]{Entity: created, Status: Created}, nil
	}
	if !errors.Is(err, repository.ErrUniqueViolation) {
		return Resolution[*T]{}, fmt.Errorf("create %s: %w", kind, err)
	}

	existing, findErr := find(ctx)
	if findErr != nil {
		return Resolution[*T]{}, fmt.Errorf("find %s after conflict: %w", kind, findErr)
	}
	if existing == nil {
		return Resolution[*T]{}, fmt.Errorf("create %s: conflict not resolved by re-read: %w", kind, err)
	}
	return Resolution[*T]{Entity: existing, Status: ConflictRetried}, nil
}
