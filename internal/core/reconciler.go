package core

import (
	"context"
	"fmt"
)

// Outcome reports how Resolve satisfied a key.
type Outcome int

const (
	// Reused means the key already existed in the store or earlier in this run.
	Reused Outcome = iota
	// Created means a new entity was staged (or, in dry-run, would have been).
	Created
	// Missing means the key does not exist and no builder was supplied.
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Reused:
		return "reused"
	case Created:
		return "created"
	default:
		return "missing"
	}
}

type keyState uint8

const (
	keyUnknown keyState = iota
	keyExists
	keyPlaceholder // dry-run: would have been created
	keyAbsent      // looked up, not found, not created
)

type batchEntry[T any] struct {
	entity     *T
	generation uint64
}

// Reconciler maps natural keys to persisted entities, reusing what exists
// and staging what does not.
//
// It keeps two caches. The run-scoped known map records the state of every
// key seen this run and is never evicted. The batch-scoped map holds entity
// handles loaded or staged in the current persistence session and must be
// cleared on every session reset; ClearBatch is meant to be registered as a
// BatchController reset hook. A handle whose generation no longer matches
// the store is reported as ErrStaleReference.
//
// Not safe for concurrent use.
type Reconciler[T any] struct {
	name   string
	store  Store
	lookup func(ctx context.Context, key string) (*T, error)
	stage  func(ctx context.Context, entity *T) error
	dryRun bool

	known   map[string]keyState
	batch   map[string]batchEntry[T]
	lookups int
}

// NewReconciler builds a reconciler. lookup queries the store by natural key;
// stage hands a newly built entity to the batch controller.
func NewReconciler[T any](
	name string,
	store Store,
	lookup func(ctx context.Context, key string) (*T, error),
	stage func(ctx context.Context, entity *T) error,
	dryRun bool,
) *Reconciler[T] {
	return &Reconciler[T]{
		name:   name,
		store:  store,
		lookup: lookup,
		stage:  stage,
		dryRun: dryRun,
		known:  make(map[string]keyState),
		batch:  make(map[string]batchEntry[T]),
	}
}

// Resolve returns the entity for key, building and staging a new one with
// build when it exists neither in this run nor in the store. A nil build
// makes Resolve lookup-only. In dry-run mode nothing is staged and new keys
// resolve to a nil placeholder that is remembered for the rest of the run.
func (r *Reconciler[T]) Resolve(ctx context.Context, key string, build func() *T) (*T, Outcome, error) {
	if e, ok := r.batch[key]; ok {
		if e.generation != r.store.Generation() {
			return nil, Missing, fmt.Errorf("%s %q: %w", r.name, key, ErrStaleReference)
		}
		return e.entity, Reused, nil
	}

	switch r.known[key] {
	case keyPlaceholder:
		return nil, Reused, nil
	case keyAbsent:
		if build == nil {
			return nil, Missing, nil
		}
	case keyExists, keyUnknown:
		// keyExists but evicted from the batch map: re-query for a fresh handle
		found, err := r.query(ctx, key)
		if err != nil {
			return nil, Missing, err
		}
		if found != nil {
			r.known[key] = keyExists
			r.batch[key] = batchEntry[T]{entity: found, generation: r.store.Generation()}
			return found, Reused, nil
		}
		if build == nil {
			r.known[key] = keyAbsent
			return nil, Missing, nil
		}
	}

	if r.dryRun {
		r.known[key] = keyPlaceholder
		return nil, Created, nil
	}

	entity := build()
	if err := r.stage(ctx, entity); err != nil {
		return nil, Missing, err
	}
	r.known[key] = keyExists
	r.batch[key] = batchEntry[T]{entity: entity, generation: r.store.Generation()}
	return entity, Created, nil
}

// Find is Resolve without creation.
func (r *Reconciler[T]) Find(ctx context.Context, key string) (*T, error) {
	e, _, err := r.Resolve(ctx, key, nil)
	return e, err
}

func (r *Reconciler[T]) query(ctx context.Context, key string) (*T, error) {
	r.lookups++
	found, err := r.lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup %s %q: %w", r.name, key, err)
	}
	return found, nil
}

// ClearBatch drops all session-bound handles. The known map is kept.
func (r *Reconciler[T]) ClearBatch() {
	clear(r.batch)
}

// Lookups returns how many store queries have been issued.
func (r *Reconciler[T]) Lookups() int { return r.lookups }

// Known returns the number of distinct keys seen this run.
func (r *Reconciler[T]) Known() int { return len(r.known) }
