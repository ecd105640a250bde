// Package storage is the PostgreSQL implementation of the import storage
// port and of the catalog read side.
//
// Staged writes are held in memory until Commit. Commit applies them in one
// transaction, each write under its own savepoint so a refused row does not
// abort the rest of the batch. Runs of recipe-ingredient links go through
// COPY first and fall back to row inserts when the copy fails.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/korhy/cookbook/internal/core"
	db "github.com/korhy/cookbook/internal/database"
)

// DefaultCopyThreshold is the shortest run of links sent through COPY.
const DefaultCopyThreshold = 16

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	db.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements core.Store, core.Catalog, core.RunRecorder,
// core.RunHistory and core.HistoryPruner.
type Store struct {
	pool          Pool
	q             *db.Queries
	logger        *slog.Logger
	copyThreshold int

	mu         sync.Mutex
	strategy   map[core.EntityKind]core.IDStrategy
	pending    []core.StagedWrite
	generation uint64
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCopyThreshold sets the shortest link run sent through COPY. Zero
// disables COPY.
func WithCopyThreshold(n int) Option {
	return func(s *Store) { s.copyThreshold = n }
}

// New returns a store over pool.
func New(pool Pool, opts ...Option) *Store {
	s := &Store{
		pool:          pool,
		q:             db.New(pool),
		logger:        slog.Default(),
		copyThreshold: DefaultCopyThreshold,
		strategy:      make(map[core.EntityKind]core.IDStrategy),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ----------------------------------------------------------------------------
// Lookups
// ----------------------------------------------------------------------------

func (s *Store) FindCategoryBySlug(ctx context.Context, slug string) (*core.Category, error) {
	c, err := s.q.GetCategoryBySlug(ctx, slug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category %q: %w", slug, err)
	}
	return &core.Category{ID: c.ID, Name: c.Name, Slug: c.Slug}, nil
}

func (s *Store) FindCategoryByID(ctx context.Context, id int64) (*core.Category, error) {
	c, err := s.q.GetCategoryByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category %d: %w", id, err)
	}
	return &core.Category{ID: c.ID, Name: c.Name, Slug: c.Slug}, nil
}

func (s *Store) FindIngredientByID(ctx context.Context, id int64) (*core.Ingredient, error) {
	i, err := s.q.GetIngredientByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ingredient %d: %w", id, err)
	}
	return &core.Ingredient{ID: i.ID, Name: i.Name}, nil
}

func (s *Store) FindRecipeByID(ctx context.Context, id int64) (*core.Recipe, error) {
	r, err := s.q.GetRecipeByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recipe %d: %w", id, err)
	}
	rec := recipeFromRow(r)
	return &rec, nil
}

// ----------------------------------------------------------------------------
// Session
// ----------------------------------------------------------------------------

// SetIDStrategy takes effect for writes committed after the call.
func (s *Store) SetIDStrategy(_ context.Context, kind core.EntityKind, strategy core.IDStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy[kind] = strategy
	return nil
}

func (s *Store) Save(_ context.Context, w core.StagedWrite) error {
	if w.Entity == nil {
		return errors.New("nil entity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, w)
	return nil
}

// ResetSession discards uncommitted writes and invalidates handles.
func (s *Store) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.generation++
}

func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Pending returns the number of staged, uncommitted writes.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

var (
	_ core.Store         = (*Store)(nil)
	_ core.Catalog       = (*Store)(nil)
	_ core.RunRecorder   = (*Store)(nil)
	_ core.RunHistory    = (*Store)(nil)
	_ core.HistoryPruner = (*Store)(nil)
)
