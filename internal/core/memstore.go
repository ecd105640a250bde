package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, Catalog and RunRecorder. It backs
// validate-only runs and tests. It enforces the same constraints as the
// database schema: unique category slugs and unique assigned ids.
type MemoryStore struct {
	mu sync.Mutex

	categories  map[int64]Category
	slugs       map[string]int64
	ingredients map[int64]Ingredient
	recipes     map[int64]storedRecipe
	links       []RecipeIngredient
	stages      []RecordedStage

	strategy map[EntityKind]IDStrategy
	nextID   map[EntityKind]int64

	pending    []StagedWrite
	generation uint64
	commits    int
	lookups    int

	// FailWrite, when set, is consulted before each write at commit time;
	// a non-nil error rejects that write.
	FailWrite func(StagedWrite) error
}

type storedRecipe struct {
	Recipe
	categoryID int64
}

// NewMemoryStore returns an empty store with auto ids everywhere.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories:  make(map[int64]Category),
		slugs:       make(map[string]int64),
		ingredients: make(map[int64]Ingredient),
		recipes:     make(map[int64]storedRecipe),
		strategy:    make(map[EntityKind]IDStrategy),
		nextID:      make(map[EntityKind]int64),
	}
}

func (m *MemoryStore) FindCategoryBySlug(_ context.Context, slug string) (*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	id, ok := m.slugs[slug]
	if !ok {
		return nil, nil
	}
	c := m.categories[id]
	return &c, nil
}

func (m *MemoryStore) FindCategoryByID(_ context.Context, id int64) (*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	c, ok := m.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) FindIngredientByID(_ context.Context, id int64) (*Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	i, ok := m.ingredients[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

func (m *MemoryStore) FindRecipeByID(_ context.Context, id int64) (*Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	r, ok := m.recipes[id]
	if !ok {
		return nil, nil
	}
	out := m.hydrate(r)
	return &out, nil
}

func (m *MemoryStore) SetIDStrategy(_ context.Context, kind EntityKind, s IDStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategy[kind] = s
	return nil
}

func (m *MemoryStore) Save(_ context.Context, w StagedWrite) error {
	if w.Entity == nil {
		return errors.New("nil entity")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, w)
	return nil
}

// Commit applies pending writes in order. Rejected writes leave no trace.
// Committed entities get their generated id written back, as the database
// store does with RETURNING.
func (m *MemoryStore) Commit(_ context.Context) ([]RejectedWrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rejected []RejectedWrite
	for _, w := range m.pending {
		err := m.apply(w)
		if err != nil {
			rejected = append(rejected, RejectedWrite{StagedWrite: w, Err: err})
		}
	}
	m.pending = m.pending[:0]
	m.commits++
	return rejected, nil
}

func (m *MemoryStore) apply(w StagedWrite) error {
	if m.FailWrite != nil {
		if err := m.FailWrite(w); err != nil {
			return err
		}
	}

	switch e := w.Entity.(type) {
	case *Category:
		if _, ok := m.slugs[e.Slug]; ok {
			return fmt.Errorf("duplicate key value violates unique constraint on slug %q", e.Slug)
		}
		id, err := m.assignID(KindCategory, e.ID, func(id int64) bool { _, ok := m.categories[id]; return ok })
		if err != nil {
			return err
		}
		e.ID = id
		m.categories[id] = *e
		m.slugs[e.Slug] = id

	case *Ingredient:
		id, err := m.assignID(KindIngredient, e.ID, func(id int64) bool { _, ok := m.ingredients[id]; return ok })
		if err != nil {
			return err
		}
		e.ID = id
		m.ingredients[id] = *e

	case *Recipe:
		id, err := m.assignID(KindRecipe, e.ID, func(id int64) bool { _, ok := m.recipes[id]; return ok })
		if err != nil {
			return err
		}
		e.ID = id
		sr := storedRecipe{Recipe: *e}
		sr.Category = nil
		if e.Category != nil && e.Category.ID != 0 {
			sr.categoryID = e.Category.ID
		}
		m.recipes[id] = sr

	case *RecipeIngredient:
		m.links = append(m.links, *e)

	default:
		return fmt.Errorf("unsupported entity %T", w.Entity)
	}
	return nil
}

func (m *MemoryStore) assignID(kind EntityKind, id int64, exists func(int64) bool) (int64, error) {
	if m.strategy[kind] == IDAssigned {
		if id <= 0 {
			return 0, fmt.Errorf("%s: assigned id required", kind)
		}
		if exists(id) {
			return 0, fmt.Errorf("duplicate key value violates primary key on %s id %d", kind, id)
		}
		if id > m.nextID[kind] {
			m.nextID[kind] = id
		}
		return id, nil
	}
	for {
		m.nextID[kind]++
		if !exists(m.nextID[kind]) {
			return m.nextID[kind], nil
		}
	}
}

// ResetSession discards uncommitted writes and invalidates session handles.
func (m *MemoryStore) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = m.pending[:0]
	m.generation++
}

func (m *MemoryStore) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *MemoryStore) hydrate(r storedRecipe) Recipe {
	out := r.Recipe
	if c, ok := m.categories[r.categoryID]; ok && r.categoryID != 0 {
		out.Category = &c
	}
	return out
}

func (m *MemoryStore) ListCategories(_ context.Context) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListRecipes(_ context.Context, f RecipeFilter) ([]Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Recipe
	for _, r := range m.recipes {
		rec := m.hydrate(r)
		if f.CategorySlug != "" && (rec.Category == nil || rec.Category.Slug != f.CategorySlug) {
			continue
		}
		if f.MaxDuration != nil && (rec.Duration == nil || *rec.Duration > *f.MaxDuration) {
			continue
		}
		out = append(out, rec)
	}

	if f.MaxDuration != nil {
		sort.Slice(out, func(i, j int) bool {
			if *out[i].Duration != *out[j].Duration {
				return *out[i].Duration < *out[j].Duration
			}
			return out[i].ID > out[j].ID
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}

	if f.Offset >= len(out) {
		return []Recipe{}, nil
	}
	out = out[f.Offset:]
	if limit := NormalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetRecipe(_ context.Context, id int64) (*RecipeDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := &RecipeDetail{Recipe: m.hydrate(r), Lines: []IngredientLine{}}
	for _, l := range m.links {
		if l.RecipeID != id {
			continue
		}
		line := IngredientLine{IngredientID: l.IngredientID, Quantity: l.Quantity}
		if ing, ok := m.ingredients[l.IngredientID]; ok {
			line.Name = ing.Name
		}
		d.Lines = append(d.Lines, line)
	}
	return d, nil
}

func (m *MemoryStore) RecordStage(ctx context.Context, runID string, r *StageResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, RecordedStage{
		RunID:      runID,
		Stage:      r.Stage,
		File:       r.File,
		Processed:  r.Processed,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
		Rejected:   r.Rejected,
		Commits:    r.Commits,
		Duration:   r.Duration,
		FinishedAt: r.EndTime,
		Trigger:    TriggerFromContext(ctx),
		RemoteAddr: RemoteAddrFromContext(ctx),
	})
	return nil
}

func (m *MemoryStore) RecentStages(_ context.Context, limit int) ([]RecordedStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = NormalizeLimit(limit)
	out := make([]RecordedStage, 0, limit)
	for i := len(m.stages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.stages[i])
	}
	return out, nil
}

func (m *MemoryStore) PruneStages(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.stages[:0]
	var pruned int64
	for _, s := range m.stages {
		if s.FinishedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, s)
	}
	m.stages = kept
	return pruned, nil
}

// Counts reports committed rows per kind.
func (m *MemoryStore) Counts() map[EntityKind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[EntityKind]int{
		KindCategory:         len(m.categories),
		KindIngredient:       len(m.ingredients),
		KindRecipe:           len(m.recipes),
		KindRecipeIngredient: len(m.links),
	}
}

// Links returns a copy of the committed recipe-ingredient links.
func (m *MemoryStore) Links() []RecipeIngredient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecipeIngredient(nil), m.links...)
}

// Commits returns how many times Commit ran.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Lookups returns how many Find calls were served.
func (m *MemoryStore) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ Catalog       = (*MemoryStore)(nil)
	_ RunHistory    = (*MemoryStore)(nil)
	_ RunRecorder   = (*MemoryStore)(nil)
	_ HistoryPruner = (*MemoryStore)(nil)
)
