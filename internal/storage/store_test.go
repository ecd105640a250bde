package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/korhy/cookbook/internal/core"
	db "github.com/korhy/cookbook/internal/database"
)

// ============================================================================
// Fake transaction
// ============================================================================

// fakeTx records statements by query name and fails the ones failOn selects.
// Unused pgx.Tx methods panic through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	log       []string
	failOn    func(name string, args []any) error
	copyErr   error
	commitErr error
	nextID    int64
	committed bool
	copied    int
}

func queryName(sql string) string {
	if strings.HasPrefix(sql, "-- name: ") {
		return strings.Fields(sql)[2]
	}
	return sql
}

func (f *fakeTx) fail(name string, args []any) error {
	if f.failOn == nil {
		return nil
	}
	return f.failOn(name, args)
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	name := queryName(sql)
	f.log = append(f.log, name)
	if err := f.fail(name, args); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported")
}

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.id
	return nil
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	name := queryName(sql)
	f.log = append(f.log, name)
	if err := f.fail(name, args); err != nil {
		return fakeRow{err: err}
	}
	f.nextID++
	return fakeRow{id: f.nextID}
}

func (f *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	f.log = append(f.log, "COPY "+table.Sanitize())
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	var n int64
	for src.Next() {
		n++
	}
	f.copied += int(n)
	return n, nil
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct {
	*fakeTx
	beginErr error
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.fakeTx, nil
}

func newFakeStore(tx *fakeTx, opts ...Option) (*Store, *fakePool) {
	pool := &fakePool{fakeTx: tx}
	return New(pool, opts...), pool
}

func count(log []string, name string) int {
	n := 0
	for _, l := range log {
		if l == name {
			n++
		}
	}
	return n
}

func contains(log []string, name string) bool { return count(log, name) > 0 }

func save(t *testing.T, s *Store, line int, e core.Entity) {
	t.Helper()
	if err := s.Save(context.Background(), core.StagedWrite{File: "f.csv", Line: line, Entity: e}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

// ============================================================================
// Commit
// ============================================================================

func TestCommit_AutoIDsWrittenBackAfterCommit(t *testing.T) {
	tx := &fakeTx{}
	s, _ := newFakeStore(tx)
	a := &core.Category{Name: "Desserts", Slug: "desserts"}
	b := &core.Category{Name: "Plats", Slug: "plats"}
	save(t, s, 2, a)
	save(t, s, 3, b)

	rejected, err := s.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("rejected = %v", rejected)
	}
	if !tx.committed {
		t.Fatal("transaction not committed")
	}
	if a.ID != 1 || b.ID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", a.ID, b.ID)
	}
	for _, want := range []string{"SAVEPOINT sp_0", "RELEASE SAVEPOINT sp_0", "SAVEPOINT sp_1", "RELEASE SAVEPOINT sp_1"} {
		if !contains(tx.log, want) {
			t.Errorf("missing %q in %v", want, tx.log)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d after commit", s.Pending())
	}
}

func TestCommit_RejectedRowRollsBackToSavepoint(t *testing.T) {
	tx := &fakeTx{failOn: func(name string, args []any) error {
		if name == "InsertIngredientWithID" && args[0] == int64(2) {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key"}
		}
		return nil
	}}
	s, _ := newFakeStore(tx)
	ctx := context.Background()
	if err := s.SetIDStrategy(ctx, core.KindIngredient, core.IDAssigned); err != nil {
		t.Fatal(err)
	}
	save(t, s, 2, &core.Ingredient{ID: 1, Name: "Sucre"})
	save(t, s, 3, &core.Ingredient{ID: 2, Name: "Beurre"})
	save(t, s, 4, &core.Ingredient{ID: 3, Name: "Farine"})

	rejected, err := s.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Line != 3 {
		t.Fatalf("rejected = %+v, want line 3", rejected)
	}
	var pgErr *pgconn.PgError
	if !errors.As(rejected[0].Err, &pgErr) {
		t.Errorf("rejection error %v does not wrap the database error", rejected[0].Err)
	}
	if !contains(tx.log, "ROLLBACK TO SAVEPOINT sp_1") {
		t.Errorf("no rollback to sp_1 in %v", tx.log)
	}
	if count(tx.log, "ResyncIngredientIDs") != 1 {
		t.Errorf("sequence not resynced: %v", tx.log)
	}
	if !tx.committed {
		t.Error("transaction not committed")
	}
}

func TestCommit_AssignedStrategyRequiresID(t *testing.T) {
	tx := &fakeTx{}
	s, _ := newFakeStore(tx)
	ctx := context.Background()
	_ = s.SetIDStrategy(ctx, core.KindRecipe, core.IDAssigned)
	save(t, s, 2, &core.Recipe{Title: "Tarte", Slug: "tarte"})

	rejected, err := s.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(rejected))
	}
	if contains(tx.log, "InsertRecipeWithID") {
		t.Error("insert issued for a recipe without id")
	}
	if contains(tx.log, "ResyncRecipeIDs") {
		t.Error("resync issued although nothing was assigned")
	}
}

func links(n int) []*core.RecipeIngredient {
	out := make([]*core.RecipeIngredient, n)
	for i := range out {
		q := float64(i)
		out[i] = &core.RecipeIngredient{RecipeID: 1, IngredientID: int64(i + 1), Quantity: &q}
	}
	return out
}

func TestCommit_CopyFastPath(t *testing.T) {
	tx := &fakeTx{}
	s, _ := newFakeStore(tx, WithCopyThreshold(3))
	for i, l := range links(4) {
		save(t, s, i+2, l)
	}

	rejected, err := s.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("rejected = %v", rejected)
	}
	if tx.copied != 4 {
		t.Errorf("copied = %d, want 4", tx.copied)
	}
	if contains(tx.log, "InsertRecipeIngredient") {
		t.Error("row inserts issued alongside COPY")
	}
}

func TestCommit_CopyFailureFallsBackToRows(t *testing.T) {
	tx := &fakeTx{
		copyErr: &pgconn.PgError{Code: "23503", Message: "foreign key violation"},
		failOn: func(name string, args []any) error {
			if name == "InsertRecipeIngredient" && args[1] == int64(2) {
				return &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
			}
			return nil
		},
	}
	s, _ := newFakeStore(tx, WithCopyThreshold(2))
	for i, l := range links(3) {
		save(t, s, i+2, l)
	}

	rejected, err := s.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := count(tx.log, "InsertRecipeIngredient"); got != 3 {
		t.Errorf("row inserts = %d, want 3", got)
	}
	if !contains(tx.log, "ROLLBACK TO SAVEPOINT sp_copy_0") {
		t.Errorf("copy savepoint not rolled back: %v", tx.log)
	}
	if len(rejected) != 1 || rejected[0].Line != 3 {
		t.Errorf("rejected = %+v, want line 3", rejected)
	}
}

func TestCommit_CopyDisabled(t *testing.T) {
	tx := &fakeTx{}
	s, _ := newFakeStore(tx, WithCopyThreshold(0))
	for i, l := range links(20) {
		save(t, s, i+2, l)
	}
	if _, err := s.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if tx.copied != 0 {
		t.Errorf("copied = %d with COPY disabled", tx.copied)
	}
	if got := count(tx.log, "InsertRecipeIngredient"); got != 20 {
		t.Errorf("row inserts = %d, want 20", got)
	}
}

func TestCommit_SavepointFailureIsFatal(t *testing.T) {
	tx := &fakeTx{failOn: func(name string, _ []any) error {
		if name == "SAVEPOINT sp_0" {
			return errors.New("connection reset")
		}
		return nil
	}}
	s, _ := newFakeStore(tx)
	save(t, s, 2, &core.Category{Name: "A", Slug: "a"})

	if _, err := s.Commit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if tx.committed {
		t.Error("transaction committed after savepoint failure")
	}
}

func TestCommit_FailedCommitKeepsEntitiesUnchanged(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	s, _ := newFakeStore(tx)
	c := &core.Category{Name: "A", Slug: "a"}
	save(t, s, 2, c)

	if _, err := s.Commit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if c.ID != 0 {
		t.Errorf("id = %d written back after failed commit", c.ID)
	}
}

func TestCommit_BeginFailure(t *testing.T) {
	s, pool := newFakeStore(&fakeTx{})
	pool.beginErr = errors.New("pool closed")
	save(t, s, 2, &core.Category{Name: "A", Slug: "a"})

	if _, err := s.Commit(context.Background()); err == nil || !strings.Contains(err.Error(), "pool closed") {
		t.Fatalf("err = %v", err)
	}
}

func TestCommit_Empty(t *testing.T) {
	s, pool := newFakeStore(&fakeTx{})
	pool.beginErr = errors.New("must not begin")
	rejected, err := s.Commit(context.Background())
	if err != nil || rejected != nil {
		t.Fatalf("Commit on empty session = %v, %v", rejected, err)
	}
}

func TestResetSession(t *testing.T) {
	s, _ := newFakeStore(&fakeTx{})
	save(t, s, 2, &core.Category{Name: "A", Slug: "a"})
	gen := s.Generation()

	s.ResetSession()

	if s.Pending() != 0 {
		t.Errorf("Pending = %d after reset", s.Pending())
	}
	if s.Generation() != gen+1 {
		t.Errorf("Generation = %d, want %d", s.Generation(), gen+1)
	}
}

func TestSave_NilEntity(t *testing.T) {
	s, _ := newFakeStore(&fakeTx{})
	if err := s.Save(context.Background(), core.StagedWrite{}); err == nil {
		t.Fatal("expected error for nil entity")
	}
}

// ============================================================================
// Helpers
// ============================================================================

func TestLinkRun(t *testing.T) {
	l := core.StagedWrite{Entity: &core.RecipeIngredient{}}
	r := core.StagedWrite{Entity: &core.Recipe{}}

	tests := []struct {
		name   string
		writes []core.StagedWrite
		want   int
	}{
		{"empty", nil, 0},
		{"leading recipe", []core.StagedWrite{r, l, l}, 0},
		{"all links", []core.StagedWrite{l, l, l}, 3},
		{"links then recipe", []core.StagedWrite{l, l, r, l}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkRun(tt.writes); got != tt.want {
				t.Errorf("linkRun() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecipeParams(t *testing.T) {
	d := int32(45)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("with category", func(t *testing.T) {
		p := recipeParams(&core.Recipe{
			Title:     "Crème brûlée",
			Slug:      "creme-brulee",
			Duration:  &d,
			Category:  &core.Category{ID: 7},
			CreatedAt: created,
		})
		if !p.CategoryID.Valid || p.CategoryID.Int64 != 7 {
			t.Errorf("CategoryID = %+v", p.CategoryID)
		}
		if !p.Duration.Valid || p.Duration.Int32 != 45 {
			t.Errorf("Duration = %+v", p.Duration)
		}
		if p.Thumbnail.Valid {
			t.Error("Thumbnail should be NULL")
		}
		if !p.CreatedAt.Time.Equal(created) {
			t.Errorf("CreatedAt = %v", p.CreatedAt.Time)
		}
	})

	t.Run("uncategorised", func(t *testing.T) {
		p := recipeParams(&core.Recipe{Title: "x", Category: &core.Category{}})
		if p.CategoryID.Valid {
			t.Errorf("CategoryID = %+v, want NULL", p.CategoryID)
		}
		if !p.CreatedAt.Valid {
			t.Error("zero CreatedAt should default to now")
		}
	})

	t.Run("with id", func(t *testing.T) {
		p := recipeWithIDParams(&core.Recipe{ID: 12, Title: "x", Slug: "x"})
		if p.ID != 12 || p.Slug != "x" {
			t.Errorf("params = %+v", p)
		}
	})
}

func TestListParams(t *testing.T) {
	d := int32(30)

	tests := []struct {
		name       string
		filter     core.RecipeFilter
		wantLimit  int32
		wantOffset int32
		wantSlug   bool
		wantMax    bool
	}{
		{"defaults", core.RecipeFilter{}, core.DefaultListLimit, 0, false, false},
		{"clamped", core.RecipeFilter{Limit: 5000, Offset: -3}, core.MaxListLimit, 0, false, false},
		{"category", core.RecipeFilter{CategorySlug: "desserts", Limit: 10, Offset: 20}, 10, 20, true, false},
		{"duration", core.RecipeFilter{MaxDuration: &d}, core.DefaultListLimit, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := listParams(tt.filter)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
			if p.CategorySlug.Valid != tt.wantSlug {
				t.Errorf("CategorySlug = %+v", p.CategorySlug)
			}
			if p.MaxDuration.Valid != tt.wantMax {
				t.Errorf("MaxDuration = %+v", p.MaxDuration)
			}
		})
	}
}

func TestRecipeFromRow(t *testing.T) {
	t.Run("categorised", func(t *testing.T) {
		r := recipeFromRow(db.RecipeWithCategory{
			ID:           3,
			Title:        "Tarte",
			Duration:     pgtype.Int4{Int32: 20, Valid: true},
			CategoryID:   pgtype.Int8{Int64: 7, Valid: true},
			CategoryName: pgtype.Text{String: "Desserts", Valid: true},
			CategorySlug: pgtype.Text{String: "desserts", Valid: true},
		})
		if r.Category == nil || r.Category.Slug != "desserts" || r.Category.ID != 7 {
			t.Errorf("Category = %+v", r.Category)
		}
		if r.Duration == nil || *r.Duration != 20 {
			t.Errorf("Duration = %v", r.Duration)
		}
		if r.Thumbnail != nil {
			t.Errorf("Thumbnail = %v, want nil", r.Thumbnail)
		}
	})

	t.Run("uncategorised", func(t *testing.T) {
		r := recipeFromRow(db.RecipeWithCategory{ID: 4, Title: "Soupe"})
		if r.Category != nil {
			t.Errorf("Category = %+v, want nil", r.Category)
		}
	})
}

func TestRunParams(t *testing.T) {
	res := &core.StageResult{
		Stage:     core.StageRecipes,
		File:      "recipes.csv",
		Processed: 10,
		Errors:    2,
		Duration:  1500 * time.Millisecond,
		EndTime:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("api trigger", func(t *testing.T) {
		ctx := core.ContextWithTrigger(context.Background(), core.TriggerAPI)
		ctx = core.ContextWithRemoteAddr(ctx, "10.0.0.1")
		p, err := runParams(ctx, "0b7e5f0e-6f5d-4c1a-9f55-2a1d1f0f3b11", res)
		if err != nil {
			t.Fatalf("runParams: %v", err)
		}
		if p.TriggeredBy != core.TriggerAPI || p.RemoteAddr.String != "10.0.0.1" {
			t.Errorf("trigger = %q remote = %+v", p.TriggeredBy, p.RemoteAddr)
		}
		if p.DurationMs != 1500 || p.Processed != 10 || p.Errors != 2 {
			t.Errorf("params = %+v", p)
		}

		back := stageFromRow(db.ImportRun{
			RunID:       p.RunID,
			Stage:       p.Stage,
			DurationMs:  p.DurationMs,
			FinishedAt:  p.FinishedAt,
			TriggeredBy: p.TriggeredBy,
			RemoteAddr:  p.RemoteAddr,
		})
		if back.RunID != "0b7e5f0e-6f5d-4c1a-9f55-2a1d1f0f3b11" || back.Duration != 1500*time.Millisecond {
			t.Errorf("stageFromRow = %+v", back)
		}
	})

	t.Run("cli default", func(t *testing.T) {
		p, err := runParams(context.Background(), "0b7e5f0e-6f5d-4c1a-9f55-2a1d1f0f3b11", res)
		if err != nil {
			t.Fatalf("runParams: %v", err)
		}
		if p.TriggeredBy != core.TriggerCLI || p.RemoteAddr.Valid {
			t.Errorf("trigger = %q remote = %+v", p.TriggeredBy, p.RemoteAddr)
		}
	})

	t.Run("invalid run id", func(t *testing.T) {
		if _, err := runParams(context.Background(), "test-run", res); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestConvert(t *testing.T) {
	if toInt8(0).Valid || toInt8(-1).Valid {
		t.Error("non-positive id should be NULL")
	}
	if v := toInt8(5); !v.Valid || v.Int64 != 5 {
		t.Errorf("toInt8(5) = %+v", v)
	}
	if fromText(pgtype.Text{}) != nil {
		t.Error("NULL text should be nil")
	}
	if s := fromText(pgtype.Text{String: "", Valid: true}); s == nil || *s != "" {
		t.Error("empty text should stay non-nil")
	}
	if !fromTimestamptz(pgtype.Timestamptz{}).IsZero() {
		t.Error("NULL timestamp should be zero time")
	}
	if fromUUID(pgtype.UUID{}) != "" {
		t.Error("NULL uuid should be empty")
	}
}
