package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by catalog reads for a missing row.
var ErrNotFound = errors.New("not found")

// RecipeFilter narrows ListRecipes. With MaxDuration set, recipes are
// ordered by duration ascending; otherwise newest id first.
type RecipeFilter struct {
	CategorySlug string
	MaxDuration  *int32
	Limit        int
	Offset       int
}

// IngredientLine is one ingredient of a recipe. Name is empty when the
// linked ingredient does not exist.
type IngredientLine struct {
	IngredientID int64    `json:"ingredient_id"`
	Name         string   `json:"name,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
}

// RecipeDetail is a recipe with its ingredient lines.
type RecipeDetail struct {
	Recipe
	Lines []IngredientLine `json:"lines"`
}

// Catalog is the read side used by the HTTP API.
type Catalog interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListRecipes(ctx context.Context, filter RecipeFilter) ([]Recipe, error)
	GetRecipe(ctx context.Context, id int64) (*RecipeDetail, error)
}

// RecordedStage is a stage summary read back from run history.
type RecordedStage struct {
	RunID      string        `json:"run_id"`
	Stage      Stage         `json:"stage"`
	File       string        `json:"file"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Rejected   int           `json:"rejected"`
	Commits    int           `json:"commits"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
	Trigger    string        `json:"trigger"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
}

// RunHistory lists recorded stages, most recent first.
type RunHistory interface {
	RecentStages(ctx context.Context, limit int) ([]RecordedStage, error)
}

// DefaultListLimit bounds list queries without an explicit limit.
const DefaultListLimit = 100

// MaxListLimit is the largest limit a list query accepts.
const MaxListLimit = 1000

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
