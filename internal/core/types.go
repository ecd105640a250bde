package core

import (
	"fmt"
	"time"
)

// EntityKind identifies one of the persisted catalog tables.
type EntityKind string

const (
	KindCategory         EntityKind = "category"
	KindIngredient       EntityKind = "ingredient"
	KindRecipe           EntityKind = "recipe"
	KindRecipeIngredient EntityKind = "recipe_ingredient"
)

// IDStrategy tells the store whether primary keys come from the input
// file or from the database sequence.
type IDStrategy int

const (
	IDAuto IDStrategy = iota
	IDAssigned
)

func (s IDStrategy) String() string {
	if s == IDAssigned {
		return "assigned"
	}
	return "auto"
}

// Entity is anything the store can persist.
type Entity interface {
	Kind() EntityKind
}

// Category is a recipe category. Slug is unique across the catalog.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (c *Category) Kind() EntityKind { return KindCategory }

// SlugSource returns the text the slug is derived from.
func (c *Category) SlugSource() string { return c.Name }

// SetSlug stores a derived slug.
func (c *Category) SetSlug(s string) { c.Slug = s }

// Ingredient is a named ingredient with an externally supplied id.
type Ingredient struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (i *Ingredient) Kind() EntityKind { return KindIngredient }

// Recipe is a catalog recipe. Category is nil when the recipe is uncategorised.
// Slug is derived from the title and is not unique.
type Recipe struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Duration    *int32    `json:"duration,omitempty"`
	Thumbnail   *string   `json:"thumbnail,omitempty"`
	Ingredients *string   `json:"ingredients,omitempty"`
	Directions  *string   `json:"directions,omitempty"`
	Category    *Category `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *Recipe) Kind() EntityKind { return KindRecipe }

// SlugSource returns the text the slug is derived from.
func (r *Recipe) SlugSource() string { return r.Title }

// SetSlug stores a derived slug.
func (r *Recipe) SetSlug(s string) { r.Slug = s }

// RecipeIngredient links a recipe to an ingredient by id only. The referenced
// rows are not required to exist. Quantity is nil when absent or non-numeric.
type RecipeIngredient struct {
	RecipeID     int64    `json:"recipe_id"`
	IngredientID int64    `json:"ingredient_id"`
	Quantity     *float64 `json:"quantity,omitempty"`
}

func (ri *RecipeIngredient) Kind() EntityKind { return KindRecipeIngredient }

// Stage names, in run order.
type Stage string

const (
	StageCategories        Stage = "categories"
	StageIngredients       Stage = "ingredients"
	StageRecipes           Stage = "recipes"
	StageRecipeIngredients Stage = "recipe_ingredients"
)

// RecipeFormat selects the recipe row shape.
type RecipeFormat string

const (
	// RecipeFormatKeyed rows carry an external id and a category id.
	RecipeFormatKeyed RecipeFormat = "keyed"
	// RecipeFormatSelfContained rows carry a category name and free text
	// ingredient and direction blocks; ids are generated by the store.
	RecipeFormatSelfContained RecipeFormat = "self-contained"
)

// ParseRecipeFormat validates a user supplied recipe format name.
func ParseRecipeFormat(s string) (RecipeFormat, error) {
	switch RecipeFormat(s) {
	case RecipeFormatKeyed, "":
		return RecipeFormatKeyed, nil
	case RecipeFormatSelfContained, "self_contained", "selfcontained":
		return RecipeFormatSelfContained, nil
	}
	return "", fmt.Errorf("invalid recipe format %q: must be keyed or self-contained", s)
}

// RowWarning describes a row that was not imported.
type RowWarning struct {
	FileName   string `json:"file"`
	LineNumber int    `json:"line"`
	Reason     string `json:"reason"`
}

func (w RowWarning) String() string {
	return fmt.Sprintf("%s:%d: %s", w.FileName, w.LineNumber, w.Reason)
}

// StageResult holds the counters of one stage.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	File      string        `json:"file"`
	DryRun    bool          `json:"dry_run"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Rejected  int           `json:"rejected"`
	Commits   int           `json:"commits"`
	Bytes     int64         `json:"bytes"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Warnings  []RowWarning  `json:"warnings,omitempty"`
	Truncated int           `json:"warnings_truncated,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// RowsPerSecond returns processing throughput for the stage.
func (s *StageResult) RowsPerSecond() float64 {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed+s.Skipped+s.Errors) / secs
}

// RunResult aggregates all stages of one import run.
type RunResult struct {
	RunID     string         `json:"run_id"`
	DryRun    bool           `json:"dry_run"`
	Format    RecipeFormat   `json:"recipe_format"`
	Stages    []*StageResult `json:"stages"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
}

// TotalErrors is the overall error counter across stages. Store rejections
// are included since those rows were not persisted either.
func (r *RunResult) TotalErrors() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Errors + s.Rejected
	}
	return n
}

// TotalProcessed sums processed rows across stages.
func (r *RunResult) TotalProcessed() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Processed
	}
	return n
}

// Stage returns the result for a stage, or nil if it did not run.
func (r *RunResult) Stage(name Stage) *StageResult {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s
		}
	}
	return nil
}
