package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Category struct {
	ID   int64
	Name string
	Slug string
}

type Ingredient struct {
	ID   int64
	Name string
}

type Recipe struct {
	ID          int64
	Title       string
	Slug        string
	Description string
	Duration    pgtype.Int4
	Thumbnail   pgtype.Text
	Ingredients pgtype.Text
	Directions  pgtype.Text
	CategoryID  pgtype.Int8
	CreatedAt   pgtype.Timestamptz
}

type RecipeIngredient struct {
	ID           int64
	RecipeID     int64
	IngredientID int64
	Quantity     pgtype.Float8
}

type ImportRun struct {
	ID          int64
	RunID       pgtype.UUID
	Stage       string
	File        string
	Processed   int32
	Skipped     int32
	Errors      int32
	Rejected    int32
	Commits     int32
	DurationMs  int64
	FinishedAt  pgtype.Timestamptz
	TriggeredBy string
	RemoteAddr  pgtype.Text
}
