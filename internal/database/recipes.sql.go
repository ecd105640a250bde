package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const recipeColumns = `r.id, r.title, r.slug, r.description, r.duration, r.thumbnail,
       r.ingredients, r.directions, r.category_id, r.created_at,
       c.name AS category_name, c.slug AS category_slug`

// RecipeWithCategory is a recipe row joined to its optional category.
type RecipeWithCategory struct {
	ID           int64
	Title        string
	Slug         string
	Description  string
	Duration     pgtype.Int4
	Thumbnail    pgtype.Text
	Ingredients  pgtype.Text
	Directions   pgtype.Text
	CategoryID   pgtype.Int8
	CreatedAt    pgtype.Timestamptz
	CategoryName pgtype.Text
	CategorySlug pgtype.Text
}

func scanRecipe(row interface{ Scan(...any) error }, i *RecipeWithCategory) error {
	return row.Scan(
		&i.ID,
		&i.Title,
		&i.Slug,
		&i.Description,
		&i.Duration,
		&i.Thumbnail,
		&i.Ingredients,
		&i.Directions,
		&i.CategoryID,
		&i.CreatedAt,
		&i.CategoryName,
		&i.CategorySlug,
	)
}

const getRecipeByID = `-- name: GetRecipeByID :one
SELECT ` + recipeColumns + `
FROM recipes r
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.id = $1
`

func (q *Queries) GetRecipeByID(ctx context.Context, id int64) (RecipeWithCategory, error) {
	row := q.db.QueryRow(ctx, getRecipeByID, id)
	var i RecipeWithCategory
	err := scanRecipe(row, &i)
	return i, err
}

const insertRecipe = `-- name: InsertRecipe :one
INSERT INTO recipes (title, slug, description, duration, thumbnail, ingredients, directions, category_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id
`

type InsertRecipeParams struct {
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

func (q *Queries) InsertRecipe(ctx context.Context, arg InsertRecipeParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertRecipe,
		arg.Title,
		arg.Slug,
		arg.Description,
		arg.Duration,
		arg.Thumbnail,
		arg.Ingredients,
		arg.Directions,
		arg.CategoryID,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertRecipeWithID = `-- name: InsertRecipeWithID :exec
INSERT INTO recipes (id, title, slug, description, duration, thumbnail, ingredients, directions, category_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

type InsertRecipeWithIDParams struct {
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

func (q *Queries) InsertRecipeWithID(ctx context.Context, arg InsertRecipeWithIDParams) error {
	_, err := q.db.Exec(ctx, insertRecipeWithID,
		arg.ID,
		arg.Title,
		arg.Slug,
		arg.Description,
		arg.Duration,
		arg.Thumbnail,
		arg.Ingredients,
		arg.Directions,
		arg.CategoryID,
		arg.CreatedAt,
	)
	return err
}

// With a duration bound the list is ordered by duration, otherwise the CASE
// is NULL for every row and only the id ordering applies.
const listRecipes = `-- name: ListRecipes :many
SELECT ` + recipeColumns + `
FROM recipes r
LEFT JOIN categories c ON c.id = r.category_id
WHERE ($1::text IS NULL OR c.slug = $1::text)
  AND ($2::int4 IS NULL OR r.duration <= $2::int4)
ORDER BY CASE WHEN $2::int4 IS NOT NULL THEN r.duration END ASC, r.id DESC
LIMIT $3 OFFSET $4
`

type ListRecipesParams struct {
	CategorySlug pgtype.Text
	MaxDuration  pgtype.Int4
	Limit        int32
	Offset       int32
}

func (q *Queries) ListRecipes(ctx context.Context, arg ListRecipesParams) ([]RecipeWithCategory, error) {
	rows, err := q.db.Query(ctx, listRecipes,
		arg.CategorySlug,
		arg.MaxDuration,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecipeWithCategory
	for rows.Next() {
		var i RecipeWithCategory
		if err := scanRecipe(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const resyncRecipeIDs = `-- name: ResyncRecipeIDs :exec
SELECT setval(pg_get_serial_sequence('recipes', 'id'), COALESCE((SELECT MAX(id) FROM recipes), 0) + 1, false)
`

func (q *Queries) ResyncRecipeIDs(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resyncRecipeIDs)
	return err
}
