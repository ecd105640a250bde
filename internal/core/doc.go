// Package core implements the recipe catalog import pipeline.
//
// The pipeline is independent of transport and storage. The CLI and the
// HTTP server both drive it through [Importer], and it persists through the
// [Store] port, implemented by the Postgres store and by [MemoryStore].
//
// # Stages
//
// A keyed run imports four files in fixed order, with externally supplied ids:
//
//  1. categories          name, id
//  2. ingredients         name, id
//  3. recipes             id, title, description, category_id [, duration [, thumbnail]]
//  4. recipe ingredients  recipe_id, quantity, unit_id, ingredient_id
//
// A self-contained run imports only the recipes file, with generated ids and
// categories named inline:
//
//	title, category, subcategory, description, ingredients, directions, num_ingredients, num_steps
//
// Stages are not transactional with respect to each other. A fatal error
// aborts the run but leaves earlier stages committed.
//
// # Reading
//
// [DelimitedReader] streams records with a configurable delimiter, quote and
// escape character. Malformed lines are yielded with a marker so they can be
// counted and skipped.
//
// # Reconciling and batching
//
// A [Reconciler] resolves natural keys (slugs or external ids) to existing
// entities or stages new ones. It keeps a run-scoped map of key states and a
// batch-scoped map of entity handles. The [BatchController] commits every N
// processed rows, resets the store session, and clears every registered
// batch cache in the same step. A handle that outlives its session is
// reported as [ErrStaleReference].
//
// # Errors
//
// Row problems become [RowWarning] values on the [StageResult] and never stop
// a stage. File access problems ([FileAccessError]) and store failures abort
// the run. [MapError] turns either kind into a coded user message.
package core
