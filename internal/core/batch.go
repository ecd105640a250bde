package core

import (
	"context"
	"fmt"
	"time"
)

// BatchState is the commit controller's position in its cycle.
type BatchState int

const (
	Accumulating BatchState = iota
	Committing
	Flushing
	Done
)

func (s BatchState) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Committing:
		return "committing"
	case Flushing:
		return "flushing"
	default:
		return "done"
	}
}

// BatchController stages writes for one stage and commits them every size
// processed rows. After every commit the store session is reset and every
// reset hook runs, so caches holding session handles are cleared in lockstep.
// In dry-run mode nothing is staged or committed but rows are still counted.
type BatchController struct {
	store    Store
	stage    Stage
	file     string
	size     int
	dryRun   bool
	observer Observer

	state     BatchState
	line      int
	processed int
	pending   int
	commits   int
	hooks     []func()
	rejected  []RejectedWrite
}

// NewBatchController returns a controller in the Accumulating state.
func NewBatchController(store Store, stage Stage, file string, size int, dryRun bool, observer Observer) *BatchController {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &BatchController{
		store:    store,
		stage:    stage,
		file:     file,
		size:     size,
		dryRun:   dryRun,
		observer: observer,
	}
}

// OnReset registers fn to run after every session reset.
func (b *BatchController) OnReset(fn func()) {
	b.hooks = append(b.hooks, fn)
}

// BeginRow records the input line subsequent Stage calls belong to.
func (b *BatchController) BeginRow(line int) {
	b.line = line
}

// Stage runs the pre-save hook and hands the entity to the store session.
// It is a no-op in dry-run mode.
func (b *BatchController) Stage(ctx context.Context, e Entity) error {
	if b.dryRun {
		return nil
	}
	ApplySlug(e)
	if err := b.store.Save(ctx, StagedWrite{File: b.file, Line: b.line, Entity: e}); err != nil {
		return fmt.Errorf("stage %s line %d: %w", e.Kind(), b.line, err)
	}
	b.pending++
	return nil
}

// StageReference stages e and commits immediately without resetting the
// session. Reference rows such as categories must be durable before the
// rows that point at them are written. Rows written by that commit are not
// reported again by the next batch commit.
func (b *BatchController) StageReference(ctx context.Context, e Entity) error {
	if b.dryRun {
		return nil
	}
	if err := b.Stage(ctx, e); err != nil {
		return err
	}
	return b.commit(ctx, false)
}

// RowDone counts a processed row and commits when the batch is full.
func (b *BatchController) RowDone(ctx context.Context) error {
	b.processed++
	b.observer.RowProcessed(b.stage)
	if b.dryRun || b.processed%b.size != 0 {
		return nil
	}
	b.state = Committing
	err := b.commit(ctx, true)
	b.state = Accumulating
	return err
}

// Flush commits the partial last batch, if any, and releases the session.
func (b *BatchController) Flush(ctx context.Context) error {
	b.state = Flushing
	defer func() { b.state = Done }()

	if b.dryRun {
		return nil
	}
	if b.processed%b.size != 0 {
		return b.commit(ctx, true)
	}
	// the last full batch was already committed; still release anything
	// loaded since, such as reference lookups
	b.reset()
	return nil
}

func (b *BatchController) commit(ctx context.Context, counted bool) error {
	start := time.Now()
	rejected, err := b.store.Commit(ctx)
	if err != nil {
		return fmt.Errorf("commit %s batch at line %d: %w", b.stage, b.line, err)
	}
	b.rejected = append(b.rejected, rejected...)
	for range rejected {
		b.observer.RowRejected(b.stage)
	}
	written := b.pending
	b.pending = 0
	if counted {
		b.commits++
		b.observer.BatchCommitted(b.stage, written, time.Since(start).Seconds())
		b.reset()
	}
	return nil
}

func (b *BatchController) reset() {
	b.store.ResetSession()
	for _, fn := range b.hooks {
		fn()
	}
}

// TakeRejected returns and forgets the writes refused since the last call.
func (b *BatchController) TakeRejected() []RejectedWrite {
	r := b.rejected
	b.rejected = nil
	return r
}

// State returns the current controller state.
func (b *BatchController) State() BatchState { return b.state }

// Processed returns the number of rows counted so far.
func (b *BatchController) Processed() int { return b.processed }

// Commits returns the number of batch commits performed.
func (b *BatchController) Commits() int { return b.commits }
