package syncer

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsync/internal/chunker"
	"github.com/dshills/docsync/internal/embedder"
	"github.com/dshills/docsync/pkg/types"
)

// Store is the part of the vector store the executor writes through
type Store interface {
	Upsert(ctx context.Context, rec *types.IndexRecord, vector []float32) error
	Delete(ctx context.Context, filter types.Filter) (int, error)
	ExistsWithHash(ctx context.Context, key types.RecordKey, hash string) (bool, error)
}

// Report summarizes an Apply call
type Report struct {
	Written  int
	Skipped  int
	Deleted  int
	Unsynced int

	Errors        []string
	UnsyncedPaths []string
}

// Executor applies planned operations. Operations on one key are serialized
// through a KeyLock; different keys run concurrently.
type Executor struct {
	store    Store
	embedder embedder.Embedder
	chunker  *chunker.Chunker
	locks    *KeyLock
	workers  int
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Executor
type Option func(*Executor)

// WithWorkers bounds the number of concurrent operations
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the executor's logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithKeyLock shares a lock table between executors writing to the same store
func WithKeyLock(l *KeyLock) Option {
	return func(e *Executor) {
		if l != nil {
			e.locks = l
		}
	}
}

// WithClock overrides the timestamp source for UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an Executor
func NewExecutor(store Store, emb embedder.Embedder, ch *chunker.Chunker, opts ...Option) *Executor {
	if ch == nil {
		ch = chunker.New(nil, 0)
	}
	e := &Executor{
		store:    store,
		embedder: emb,
		chunker:  ch,
		locks:    NewKeyLock(),
		workers:  runtime.NumCPU(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs ops against the store. Store failures mark single records
// unsynced and the remaining operations continue. On cancellation no new
// operation starts; writes already made stay valid and the report is
// returned along with ctx.Err().
func (e *Executor) Apply(ctx context.Context, ops []Operation) (*Report, error) {
	report := &Report{}
	unsynced := make(map[string]struct{})
	var mu sync.Mutex

	record := func(op Operation, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			return
		}
		report.Unsynced++
		report.Errors = append(report.Errors, err.Error())
		if op.Path != "" {
			unsynced[op.Path] = struct{}{}
		}
	}

	var g errgroup.Group
	sem := make(chan struct{}, e.workers)

	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return nil
			}

			unlock := e.locks.Lock(op.Key)
			defer unlock()

			switch op.Kind {
			case OpUpsert:
				written, err := e.upsert(ctx, op)
				if err != nil {
					e.logger.Warn("record not synced", "key", op.Key.String(), "path", op.Path, "error", err)
					record(op, err)
					return nil
				}
				mu.Lock()
				if written {
					report.Written++
				} else {
					report.Skipped++
				}
				mu.Unlock()
			case OpDelete:
				n, err := e.store.Delete(ctx, op.Filter)
				if err != nil {
					err = asStoreError("delete", op.Key, err)
					e.logger.Warn("delete failed", "key", op.Key.String(), "error", err)
					record(op, err)
					return nil
				}
				mu.Lock()
				report.Deleted += n
				mu.Unlock()
			}
			return nil
		})
	}

	// Workers record failures instead of returning them
	_ = g.Wait()

	for p := range unsynced {
		report.UnsyncedPaths = append(report.UnsyncedPaths, p)
	}
	sort.Strings(report.UnsyncedPaths)
	return report, ctx.Err()
}

// upsert writes one record unless the store already holds the same hash.
// It reports whether a write happened.
func (e *Executor) upsert(ctx context.Context, op Operation) (bool, error) {
	rec := op.Record
	if rec == nil {
		return false, asStoreError("upsert", op.Key, errors.New("missing record"))
	}
	if rec.RecordHash == "" {
		rec.ComputeRecordHash()
	}

	exists, err := e.store.ExistsWithHash(ctx, op.Key, rec.RecordHash)
	if err != nil {
		return false, asStoreError("exists", op.Key, err)
	}
	if exists {
		e.logger.Debug("record unchanged, skipping write", "key", op.Key.String())
		return false, nil
	}

	text := e.chunker.Compose(rec)
	if text == "" {
		return false, asStoreError("upsert", op.Key, types.ErrEmptyContent)
	}
	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return false, &types.StoreError{Op: "embed", Key: op.Key.String(), Retryable: true, Err: err}
	}

	stored := *rec
	stored.UpdatedAt = e.now().UTC()
	if err := e.store.Upsert(ctx, &stored, vector); err != nil {
		return false, asStoreError("upsert", op.Key, err)
	}
	return true, nil
}

func asStoreError(op string, key types.RecordKey, err error) error {
	var storeErr *types.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &types.StoreError{
		Op:        op,
		Key:       key.String(),
		Retryable: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}
