// Package reconciler decides, per element, whether documentation must be
// generated, refreshed, preserved or dropped, and runs the generator for the
// elements that need text.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dshills/docsync/internal/changes"
	"github.com/dshills/docsync/internal/chunker"
	"github.com/dshills/docsync/internal/generator"
	"github.com/dshills/docsync/internal/model"
	"github.com/dshills/docsync/internal/project"
	"github.com/dshills/docsync/pkg/types"
)

// Defaults for generation fan-out
const (
	DefaultConcurrency   = 4
	DefaultTimeout       = 60 * time.Second
	DefaultContextTokens = 2000
)

// RecordReader looks up stored records. Missing records are reported with
// types.ErrNotFound.
type RecordReader interface {
	Get(ctx context.Context, key types.RecordKey) (*types.IndexRecord, error)
}

// Options configures one reconciliation
type Options struct {
	Freeze     bool
	VersionTag string
	Style      string
	Project    project.Context

	Concurrency       int
	RequestsPerSecond float64 // <= 0 disables rate limiting
	Burst             int
	Timeout           time.Duration // per generator call
	ContextTokens     int           // budget for element source in prompts
}

// Result holds the decisions of one run, in change order
type Result struct {
	Decisions []types.DocDecision

	// FailedPaths are files with at least one failed element
	FailedPaths []string
}

// Counts tallies decisions by action
func (r *Result) Counts() map[types.DocAction]int {
	counts := make(map[types.DocAction]int)
	for _, d := range r.Decisions {
		counts[d.Action]++
	}
	return counts
}

// Reconciler turns a change set into documentation decisions
type Reconciler struct {
	gen     generator.Generator
	records RecordReader
	counter *chunker.Counter
	logger  *slog.Logger
}

// New creates a Reconciler. A nil counter uses the character estimate.
func New(gen generator.Generator, records RecordReader, counter *chunker.Counter, logger *slog.Logger) *Reconciler {
	if counter == nil {
		counter = chunker.NewEstimator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{gen: gen, records: records, counter: counter, logger: logger}
}

// Reconcile decides every change in cs and generates text where needed.
// Generation failures mark single decisions failed; the returned error is
// reserved for store lookups and cancellation. On cancellation the
// decisions made so far are returned along with ctx.Err().
func (r *Reconciler) Reconcile(ctx context.Context, cs *changes.ChangeSet, opts Options) (*Result, error) {
	opts = withDefaults(opts)
	records := newRecordCache(r.records, opts.VersionTag)

	result := &Result{}
	seen := make(map[string]struct{})
	var pending []int

	for _, c := range cs.Changes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		in := Input{Change: c, Freeze: opts.Freeze}
		if c.Element != nil && c.Status != changes.StatusRemoved {
			rec, err := records.get(ctx, c.Element.ID)
			if err != nil {
				return result, err
			}
			in.Record = rec
			if c.Status == changes.StatusMoved && c.Old != nil {
				if in.OldRecord, err = records.get(ctx, c.Old.ID); err != nil {
					return result, err
				}
			}
		}

		d := Decide(in)

		// One decision per element: the first one wins, so a preserve is
		// never replaced by a later generate
		if _, ok := seen[d.ElementID]; ok {
			continue
		}
		seen[d.ElementID] = struct{}{}
		if d.Action.RequiresGeneration() {
			pending = append(pending, len(result.Decisions))
		}
		result.Decisions = append(result.Decisions, d)
	}

	err := r.generate(ctx, cs, records, result, pending, opts)
	result.FailedPaths = failedPaths(cs, result.Decisions)
	return result, err
}

// generate runs the generator for the pending decisions on a bounded,
// rate-limited pool
func (r *Reconciler) generate(ctx context.Context, cs *changes.ChangeSet, records *recordCache, result *Result, pending []int, opts Options) error {
	if len(pending) == 0 {
		return nil
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	limiter := rate.NewLimiter(limit, opts.Burst)

	// Requests are built up front so store lookups stay sequential
	requests := make(map[int]generator.Request, len(pending))
	for _, idx := range pending {
		d := result.Decisions[idx]
		el, ok := cs.Current.Get(d.ElementID)
		if !ok {
			result.Decisions[idx] = fail(d, &types.GenerationError{ElementID: d.ElementID, Err: errors.New("element not in model")})
			continue
		}
		ancestors, err := r.ancestors(ctx, cs.Current, records, el)
		if err != nil {
			return err
		}
		requests[idx] = generator.Request{
			Element:   el,
			Ancestors: ancestors,
			Project:   opts.Project,
			Style:     opts.Style,
			PriorDoc:  d.PriorDoc,
			Source:    r.counter.Truncate(el.Source, opts.ContextTokens),
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.Concurrency)

	for _, idx := range pending {
		req, ok := requests[idx]
		if !ok {
			continue
		}

		// Stop launching once cancelled; undecided elements are failed below
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			if err := limiter.Wait(gctx); err != nil {
				return nil
			}

			callCtx, cancel := context.WithTimeout(gctx, opts.Timeout)
			text, err := r.gen.Generate(callCtx, req)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			d := result.Decisions[idx]
			if err != nil {
				genErr := generator.Classify(d.ElementID, err)
				r.logger.Warn("generation failed",
					"element", req.Element.QualifiedName,
					"path", req.Element.FilePath(),
					"retryable", genErr.Retryable,
					"error", genErr.Err)
				result.Decisions[idx] = fail(d, genErr)
				return nil
			}
			d.Text = text
			result.Decisions[idx] = d
			return nil
		})
	}

	// Workers never return errors; failures are recorded per decision
	_ = g.Wait()

	for _, idx := range pending {
		d := result.Decisions[idx]
		if d.Action.RequiresGeneration() && d.Text == "" {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("generation not attempted")
			}
			result.Decisions[idx] = fail(d, &types.GenerationError{ElementID: d.ElementID, Retryable: true, Err: cause})
		}
	}

	return ctx.Err()
}

// ancestors builds the hierarchy context of el, outermost first. Each
// ancestor contributes the first line of its source documentation, or of its
// stored record when the source has none.
func (r *Reconciler) ancestors(ctx context.Context, m *model.Model, records *recordCache, el *types.CodeElement) ([]generator.Ancestor, error) {
	var out []generator.Ancestor
	for _, a := range m.Ancestors(el.ID) {
		text := a.DocText()
		if text == "" {
			rec, err := records.get(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				text = rec.Text
			}
		}
		out = append(out, generator.Ancestor{
			Kind:          a.Kind,
			QualifiedName: a.QualifiedName,
			Summary:       project.FirstLine(text),
		})
	}
	return out, nil
}

func fail(d types.DocDecision, err *types.GenerationError) types.DocDecision {
	d.Action = types.ActionFailed
	d.Reason = fmt.Sprintf("generation failed: %v", err.Err)
	d.Text = ""
	d.Err = err
	return d
}

func failedPaths(cs *changes.ChangeSet, decisions []types.DocDecision) []string {
	set := make(map[string]struct{})
	for _, d := range decisions {
		if d.Action != types.ActionFailed {
			continue
		}
		if el, ok := cs.Current.Get(d.ElementID); ok {
			set[el.FilePath()] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func withDefaults(opts Options) Options {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = DefaultContextTokens
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return opts
}

// recordCache memoizes store lookups for one run
type recordCache struct {
	reader RecordReader
	tag    string
	cache  map[string]*types.IndexRecord
}

func newRecordCache(reader RecordReader, tag string) *recordCache {
	return &recordCache{reader: reader, tag: tag, cache: make(map[string]*types.IndexRecord)}
}

func (c *recordCache) get(ctx context.Context, id string) (*types.IndexRecord, error) {
	if c.reader == nil {
		return nil, nil
	}
	if rec, ok := c.cache[id]; ok {
		return rec, nil
	}
	rec, err := c.reader.Get(ctx, types.RecordKey{ElementID: id, VersionTag: c.tag})
	if errors.Is(err, types.ErrNotFound) {
		rec, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup record %s: %w", id, err)
	}
	c.cache[id] = rec
	return rec, nil
}
