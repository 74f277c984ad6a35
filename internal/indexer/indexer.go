package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dshills/docsync/internal/changes"
	"github.com/dshills/docsync/internal/chunker"
	"github.com/dshills/docsync/internal/config"
	"github.com/dshills/docsync/internal/embedder"
	"github.com/dshills/docsync/internal/generator"
	"github.com/dshills/docsync/internal/model"
	"github.com/dshills/docsync/internal/parser"
	"github.com/dshills/docsync/internal/project"
	"github.com/dshills/docsync/internal/reconciler"
	"github.com/dshills/docsync/internal/searcher"
	"github.com/dshills/docsync/internal/storage"
	"github.com/dshills/docsync/internal/syncer"
	"github.com/dshills/docsync/pkg/types"
)

// Run modes recorded in the run state
const (
	ModeInit     = "init"
	ModeSync     = "sync"
	ModeDocPR    = "doc-pr"
	ModeUpdateDB = "update-db"
)

// ErrNoRepository is returned by incremental runs outside a git repository
var ErrNoRepository = changes.ErrNotRepository

// RunOptions configures one run
type RunOptions struct {
	VersionTag string
	Freeze     bool

	// FromRef defaults to the last synced ref of the version tag. ToRef
	// defaults to HEAD; Worktree diffs against the working tree instead.
	FromRef  string
	ToRef    string
	Worktree bool
}

// Indexer coordinates a run: discover -> parse -> detect -> reconcile ->
// plan -> apply
type Indexer struct {
	root string
	cfg  *config.Config

	repo       *changes.Repository
	registry   *parser.Registry
	discoverer *Discoverer
	detector   *changes.Detector
	reconciler *reconciler.Reconciler
	chunker    *chunker.Chunker
	keyLock    *syncer.KeyLock
	store      storage.VectorStore
	embedder   embedder.Embedder
	searcher   *searcher.Searcher
	project    project.Context

	statePath string
	lock      IndexLock
	logger    *slog.Logger
	counter   *chunker.Counter
	now       func() time.Time
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithCounter sets the token counter used for prompt and record budgets
func WithCounter(c *chunker.Counter) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.counter = c
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(idx *Indexer) {
		if now != nil {
			idx.now = now
		}
	}
}

// New creates an Indexer for the repository at root. Incremental runs need
// root to be inside a git repository; full runs do not.
func New(root string, cfg *config.Config, store storage.VectorStore, emb embedder.Embedder, gen generator.Generator, opts ...Option) (*Indexer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if store == nil || emb == nil || gen == nil {
		return nil, errors.New("indexer needs a store, an embedder and a generator")
	}

	idx := &Indexer{
		cfg:      cfg,
		store:    store,
		embedder: emb,
		keyLock:  syncer.NewKeyLock(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.counter == nil {
		idx.counter = chunker.DefaultCounter()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	idx.root = abs

	repo, err := changes.Open(abs, cfg.Git.RenameThreshold)
	switch {
	case err == nil:
		idx.repo = repo
		idx.root = repo.Root()
	case errors.Is(err, changes.ErrNotRepository):
		idx.logger.Debug("not a git repository, incremental runs disabled", "root", abs)
	default:
		return nil, err
	}

	idx.registry = parser.NewRegistry(parser.Options{DocGapLines: cfg.Parse.DocGapLines})
	for ext, lang := range cfg.Parse.Extensions {
		idx.registry.SetExtension(ext, lang)
	}
	idx.registry.Restrict(cfg.Languages)

	idx.discoverer, err = NewDiscoverer(idx.root, cfg.SourcePaths, cfg.Parse.Ignore, idx.registry)
	if err != nil {
		return nil, err
	}

	idx.detector = changes.NewDetector(idx.registry,
		changes.WithWorkers(cfg.ParseWorkers()),
		changes.WithLogger(idx.logger),
	)
	idx.reconciler = reconciler.New(gen, store, idx.counter, idx.logger)
	idx.chunker = chunker.New(idx.counter, cfg.Embedding.MaxTokens)
	idx.searcher = searcher.NewSearcher(store, emb)

	idx.project, err = project.Load(idx.root)
	if err != nil {
		idx.logger.Warn("failed to read README", "error", err)
	}
	idx.project.Name = idx.projectName()

	idx.statePath = filepath.Join(idx.root, config.StateDir, StateFile)
	return idx, nil
}

// Open builds the generator, embedder and store described by cfg and
// returns an Indexer using them. Close releases them.
func Open(ctx context.Context, root string, cfg *config.Config, logger *slog.Logger) (*Indexer, error) {
	gen, err := generator.New(generator.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		CacheSize:  cfg.Embedding.CacheSize,
		BaseURL:    cfg.Embedding.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	path := cfg.StorePath(root)
	if cfg.Store.Type == storage.TypeSQLite && path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			emb.Close()
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	store, err := storage.Open(ctx, storage.Config{
		Type:       cfg.Store.Type,
		Path:       path,
		DSN:        cfg.Store.DSN,
		Table:      cfg.Store.Table,
		Dimensions: emb.Dimension(),
	})
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}

	idx, err := New(root, cfg, store, emb, gen, WithLogger(logger))
	if err != nil {
		store.Close()
		emb.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the store and the embedder
func (idx *Indexer) Close() error {
	return errors.Join(idx.store.Close(), idx.embedder.Close())
}

// Root returns the repository root
func (idx *Indexer) Root() string {
	return idx.root
}

// Project returns the README context passed to the generator
func (idx *Indexer) Project() project.Context {
	return idx.project
}

func (idx *Indexer) projectName() string {
	if idx.cfg.Name != "" {
		return idx.cfg.Name
	}
	if idx.repo != nil {
		if name := idx.repo.RemoteName(); name != "" {
			return name
		}
	}
	if idx.project.Name != "" {
		return idx.project.Name
	}
	return filepath.Base(idx.root)
}

// Init runs a full pass over the source paths. Records of elements that no
// longer exist are pruned from the version tag.
func (idx *Indexer) Init(ctx context.Context, opts RunOptions) (*types.RunSummary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()
	return idx.fullRun(ctx, ModeInit, opts)
}

// UpdateDB harvests the documentation already in the source into the index
// without calling the generator
func (idx *Indexer) UpdateDB(ctx context.Context, opts RunOptions) (*types.RunSummary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()
	opts.Freeze = true
	return idx.fullRun(ctx, ModeUpdateDB, opts)
}

// Sync runs an incremental pass over the diff between two refs
func (idx *Indexer) Sync(ctx context.Context, opts RunOptions) (*types.RunSummary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()
	return idx.incrementalRun(ctx, ModeSync, opts, opts.FromRef != "")
}

// DocPR syncs the changes introduced by one commit. The version tag's last
// synced ref is left where it was.
func (idx *Indexer) DocPR(ctx context.Context, sha string, opts RunOptions) (*types.RunSummary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if idx.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRepository, idx.root)
	}
	if sha == "" {
		return nil, errors.New("doc-pr needs a commit")
	}
	if _, err := idx.repo.Resolve(sha); err != nil {
		return nil, err
	}

	opts.ToRef = sha
	opts.Worktree = false
	opts.FromRef = sha + "^"
	if _, err := idx.repo.Resolve(opts.FromRef); err != nil {
		// Root commit: everything in it is new
		opts.FromRef = ""
	}
	return idx.incrementalRun(ctx, ModeDocPR, opts, true)
}

// run is the bookkeeping of one call
type run struct {
	mode    string
	opts    RunOptions
	start   time.Time
	summary *types.RunSummary
	gitSHA  string
	record  *RunRecord
}

func (idx *Indexer) begin(mode string, opts RunOptions) *run {
	r := &run{
		mode:    mode,
		opts:    opts,
		start:   idx.now(),
		summary: &types.RunSummary{},
	}
	r.record = &RunRecord{
		ID:         newRunID(),
		Mode:       mode,
		VersionTag: opts.VersionTag,
		StartedAt:  r.start,
		Summary:    r.summary,
	}
	if idx.repo != nil {
		r.gitSHA = idx.repo.Head()
	}
	idx.logger.Info("run started",
		"run_id", r.record.ID,
		"mode", mode,
		"version_tag", opts.VersionTag,
		"freeze", opts.Freeze,
	)
	return r
}

func (idx *Indexer) fullRun(ctx context.Context, mode string, opts RunOptions) (*types.RunSummary, error) {
	r := idx.begin(mode, opts)
	r.record.ToRef = r.gitSHA

	state, err := LoadState(idx.statePath)
	if err != nil {
		return idx.finish(r, nil, err)
	}

	sources, err := idx.discoverer.Discover(ctx)
	if err != nil {
		return idx.finish(r, state, err)
	}
	results, err := idx.registry.ParseAll(ctx, sources, idx.cfg.ParseWorkers())
	if err != nil {
		return idx.finish(r, state, err)
	}

	parseFailed := make(map[string]bool)
	var parsed []*types.ParseResult
	for _, res := range results {
		if res == nil {
			continue
		}
		r.summary.FilesParsed++
		if res.HasErrors() {
			parseFailed[res.Path] = true
			idx.recordParseErrors(r.summary, res.Path, res.Errors)
			continue
		}
		parsed = append(parsed, res)
	}

	m, err := model.Build(parsed...)
	if err != nil {
		return idx.finish(r, state, err)
	}

	cs := changes.FullScan(m)
	prune := func(ctx context.Context, decisions []types.DocDecision) ([]types.DocDecision, error) {
		return idx.pruneDecisions(ctx, opts.VersionTag, nil, m, parseFailed, decisions)
	}
	err = idx.execute(ctx, r, cs, prune)
	return idx.finish(r, state, err)
}

func (idx *Indexer) incrementalRun(ctx context.Context, mode string, opts RunOptions, explicitFrom bool) (*types.RunSummary, error) {
	if idx.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRepository, idx.root)
	}
	r := idx.begin(mode, opts)

	state, err := LoadState(idx.statePath)
	if err != nil {
		return idx.finish(r, nil, err)
	}
	ts := state.Tag(opts.VersionTag)

	from := opts.FromRef
	if !explicitFrom && from == "" {
		from = ts.LastRef
	}
	if from != "" {
		h, err := idx.repo.Resolve(from)
		if err != nil {
			return idx.finish(r, state, err)
		}
		from = h.String()
	}

	to := ""
	if !opts.Worktree {
		ref := opts.ToRef
		if ref == "" {
			ref = "HEAD"
		}
		h, err := idx.repo.Resolve(ref)
		if err != nil {
			return idx.finish(r, state, err)
		}
		to = h.String()
		r.gitSHA = to
	}
	r.record.FromRef, r.record.ToRef = from, to

	diffs, err := idx.repo.Diff(ctx, from, to)
	if err != nil {
		return idx.finish(r, state, err)
	}
	diffs = idx.eligibleDiffs(diffs)

	retried, err := idx.retryDiffs(diffs, ts.FailedPaths, to)
	if err != nil {
		return idx.finish(r, state, err)
	}
	diffs = append(diffs, retried...)
	idx.logger.Debug("diff computed", "from", from, "to", to, "files", len(diffs), "retried", len(retried))

	cs, err := idx.detector.Detect(ctx, diffs)
	if err != nil {
		return idx.finish(r, state, err)
	}

	parseFailed := make(map[string]bool, len(cs.FailedPaths))
	for _, p := range cs.FailedPaths {
		parseFailed[p] = true
	}
	for _, pe := range cs.ParseErrors {
		r.summary.ParseErrors++
		r.summary.AddError(pe.Error())
	}
	for _, p := range cs.FailedPaths {
		r.summary.AddFailedFile(p)
	}
	r.summary.FilesParsed = len(cs.Current.Files()) + len(cs.FailedPaths)

	var prune pruneFunc
	if paths := prunePaths(diffs, retried); len(paths) > 0 {
		prune = func(ctx context.Context, decisions []types.DocDecision) ([]types.DocDecision, error) {
			return idx.pruneDecisions(ctx, opts.VersionTag, paths, cs.Current, parseFailed, decisions)
		}
	}

	err = idx.execute(ctx, r, cs, prune)
	return idx.finish(r, state, err)
}

func (idx *Indexer) recordParseErrors(summary *types.RunSummary, path string, errs []types.ParseError) {
	summary.AddFailedFile(path)
	for i := range errs {
		summary.ParseErrors++
		summary.AddError(errs[i].Error())
	}
	idx.logger.Warn("parse failed", "file", path, "error", errs[0].Message)
}

// eligibleDiffs drops files outside the source paths or ignored. A rename
// across the boundary becomes an add or a delete.
func (idx *Indexer) eligibleDiffs(diffs []changes.FileDiff) []changes.FileDiff {
	out := make([]changes.FileDiff, 0, len(diffs))
	for _, d := range diffs {
		if d.Kind != changes.FileRenamed {
			if idx.discoverer.Eligible(d.Path) {
				out = append(out, d)
			}
			continue
		}

		newOK := idx.discoverer.Eligible(d.Path)
		oldOK := idx.discoverer.Eligible(d.OldPath)
		switch {
		case newOK && oldOK:
			out = append(out, d)
		case newOK:
			out = append(out, changes.FileDiff{Path: d.Path, Kind: changes.FileAdded, NewContent: d.NewContent})
		case oldOK:
			out = append(out, changes.FileDiff{Path: d.OldPath, Kind: changes.FileDeleted, OldContent: d.OldContent})
		}
	}
	return out
}

// retryDiffs re-adds files that failed on an earlier run and are not part
// of this diff. They carry no prior content, so every element is looked up
// in the store again.
func (idx *Indexer) retryDiffs(diffs []changes.FileDiff, failed []string, to string) ([]changes.FileDiff, error) {
	if len(failed) == 0 {
		return nil, nil
	}
	inDiff := make(map[string]bool, len(diffs))
	for _, d := range diffs {
		inDiff[d.Path] = true
		if d.OldPath != "" {
			inDiff[d.OldPath] = true
		}
	}

	var out []changes.FileDiff
	for _, p := range failed {
		if inDiff[p] || !idx.discoverer.Eligible(p) {
			continue
		}
		content, ok, err := idx.repo.FileAt(to, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Gone since: records under the path are pruned
			content = nil
		}
		out = append(out, changes.FileDiff{Path: p, Kind: changes.FileModified, NewContent: content})
	}
	return out, nil
}

// prunePaths lists the paths whose stored records are checked against the
// current model. Deleted files and the old side of renames are looked up in
// the store rather than in their prior content, which may not parse.
func prunePaths(diffs, retried []changes.FileDiff) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, d := range diffs {
		switch d.Kind {
		case changes.FileDeleted:
			add(d.Path)
		case changes.FileRenamed:
			add(d.OldPath)
		}
	}
	for _, d := range retried {
		add(d.Path)
	}
	return out
}

type pruneFunc func(ctx context.Context, decisions []types.DocDecision) ([]types.DocDecision, error)

// pruneDecisions returns delete decisions for stored records of the version
// tag whose element is not in m. With files set only records under those
// paths are considered. Files that failed to parse keep their records.
func (idx *Indexer) pruneDecisions(ctx context.Context, tag string, files []string, m *model.Model, skip map[string]bool, decisions []types.DocDecision) ([]types.DocDecision, error) {
	decided := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		decided[d.ElementID] = true
		if d.OldElementID != "" {
			decided[d.OldElementID] = true
		}
	}

	var records []*types.IndexRecord
	if files == nil {
		recs, err := idx.store.Query(ctx, types.Filter{VersionTag: types.Tag(tag)}, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		records = recs
	} else {
		for _, f := range files {
			recs, err := idx.store.Query(ctx, types.Filter{VersionTag: types.Tag(tag), FilePath: f}, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to list records of %s: %w", f, err)
			}
			records = append(records, recs...)
		}
	}

	var out []types.DocDecision
	for _, rec := range records {
		if skip[rec.FilePath] || decided[rec.ElementID] {
			continue
		}
		if _, ok := m.Get(rec.ElementID); ok {
			continue
		}
		decided[rec.ElementID] = true
		out = append(out, types.DocDecision{
			ElementID: rec.ElementID,
			Action:    types.ActionDelete,
			Reason:    "element no longer in source",
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ElementID < out[j].ElementID })
	return out, nil
}

// execute reconciles a change set and applies the resulting operations
func (idx *Indexer) execute(ctx context.Context, r *run, cs *changes.ChangeSet, prune pruneFunc) error {
	result, err := idx.reconciler.Reconcile(ctx, cs, reconciler.Options{
		Freeze:            r.opts.Freeze,
		VersionTag:        r.opts.VersionTag,
		Style:             idx.cfg.DocStyle,
		Project:           idx.project,
		Concurrency:       idx.cfg.LLM.Concurrency,
		RequestsPerSecond: idx.cfg.LLM.RateLimit.RequestsPerSecond,
		Burst:             idx.cfg.LLM.RateLimit.Burst,
		Timeout:           time.Duration(idx.cfg.LLM.Timeout),
		ContextTokens:     idx.cfg.LLM.ContextTokens,
	})
	if result != nil {
		idx.countDecisions(r.summary, result.Decisions)
		for _, p := range result.FailedPaths {
			r.summary.AddFailedFile(p)
		}
	}
	if err != nil {
		return err
	}

	decisions := result.Decisions
	if prune != nil {
		pruned, err := prune(ctx, decisions)
		if err != nil {
			return err
		}
		idx.countDecisions(r.summary, pruned)
		decisions = append(decisions, pruned...)
	}

	ops := syncer.Plan(cs.Current, decisions, syncer.PlanOptions{
		VersionTag: r.opts.VersionTag,
		GitSHA:     r.gitSHA,
	})
	exec := syncer.NewExecutor(idx.store, idx.embedder, idx.chunker,
		syncer.WithWorkers(idx.cfg.LLM.Concurrency),
		syncer.WithLogger(idx.logger),
		syncer.WithKeyLock(idx.keyLock),
		syncer.WithClock(idx.now),
	)
	report, err := exec.Apply(ctx, ops)
	if report != nil {
		r.summary.UpsertsWritten = report.Written
		r.summary.UpsertsSkipped = report.Skipped
		r.summary.Deletes = report.Deleted
		r.summary.Unsynced = report.Unsynced
		for _, msg := range report.Errors {
			r.summary.AddError(msg)
		}
		for _, p := range report.UnsyncedPaths {
			r.summary.AddFailedFile(p)
		}
		if report.Written > 0 || report.Deleted > 0 {
			idx.searcher.InvalidateCache()
		}
	}
	return err
}

func (idx *Indexer) countDecisions(summary *types.RunSummary, decisions []types.DocDecision) {
	for _, d := range decisions {
		summary.CountDecision(d.Action)
		if d.Action == types.ActionFailed && d.Err != nil {
			summary.AddError(d.Err.Error())
		}
	}
}

// finish stamps the summary and persists run state. The last synced ref only
// advances after a run that got through every step; failed files are kept
// for the next run either way.
func (idx *Indexer) finish(r *run, state *State, runErr error) (*types.RunSummary, error) {
	r.summary.Duration = idx.now().Sub(r.start)
	sort.Strings(r.summary.FailedFiles)
	r.record.Cancelled = errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)

	if state != nil {
		ts := state.Tag(r.opts.VersionTag)
		if runErr == nil {
			ts.FailedPaths = append([]string(nil), r.summary.FailedFiles...)
			ts.SyncedAt = idx.now()
			if r.mode != ModeDocPR && r.gitSHA != "" {
				ts.LastRef = r.gitSHA
			}
		} else {
			ts.FailedPaths = mergePaths(ts.FailedPaths, r.summary.FailedFiles)
		}
		state.LastRun = r.record
		if err := state.Save(idx.statePath); err != nil {
			idx.logger.Warn("failed to save run state", "path", idx.statePath, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}

	attrs := []any{
		"run_id", r.record.ID,
		"mode", r.mode,
		"generated", r.summary.Generated,
		"refreshed", r.summary.Refreshed,
		"preserved", r.summary.Preserved,
		"extracted", r.summary.Extracted,
		"failed", r.summary.Failed,
		"removed", r.summary.Removed,
		"written", r.summary.UpsertsWritten,
		"skipped", r.summary.UpsertsSkipped,
		"deleted", r.summary.Deletes,
		"unsynced", r.summary.Unsynced,
		"parse_errors", r.summary.ParseErrors,
		"duration", r.summary.Duration,
	}
	if runErr != nil {
		idx.logger.Warn("run stopped", append(attrs, "error", runErr)...)
	} else {
		idx.logger.Info("run finished", attrs...)
	}
	return r.summary, runErr
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Status describes the index and the recorded run state
type Status struct {
	Root    string
	Project string
	Head    string
	Running bool

	Tags    map[string]*TagState
	LastRun *RunRecord
	Store   *storage.Stats
}

// Status reads the run state and the store statistics
func (idx *Indexer) Status(ctx context.Context) (*Status, error) {
	state, err := LoadState(idx.statePath)
	if err != nil {
		return nil, err
	}
	stats, err := idx.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}

	st := &Status{
		Root:    idx.root,
		Project: idx.project.Name,
		Running: idx.lock.Held(),
		Tags:    state.Tags,
		LastRun: state.LastRun,
		Store:   stats,
	}
	if idx.repo != nil {
		st.Head = idx.repo.Head()
	}
	return st, nil
}

// Search queries the index
func (idx *Indexer) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	return idx.searcher.Search(ctx, req)
}
