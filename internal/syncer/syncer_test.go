package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsync/internal/embedder"
	"github.com/dshills/docsync/internal/model"
	"github.com/dshills/docsync/internal/parser"
	"github.com/dshills/docsync/pkg/types"
)

const aPy = `"""Module a."""


class C:
    """A class."""

    def f(self, x):
        """Doubles x."""
        return x * 2


def top():
    return 1
`

type fakeStore struct {
	mu      sync.Mutex
	records map[types.RecordKey]*types.IndexRecord
	vectors map[types.RecordKey][]float32
	upserts int
	failOn  map[string]error // by element ID
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[types.RecordKey]*types.IndexRecord),
		vectors: make(map[types.RecordKey][]float32),
		failOn:  make(map[string]error),
	}
}

func (s *fakeStore) Upsert(ctx context.Context, rec *types.IndexRecord, vector []float32) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[rec.ElementID]; err != nil {
		return err
	}
	cp := *rec
	s.records[rec.Key()] = &cp
	s.vectors[rec.Key()] = vector
	s.upserts++
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, filter types.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[filter.ElementID]; err != nil {
		return 0, err
	}
	n := 0
	for key, rec := range s.records {
		if filter.Matches(rec) {
			delete(s.records, key)
			delete(s.vectors, key)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ExistsWithHash(ctx context.Context, key types.RecordKey, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return ok && rec.RecordHash == hash, nil
}

// countingEmbedder wraps the local provider and counts calls
type countingEmbedder struct {
	embedder.Embedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func newEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	local, err := embedder.NewLocalProvider(16, nil)
	require.NoError(t, err)
	return &countingEmbedder{Embedder: local}
}

func buildModel(t *testing.T) *model.Model {
	t.Helper()
	reg := parser.NewRegistry(parser.DefaultOptions())
	res, err := reg.Parse("a.py", []byte(aPy), types.LangPython)
	require.NoError(t, err)
	m, err := model.Build(res)
	require.NoError(t, err)
	return m
}

func lookup(t *testing.T, m *model.Model, qname string, kind types.ElementKind) *types.CodeElement {
	t.Helper()
	el, ok := m.Lookup("a.py", qname, kind)
	require.True(t, ok, qname)
	return el
}

func preserveAll(m *model.Model) []types.DocDecision {
	var out []types.DocDecision
	for _, el := range m.Elements() {
		text := el.DocText()
		action := types.ActionPreserve
		if text == "" {
			text = "generated " + el.QualifiedName
			action = types.ActionGenerate
		}
		out = append(out, types.DocDecision{ElementID: el.ID, Action: action, Text: text})
	}
	return out
}

func TestPlan_UpsertsCarryMetadata(t *testing.T) {
	m := buildModel(t)
	ops := Plan(m, preserveAll(m), PlanOptions{VersionTag: "v1", GitSHA: "abc"})
	require.Len(t, ops, 4)

	f := lookup(t, m, "a.C.f", types.KindMethod)
	var rec *types.IndexRecord
	for _, op := range ops {
		assert.Equal(t, OpUpsert, op.Kind)
		assert.Equal(t, "v1", op.Key.VersionTag)
		if op.Key.ElementID == f.ID {
			rec = op.Record
		}
	}
	require.NotNil(t, rec)
	assert.Equal(t, "Doubles x.", rec.Text)
	assert.Equal(t, []string{"a", "a.C"}, rec.HierarchyPath)
	assert.Equal(t, "abc", rec.GitSHA)
	assert.Equal(t, "a.py", rec.FilePath)
	assert.Equal(t, types.LangPython, rec.Language)
	assert.Equal(t, "def f(self, x)", rec.Signature)
	assert.Equal(t, f.ContentHash, rec.ContentHash)
	assert.NotEmpty(t, rec.RecordHash)
	assert.NoError(t, rec.Validate())
}

func TestPlan_Deterministic(t *testing.T) {
	m := buildModel(t)
	decisions := preserveAll(m)
	reversed := make([]types.DocDecision, len(decisions))
	for i, d := range decisions {
		reversed[len(decisions)-1-i] = d
	}

	a := Plan(m, decisions, PlanOptions{})
	b := Plan(m, reversed, PlanOptions{})
	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.Less(t, a[i-1].Key.ElementID, a[i].Key.ElementID)
	}
}

func TestPlan_OneUpsertPerKey(t *testing.T) {
	m := buildModel(t)
	top := lookup(t, m, "a.top", types.KindFunction)
	ops := Plan(m, []types.DocDecision{
		{ElementID: top.ID, Action: types.ActionPreserve, Text: "first"},
		{ElementID: top.ID, Action: types.ActionGenerate, Text: "second"},
	}, PlanOptions{})
	require.Len(t, ops, 1)
	assert.Equal(t, "first", ops[0].Record.Text)
}

func TestPlan_SkipsDecisionsWithoutRecords(t *testing.T) {
	m := buildModel(t)
	top := lookup(t, m, "a.top", types.KindFunction)
	ops := Plan(m, []types.DocDecision{
		{ElementID: top.ID, Action: types.ActionExtractOnly},
		{ElementID: top.ID, Action: types.ActionFailed, Err: errors.New("boom")},
		{ElementID: "not-in-model", Action: types.ActionGenerate, Text: "x"},
	}, PlanOptions{})
	assert.Empty(t, ops)
}

func TestPlan_DeleteScope(t *testing.T) {
	m := model.Empty()
	decisions := []types.DocDecision{{ElementID: "gone", Action: types.ActionDelete}}

	ops := Plan(m, decisions, PlanOptions{VersionTag: "v2"})
	require.Len(t, ops, 1)
	assert.Equal(t, OpDelete, ops[0].Kind)
	assert.Equal(t, "gone", ops[0].Filter.ElementID)
	require.NotNil(t, ops[0].Filter.VersionTag)
	assert.Equal(t, "v2", *ops[0].Filter.VersionTag)

	ops = Plan(m, decisions, PlanOptions{})
	require.Len(t, ops, 1)
	assert.Nil(t, ops[0].Filter.VersionTag, "untagged runs delete across all tags")
}

func TestPlan_MovedElementDeletesOldID(t *testing.T) {
	m := buildModel(t)
	top := lookup(t, m, "a.top", types.KindFunction)
	ops := Plan(m, []types.DocDecision{
		{ElementID: top.ID, OldElementID: "old-top", Action: types.ActionPreserve, Text: "kept"},
	}, PlanOptions{})

	require.Len(t, ops, 2)
	kinds := map[string]OpKind{}
	for _, op := range ops {
		kinds[op.Key.ElementID] = op.Kind
	}
	assert.Equal(t, OpUpsert, kinds[top.ID])
	assert.Equal(t, OpDelete, kinds["old-top"])
}

func TestPlan_MovedElementWithoutRecordDeletesOldID(t *testing.T) {
	m := buildModel(t)
	top := lookup(t, m, "a.top", types.KindFunction)

	tests := []struct {
		name     string
		decision types.DocDecision
	}{
		{"freeze without doc", types.DocDecision{ElementID: top.ID, OldElementID: "old-top", Action: types.ActionExtractOnly}},
		{"generation failed", types.DocDecision{ElementID: top.ID, OldElementID: "old-top", Action: types.ActionFailed, Err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := Plan(m, []types.DocDecision{tt.decision}, PlanOptions{VersionTag: "v1"})
			require.Len(t, ops, 1)
			assert.Equal(t, OpDelete, ops[0].Kind)
			assert.Equal(t, "old-top", ops[0].Filter.ElementID)
			assert.Equal(t, "a.py", ops[0].Path)
			require.NotNil(t, ops[0].Filter.VersionTag)
			assert.Equal(t, "v1", *ops[0].Filter.VersionTag)
		})
	}

	// An upsert of the old ID in the same run wins over its delete
	f := lookup(t, m, "a.C.f", types.KindMethod)
	ops := Plan(m, []types.DocDecision{
		{ElementID: top.ID, OldElementID: f.ID, Action: types.ActionExtractOnly},
		{ElementID: f.ID, Action: types.ActionPreserve, Text: "kept"},
	}, PlanOptions{})
	require.Len(t, ops, 1)
	assert.Equal(t, OpUpsert, ops[0].Kind)
	assert.Equal(t, f.ID, ops[0].Key.ElementID)
}

func TestPlan_DeleteDroppedWhenUpserted(t *testing.T) {
	m := buildModel(t)
	top := lookup(t, m, "a.top", types.KindFunction)
	ops := Plan(m, []types.DocDecision{
		{ElementID: top.ID, Action: types.ActionDelete},
		{ElementID: top.ID, Action: types.ActionGenerate, Text: "doc"},
	}, PlanOptions{})
	require.Len(t, ops, 1)
	assert.Equal(t, OpUpsert, ops[0].Kind)
}

func TestKeyLock_SerializesSameKey(t *testing.T) {
	l := NewKeyLock()
	key := types.RecordKey{ElementID: "x"}

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(key)
			defer unlock()
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, l.Len(), "entries are released")
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	l := NewKeyLock()
	unlockA := l.Lock(types.RecordKey{ElementID: "a"})
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock(types.RecordKey{ElementID: "b"})
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestApply_WritesAndSkipsUnchanged(t *testing.T) {
	m := buildModel(t)
	store := newFakeStore()
	emb := newEmbedder(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := NewExecutor(store, emb, nil, WithClock(func() time.Time { return fixed }))

	ops := Plan(m, preserveAll(m), PlanOptions{})
	report, err := exec.Apply(context.Background(), ops)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Written)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, int32(4), emb.calls.Load())

	for key, rec := range store.records {
		assert.Equal(t, fixed, rec.UpdatedAt)
		assert.Len(t, store.vectors[key], 16)
	}

	// Second run over identical input writes nothing and embeds nothing
	report, err = exec.Apply(context.Background(), Plan(m, preserveAll(m), PlanOptions{}))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Written)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, int32(4), emb.calls.Load())
	assert.Equal(t, 4, store.upserts)
}

func TestApply_VersionTagsCoexist(t *testing.T) {
	m := buildModel(t)
	store := newFakeStore()
	exec := NewExecutor(store, newEmbedder(t), nil)

	_, err := exec.Apply(context.Background(), Plan(m, preserveAll(m), PlanOptions{VersionTag: "v1"}))
	require.NoError(t, err)
	_, err = exec.Apply(context.Background(), Plan(m, preserveAll(m), PlanOptions{VersionTag: "v2"}))
	require.NoError(t, err)
	assert.Len(t, store.records, 8)

	top := lookup(t, m, "a.top", types.KindFunction)
	report, err := exec.Apply(context.Background(), Plan(m, []types.DocDecision{
		{ElementID: top.ID, Action: types.ActionDelete},
	}, PlanOptions{VersionTag: "v1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Contains(t, store.records, types.RecordKey{ElementID: top.ID, VersionTag: "v2"})
}

func TestApply_StoreErrorMarksUnsynced(t *testing.T) {
	m := buildModel(t)
	store := newFakeStore()
	top := lookup(t, m, "a.top", types.KindFunction)
	store.failOn[top.ID] = errors.New("disk full")
	exec := NewExecutor(store, newEmbedder(t), nil)

	report, err := exec.Apply(context.Background(), Plan(m, preserveAll(m), PlanOptions{}))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)
	assert.Equal(t, 1, report.Unsynced)
	assert.Equal(t, []string{"a.py"}, report.UnsyncedPaths)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "disk full")
}

func TestApply_EmbedErrorMarksUnsynced(t *testing.T) {
	m := buildModel(t)
	store := newFakeStore()
	exec := NewExecutor(store, failingEmbedder{newEmbedder(t)}, nil)

	report, err := exec.Apply(context.Background(), Plan(m, preserveAll(m), PlanOptions{}))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Unsynced)
	assert.Empty(t, store.records)
}

type failingEmbedder struct {
	embedder.Embedder
}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, embedder.ErrProviderFailed
}

func TestApply_BoundedWorkers(t *testing.T) {
	m := buildModel(t)
	store := newFakeStore()
	store.delay = 10 * time.Millisecond
	exec := NewExecutor(store, newEmbedder(t), nil, WithWorkers(2))

	report, err := exec.Apply(context.Background(), Plan(m, preserveAll(m), PlanOptions{}))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Written)
	assert.LessOrEqual(t, store.peak.Load(), int32(2))
}

func TestApply_Cancelled(t *testing.T) {
	m := buildModel(t)
	store := newFakeStore()
	exec := NewExecutor(store, newEmbedder(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := exec.Apply(ctx, Plan(m, preserveAll(m), PlanOptions{}))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Written)
	assert.Empty(t, store.records)
}
