// Package syncer turns documentation decisions into index operations and
// applies them to a vector store.
package syncer

import (
	"sort"

	"github.com/dshills/docsync/internal/model"
	"github.com/dshills/docsync/pkg/types"
)

// OpKind is the type of an index operation
type OpKind string

const (
	OpUpsert OpKind = "upsert"
	OpDelete OpKind = "delete"
)

// Operation is one write against the vector store. Upserts carry the full
// record; deletes carry the filter selecting the records to drop.
type Operation struct {
	Kind   OpKind
	Key    types.RecordKey
	Record *types.IndexRecord
	Filter types.Filter
	Path   string // source file, used to report unsynced work
	Reason string
}

// PlanOptions carries run metadata stamped onto every record
type PlanOptions struct {
	VersionTag string
	GitSHA     string
}

// Plan builds the operations for one run. The result is sorted by key and
// contains at most one upsert per key; a delete is dropped when the same
// element is upserted in this run. Moved elements always get a delete for
// their old ID.
func Plan(m *model.Model, decisions []types.DocDecision, opts PlanOptions) []Operation {
	upserts := make(map[types.RecordKey]Operation)
	deletes := make(map[string]Operation)

	addDelete := func(id, path, reason string) {
		if id == "" {
			return
		}
		if _, ok := deletes[id]; ok {
			return
		}
		op := Operation{
			Kind:   OpDelete,
			Key:    types.RecordKey{ElementID: id, VersionTag: opts.VersionTag},
			Filter: types.Filter{ElementID: id},
			Path:   path,
			Reason: reason,
		}
		if opts.VersionTag != "" {
			op.Filter.VersionTag = types.Tag(opts.VersionTag)
		}
		deletes[id] = op
	}

	for _, d := range decisions {
		// The old ID of a moved element goes away whatever happens to the
		// new one: no text in freeze mode and failed generation included
		if d.Action != types.ActionDelete && d.OldElementID != "" && d.OldElementID != d.ElementID {
			path := ""
			if el, ok := m.Get(d.ElementID); ok {
				path = el.FilePath()
			}
			addDelete(d.OldElementID, path, "moved")
		}

		switch {
		case d.Action == types.ActionDelete:
			addDelete(d.ElementID, "", d.Reason)

		case d.ProducesRecord():
			el, ok := m.Get(d.ElementID)
			if !ok {
				continue
			}
			rec := buildRecord(m, el, d.Text, opts)
			key := rec.Key()
			if _, ok := upserts[key]; ok {
				continue
			}
			upserts[key] = Operation{
				Kind:   OpUpsert,
				Key:    key,
				Record: rec,
				Path:   el.FilePath(),
				Reason: string(d.Action),
			}
		}
	}

	ops := make([]Operation, 0, len(upserts)+len(deletes))
	for _, op := range upserts {
		ops = append(ops, op)
	}
	for id, op := range deletes {
		if upsertedElement(upserts, id) {
			continue
		}
		ops = append(ops, op)
	}

	sort.Slice(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if a.Key.ElementID != b.Key.ElementID {
			return a.Key.ElementID < b.Key.ElementID
		}
		if a.Key.VersionTag != b.Key.VersionTag {
			return a.Key.VersionTag < b.Key.VersionTag
		}
		return a.Kind < b.Kind
	})
	return ops
}

func upsertedElement(upserts map[types.RecordKey]Operation, id string) bool {
	for key := range upserts {
		if key.ElementID == id {
			return true
		}
	}
	return false
}

// buildRecord assembles the index record of an element. The hierarchy path
// always comes from the current model.
func buildRecord(m *model.Model, el *types.CodeElement, text string, opts PlanOptions) *types.IndexRecord {
	rec := &types.IndexRecord{
		ElementID:     el.ID,
		VersionTag:    opts.VersionTag,
		Text:          text,
		FilePath:      el.FilePath(),
		Language:      el.Language,
		Kind:          el.Kind,
		Name:          el.Name,
		QualifiedName: el.QualifiedName,
		Signature:     el.Signature,
		HierarchyPath: m.HierarchyPath(el.ID),
		ContentHash:   el.ContentHash,
		GitSHA:        opts.GitSHA,
	}
	rec.ComputeRecordHash()
	return rec
}
