package reconciler

import (
	"github.com/dshills/docsync/internal/changes"
	"github.com/dshills/docsync/pkg/types"
)

// Input is everything Decide looks at for one element
type Input struct {
	Change changes.ElementChange

	// Record is the stored record for the element's current key, if any
	Record *types.IndexRecord

	// OldRecord is the stored record under the prior ID of a moved element
	OldRecord *types.IndexRecord

	Freeze bool
}

// Decide picks the documentation action for one element. It is pure: the
// same input always yields the same decision, and no other element's
// decision is consulted.
func Decide(in Input) types.DocDecision {
	c := in.Change

	if c.Status == changes.StatusRemoved || c.Element == nil {
		return types.DocDecision{
			ElementID: c.ID(),
			Action:    types.ActionDelete,
			Reason:    "element removed",
		}
	}

	el := c.Element
	d := types.DocDecision{ElementID: el.ID}
	if c.Status == changes.StatusMoved && c.Old != nil && c.Old.ID != el.ID {
		d.OldElementID = c.Old.ID
	}

	if in.Freeze {
		d.Action = types.ActionExtractOnly
		d.Text = el.DocText()
		if d.Text == "" {
			d.Reason = "freeze mode, no documentation in source"
		} else {
			d.Reason = "freeze mode"
		}
		return d
	}

	// A moved element without a record under its new ID carries over the
	// record of its old ID
	record := in.Record
	if record == nil && c.Status == changes.StatusMoved {
		record = in.OldRecord
		if record != nil && !c.ContentChanged() {
			d.Action = types.ActionPreserve
			d.Reason = "moved, content unchanged"
			d.Text = firstNonEmpty(el.DocText(), record.Text)
			return d
		}
	}

	stored := ""
	if record != nil {
		stored = record.Text
	}
	prior := firstNonEmpty(el.DocText(), stored)

	switch {
	case prior == "":
		d.Action = types.ActionGenerate
		d.Reason = "no documentation"

	case record == nil:
		// Hand-written documentation seen for the first time is harvested
		d.Action = types.ActionPreserve
		d.Reason = "existing documentation, not yet indexed"
		d.Text = el.DocText()

	case unchanged(c, record):
		d.Action = types.ActionPreserve
		d.Reason = "unchanged"
		d.Text = prior

	default:
		d.Action = types.ActionRefresh
		d.Reason = "content changed"
		d.PriorDoc = prior
	}

	return d
}

// unchanged reports whether the element matches what was indexed. A moved
// element carried over from its old record counts as changed when its body
// differs from the old version.
func unchanged(c changes.ElementChange, record *types.IndexRecord) bool {
	if c.Status == changes.StatusMoved && c.ContentChanged() && record.ElementID != c.Element.ID {
		return false
	}
	if record.ContentHash != "" && record.ContentHash == c.Element.ContentHash {
		return true
	}
	return c.Status == changes.StatusUnchanged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
