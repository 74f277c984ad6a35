package types

// DocAction is the outcome of reconciling one element's documentation
type DocAction string

const (
	ActionGenerate    DocAction = "generate"
	ActionRefresh     DocAction = "refresh"
	ActionPreserve    DocAction = "preserve"
	ActionExtractOnly DocAction = "extract_only"
	ActionDelete      DocAction = "delete"
	ActionFailed      DocAction = "failed"
)

// DocDecision is the reconciler's verdict for one element
type DocDecision struct {
	ElementID string
	Action    DocAction
	Reason    string

	// Text is the documentation that ends up in the index. Empty for
	// deletes, failures and freeze-mode elements without a doc.
	Text string

	// PriorDoc is the documentation handed to the generator on refresh
	PriorDoc string

	// OldElementID is set for elements carried over from a renamed file
	OldElementID string

	Err error
}

// RequiresGeneration reports whether the action calls the documentation generator
func (a DocAction) RequiresGeneration() bool {
	return a == ActionGenerate || a == ActionRefresh
}

// ProducesRecord reports whether the decision results in an index upsert
func (d *DocDecision) ProducesRecord() bool {
	switch d.Action {
	case ActionGenerate, ActionRefresh, ActionPreserve, ActionExtractOnly:
		return d.Text != ""
	default:
		return false
	}
}
