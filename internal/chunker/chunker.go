package chunker

import (
	"fmt"
	"strings"

	"github.com/dshills/docsync/pkg/types"
)

const (
	// MaxTokensPerRecord is the default budget for the text of one index record
	MaxTokensPerRecord = 1000
)

// Chunker composes the text that is embedded for an index record
type Chunker struct {
	counter   *Counter
	maxTokens int
}

// New creates a Chunker. A nil counter uses the character estimate and a
// non-positive budget uses MaxTokensPerRecord.
func New(counter *Counter, maxTokens int) *Chunker {
	if counter == nil {
		counter = NewEstimator()
	}
	if maxTokens <= 0 {
		maxTokens = MaxTokensPerRecord
	}
	return &Chunker{counter: counter, maxTokens: maxTokens}
}

// Counter returns the token counter used for budgets
func (c *Chunker) Counter() *Counter {
	return c.counter
}

// Header renders the first line of an embedding input: kind, qualified name
// and file
func Header(rec *types.IndexRecord) string {
	return fmt.Sprintf("%s %s (%s)", rec.Kind, rec.QualifiedName, rec.FilePath)
}

// Compose builds the text that is embedded for a record. The header and
// signature are always kept; the documentation is trimmed when the whole
// text would exceed the budget. A record without text yields "".
func (c *Chunker) Compose(rec *types.IndexRecord) string {
	doc := strings.TrimSpace(rec.Text)
	if doc == "" {
		return ""
	}

	header := Header(rec)
	sig := strings.TrimSpace(rec.Signature)

	frame := header
	if sig != "" {
		frame += "\n" + sig
	}

	budget := c.maxTokens - c.counter.Count(frame) - 2
	if budget < 1 {
		budget = 1
	}
	if c.counter.Count(doc) > budget {
		doc = strings.TrimSpace(c.counter.Truncate(doc, budget))
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(doc)
	if sig != "" {
		b.WriteString("\n\n")
		b.WriteString(sig)
	}
	return b.String()
}
