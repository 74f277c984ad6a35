// Package chunker composes the text that is embedded for each index record
// and keeps it within a token budget.
//
// # Basic Usage
//
//	c := chunker.New(chunker.DefaultCounter(), 0)
//	input := c.Compose(rec)
//	vec, err := emb.Embed(ctx, input)
//
// # Record Layout
//
// The embedding input has three parts separated by blank lines:
//   - Header: kind, qualified name and file ("method a.C.f (a.py)")
//   - Documentation: the record text, trimmed to the remaining budget
//   - Signature: the declaration line of the element
//
// The stored record keeps the full documentation; only the embedding input
// is trimmed.
//
// # Token Counting
//
// Counter uses tiktoken's cl100k_base encoding when it can be loaded and
// falls back to a chars/4 estimate otherwise:
//
//	n := chunker.DefaultCounter().Count(text)
//	short := chunker.DefaultCounter().Truncate(text, 256)
//
// The generator uses the same counter to cap the element source it sends
// along with a prompt.
package chunker
