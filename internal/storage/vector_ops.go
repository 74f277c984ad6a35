package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/dshills/docsync/pkg/types"
)

// hierarchySep joins hierarchy path segments in the hierarchy_key column.
// It cannot occur in qualified names.
const hierarchySep = "\x1f"

// timestampLayout is fixed width so stored timestamps sort as text
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// hierarchyKey encodes a hierarchy path so that a prefix of the path is a
// string prefix of the key. Every segment is terminated, so "a" never
// matches "ab".
func hierarchyKey(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return strings.Join(path, hierarchySep) + hierarchySep
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// dialect describes how a SQL backend spells bind parameters and prefix tests
type dialect struct {
	placeholder func(n int) string
	hasPrefix   func(col, param string) string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	hasPrefix:   func(col, param string) string { return "instr(" + col + ", " + param + ") = 1" },
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	hasPrefix:   func(col, param string) string { return "starts_with(" + col + ", " + param + ")" },
}

// filterBuilder accumulates WHERE conditions and their arguments in order
type filterBuilder struct {
	d     dialect
	alias string
	conds []string
	args  []any
}

func newFilterBuilder(d dialect, alias string) *filterBuilder {
	return &filterBuilder{d: d, alias: alias}
}

// arg binds a value and returns its placeholder
func (b *filterBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *filterBuilder) col(name string) string {
	if b.alias == "" {
		return name
	}
	return b.alias + "." + name
}

// cond adds a raw condition
func (b *filterBuilder) cond(c string) {
	b.conds = append(b.conds, c)
}

func (b *filterBuilder) eq(col string, v any) {
	b.cond(b.col(col) + " = " + b.arg(v))
}

// apply adds the conditions of a record filter
func (b *filterBuilder) apply(f types.Filter) *filterBuilder {
	if f.ElementID != "" {
		b.eq("element_id", f.ElementID)
	}
	if f.VersionTag != nil {
		b.eq("version_tag", *f.VersionTag)
	}
	if f.Language != "" {
		b.eq("language", f.Language)
	}
	if f.Kind != "" {
		b.eq("kind", string(f.Kind))
	}
	if f.FilePath != "" {
		b.eq("file_path", f.FilePath)
	}
	if len(f.HierarchyPrefix) > 0 {
		b.cond(b.d.hasPrefix(b.col("hierarchy_key"), b.arg(hierarchyKey(f.HierarchyPrefix))))
	}
	return b
}

// where renders the accumulated conditions, or "" when there are none
func (b *filterBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// prefixed qualifies a comma-separated column list with a table alias
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizeBM25 maps an FTS5 bm25 score (negative, lower is better) into
// (0, 1]. Scores are typically in [-50, 0].
func normalizeBM25(score float64) float64 {
	return 1.0 / (1.0 + math.Abs(score)/50.0)
}

var ftsTokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// sanitizeFTSQuery turns free text into an FTS5 query that matches any of its
// words. Every token is quoted, so FTS5 operators and syntax characters in the
// input are treated as plain text.
func sanitizeFTSQuery(query string) string {
	tokens := ftsTokenRe.FindAllString(query, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}
