package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// RecordKey identifies one index entry. The same element may be indexed under
// several version tags at once.
type RecordKey struct {
	ElementID  string
	VersionTag string
}

// String returns a printable form of the key
func (k RecordKey) String() string {
	if k.VersionTag == "" {
		return k.ElementID
	}
	return k.ElementID + "@" + k.VersionTag
}

// IndexRecord is the metadata contract for one vector-store entry
type IndexRecord struct {
	// Identification
	ElementID  string
	VersionTag string

	// Content
	Text string

	// Metadata
	FilePath      string
	Language      string
	Kind          ElementKind
	Name          string
	QualifiedName string
	Signature     string
	HierarchyPath []string

	// Change tracking
	ContentHash string // Hash of the element source
	RecordHash  string // Hash of text and metadata
	GitSHA      string
	UpdatedAt   time.Time
}

// Key returns the record's primary key
func (r *IndexRecord) Key() RecordKey {
	return RecordKey{ElementID: r.ElementID, VersionTag: r.VersionTag}
}

// ComputeRecordHash hashes everything that would change the stored entry.
// UpdatedAt and GitSHA are excluded so unchanged content hashes the same
// across runs.
func (r *IndexRecord) ComputeRecordHash() string {
	h := sha256.New()
	for _, part := range []string{
		r.ElementID,
		r.VersionTag,
		r.Text,
		r.FilePath,
		r.Language,
		string(r.Kind),
		r.Name,
		r.QualifiedName,
		r.Signature,
		strings.Join(r.HierarchyPath, "\x1f"),
		r.ContentHash,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	r.RecordHash = hex.EncodeToString(h.Sum(nil))
	return r.RecordHash
}

// Validate checks that a record can be written
func (r *IndexRecord) Validate() error {
	if r.ElementID == "" {
		return errors.New("record element ID is required")
	}

	if r.Text == "" {
		return errors.New("record text cannot be empty")
	}

	if r.FilePath == "" {
		return errors.New("record file path is required")
	}

	if err := ValidateKind(r.Kind); err != nil {
		return err
	}

	if r.RecordHash == "" {
		return errors.New("record hash must be computed")
	}

	return nil
}

// Filter selects index records. Zero-valued fields match everything.
// VersionTag is a pointer so that "all tags" and "untagged" can be told apart.
type Filter struct {
	ElementID       string
	VersionTag      *string
	Language        string
	Kind            ElementKind
	FilePath        string
	HierarchyPrefix []string
}

// Tag returns a pointer suitable for Filter.VersionTag
func Tag(tag string) *string {
	return &tag
}

// IsEmpty reports whether the filter matches every record
func (f Filter) IsEmpty() bool {
	return f.ElementID == "" && f.VersionTag == nil && f.Language == "" &&
		f.Kind == "" && f.FilePath == "" && len(f.HierarchyPrefix) == 0
}

// Matches reports whether a record satisfies the filter
func (f Filter) Matches(r *IndexRecord) bool {
	if f.ElementID != "" && r.ElementID != f.ElementID {
		return false
	}
	if f.VersionTag != nil && r.VersionTag != *f.VersionTag {
		return false
	}
	if f.Language != "" && r.Language != f.Language {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.FilePath != "" && r.FilePath != f.FilePath {
		return false
	}
	if len(f.HierarchyPrefix) > len(r.HierarchyPath) {
		return false
	}
	for i, p := range f.HierarchyPrefix {
		if r.HierarchyPath[i] != p {
			return false
		}
	}
	return true
}
