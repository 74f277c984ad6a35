package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/docsync/pkg/types"
)

// StateFile is the run state file inside the state directory
const StateFile = "state.json"

// TagState is what the last runs left behind for one version tag.
// LastRef is the commit the tag was last synced to; FailedPaths are
// retried on the next incremental run.
type TagState struct {
	LastRef     string    `json:"last_ref,omitempty"`
	FailedPaths []string  `json:"failed_paths,omitempty"`
	SyncedAt    time.Time `json:"synced_at"`
}

// RunRecord describes the most recent run
type RunRecord struct {
	ID         string            `json:"id"`
	Mode       string            `json:"mode"`
	VersionTag string            `json:"version_tag,omitempty"`
	FromRef    string            `json:"from_ref,omitempty"`
	ToRef      string            `json:"to_ref,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Cancelled  bool              `json:"cancelled,omitempty"`
	Summary    *types.RunSummary `json:"summary"`
}

// State is persisted between runs. Tags are keyed by version tag; the
// untagged index uses the empty key.
type State struct {
	Tags    map[string]*TagState `json:"tags"`
	LastRun *RunRecord           `json:"last_run,omitempty"`
}

// Tag returns the state of a version tag, creating it if needed
func (s *State) Tag(tag string) *TagState {
	if s.Tags == nil {
		s.Tags = make(map[string]*TagState)
	}
	ts, ok := s.Tags[tag]
	if !ok {
		ts = &TagState{}
		s.Tags[tag] = ts
	}
	return ts
}

// TagNames returns the tags with state, sorted
func (s *State) TagNames() []string {
	names := make([]string, 0, len(s.Tags))
	for name := range s.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newRunID() string {
	return uuid.NewString()
}

// LoadState reads the state file. A missing file yields an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{Tags: make(map[string]*TagState)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", path, err)
	}
	if s.Tags == nil {
		s.Tags = make(map[string]*TagState)
	}
	return &s, nil
}

// Save writes the state atomically through a temp file in the same directory
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}
