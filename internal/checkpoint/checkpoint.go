// Package checkpoint writes and reads the JSON sidecar snapshots taken
// before a restorable tool call (replace/write_file) executes, so a
// user can roll back both the file it touched and the conversation
// that led up to it.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samsaffron/turnsched/internal/modelapi"
)

// ToolCallRef names the tool call a checkpoint guards: just enough to
// describe what was about to happen, not a full ToolCall (whose
// lifecycle state has no meaning once restored).
type ToolCallRef struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Snapshot is one restore point: the conversation exactly as it stood
// before the guarded call ran, the call itself, and the file state it
// is about to overwrite.
type Snapshot struct {
	History       []modelapi.Message `json:"history"`
	ClientHistory []modelapi.Message `json:"clientHistory"`
	ToolCall      ToolCallRef        `json:"toolCall"`
	CommitHash    string             `json:"commitHash"`
	FilePath      string             `json:"filePath"`

	// content is the file's text immediately before the call ran. It
	// isn't part of the sidecar shape the spec mandates; it is carried
	// alongside the snapshot in-memory and round-tripped through the
	// sidecar's extra "content" field so List/ForFilePath can still
	// restore file content without a second store.
	Content string `json:"-"`

	createdAt time.Time
}

// sidecar is the on-disk JSON shape; it exists separately from
// Snapshot so Content/createdAt (not part of the spec's sidecar
// fields) can still round-trip through the same file.
type sidecar struct {
	History       []modelapi.Message `json:"history"`
	ClientHistory []modelapi.Message `json:"clientHistory"`
	ToolCall      ToolCallRef        `json:"toolCall"`
	CommitHash    string             `json:"commitHash"`
	FilePath      string             `json:"filePath"`
	Content       string             `json:"content"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Store writes snapshots under <dir>/checkpoints/ and can list/read
// them back by walking that directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at projectTempDir/checkpoints,
// creating the directory if needed.
func NewStore(projectTempDir string) (*Store, error) {
	dir := filepath.Join(projectTempDir, "checkpoints")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// timestampReplacer turns a fixed-width, millisecond-precision ISO-8601
// timestamp into a filesystem-safe token by replacing ':' and '.' with
// '-', so a directory listing sorts chronologically without reading
// file contents and never collides with path separators.
var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// filename follows <ISO-timestamp>-<basename>-<toolName>.json.
func filename(now time.Time, filePath, toolName string) string {
	ts := timestampReplacer.Replace(now.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	base := filepath.Base(filePath)
	return fmt.Sprintf("%s-%s-%s.json", ts, base, toolName)
}

// headCommit best-effort resolves the current HEAD commit of the git
// repository containing filePath, mirroring the teacher tool package's
// DetectGitRepo pattern: shell out, return zero value on any failure
// rather than surfacing an error for what is purely informational
// metadata.
func headCommit(filePath string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = filepath.Dir(filePath)
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Save writes a new Snapshot guarding toolName's call against filePath,
// capturing the conversation as it stood at call time (history is the
// full comprehensive record; clientHistory is whatever narrower view a
// client-facing surface renders, often the same slice) plus content,
// the file's text immediately before the call runs.
func (s *Store) Save(now time.Time, history, clientHistory []modelapi.Message, toolName string, args json.RawMessage, filePath, content string) (Snapshot, error) {
	snap := Snapshot{
		History:       history,
		ClientHistory: clientHistory,
		ToolCall:      ToolCallRef{Name: toolName, Args: args},
		CommitHash:    headCommit(filePath),
		FilePath:      filePath,
		Content:       content,
		createdAt:     now,
	}
	side := sidecar{
		History:       snap.History,
		ClientHistory: snap.ClientHistory,
		ToolCall:      snap.ToolCall,
		CommitHash:    snap.CommitHash,
		FilePath:      snap.FilePath,
		Content:       snap.Content,
		CreatedAt:     now,
	}
	data, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: marshal: %w", err)
	}
	path := filepath.Join(s.dir, filename(now, filePath, toolName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: write: %w", err)
	}
	return snap, nil
}

// List returns every snapshot in the store, oldest first (filenames
// sort chronologically by construction).
func (s *Store) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	snaps := make([]Snapshot, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("checkpoint: read %s: %w", name, err)
		}
		var side sidecar
		if err := json.Unmarshal(data, &side); err != nil {
			return nil, fmt.Errorf("checkpoint: parse %s: %w", name, err)
		}
		snaps = append(snaps, Snapshot{
			History:       side.History,
			ClientHistory: side.ClientHistory,
			ToolCall:      side.ToolCall,
			CommitHash:    side.CommitHash,
			FilePath:      side.FilePath,
			Content:       side.Content,
			createdAt:     side.CreatedAt,
		})
	}
	return snaps, nil
}

// ForFilePath returns the most recent snapshot guarding filePath, if
// any. The sidecar has no call ID to correlate by (per spec §6's
// shape), so restoring a path means taking its latest checkpoint.
func (s *Store) ForFilePath(filePath string) (Snapshot, bool, error) {
	snaps, err := s.List()
	if err != nil {
		return Snapshot{}, false, err
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].FilePath == filePath {
			return snaps[i], true, nil
		}
	}
	return Snapshot{}, false, nil
}
