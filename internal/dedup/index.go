package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Index is the file-backed fingerprint set. All membership checks go through
// one lock, so CheckAndInsert is atomic: exactly one caller sees isNew=true
// for a given fingerprint no matter how many workers race on it.
type Index struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

// Open loads the persisted index at path. A missing, corrupt or unreadable
// file starts the index empty with a warning rather than failing startup.
// An empty path keeps the index purely in memory.
func Open(path string) *Index {
	idx := &Index{path: path, seen: make(map[string]struct{})}
	if path == "" {
		return idx
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx
	}
	if err != nil {
		slog.Warn("dedup index unreadable, starting empty", "path", path, "error", err)
		return idx
	}

	var fingerprints []string
	if err := json.Unmarshal(raw, &fingerprints); err != nil {
		slog.Warn("dedup index corrupt, starting empty", "path", path, "error", err)
		return idx
	}
	for _, fp := range fingerprints {
		idx.seen[fp] = struct{}{}
	}
	return idx
}

func (i *Index) CheckAndInsert(_ context.Context, fingerprint string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.seen[fingerprint]; ok {
		return false, nil
	}
	i.seen[fingerprint] = struct{}{}
	return true, nil
}

// Len reports how many fingerprints the index holds.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.seen)
}

// Save writes the fingerprint set as a sorted JSON array. The file is
// completed under a temporary name and renamed into place, so a crash
// mid-write leaves the previous index intact.
func (i *Index) Save() error {
	if i.path == "" {
		return nil
	}

	i.mu.Lock()
	fingerprints := make([]string, 0, len(i.seen))
	for fp := range i.seen {
		fingerprints = append(fingerprints, fp)
	}
	i.mu.Unlock()
	sort.Strings(fingerprints)

	raw, err := json.MarshalIndent(fingerprints, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dedup index: %w", err)
	}

	if dir := filepath.Dir(i.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dedup index dir: %w", err)
		}
	}
	tmp := i.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write dedup index: %w", err)
	}
	if err := os.Rename(tmp, i.path); err != nil {
		return fmt.Errorf("replace dedup index: %w", err)
	}
	return nil
}

// Close persists the index. It satisfies Store.
func (i *Index) Close(context.Context) error { return i.Save() }
