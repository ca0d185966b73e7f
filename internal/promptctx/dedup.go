package promptctx

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"
	"sync"
)

// ContentEntry mirrors spec §3's ContentEntry.
type ContentEntry struct {
	Path         string
	RealPath     string
	Content      string
	Distance     float64
	ContentHash  string
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

func realPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// Deduplicator suppresses duplicate injected content by hash and by
// canonical real-path, per spec §4.7. Per spec §9 ("one instance per
// turn, not per process"), callers must construct a fresh Deduplicator at
// the start of every AgentLoop.run rather than sharing one globally.
type Deduplicator struct {
	mu          sync.Mutex
	byHash      map[string]*ContentEntry
	byRealPath  map[string]*ContentEntry
}

// NewDeduplicator returns an empty, turn-scoped Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		byHash:     make(map[string]*ContentEntry),
		byRealPath: make(map[string]*ContentEntry),
	}
}

// Add inserts or replaces an entry per spec §4.7's collision rules.
func (d *Deduplicator) Add(path, content string, distance float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hash := contentHash(content)
	rp := realPath(path)
	entry := &ContentEntry{Path: path, RealPath: rp, Content: content, Distance: distance, ContentHash: hash}

	if existing, ok := d.byHash[hash]; ok {
		if distance < existing.Distance {
			d.replace(existing, entry)
		}
		return
	}

	if existing, ok := d.byRealPath[rp]; ok && existing.ContentHash != hash {
		if distance < existing.Distance {
			d.replace(existing, entry)
		}
		return
	}

	d.byHash[hash] = entry
	d.byRealPath[rp] = entry
}

// caller must hold d.mu
func (d *Deduplicator) replace(old, next *ContentEntry) {
	delete(d.byHash, old.ContentHash)
	delete(d.byRealPath, old.RealPath)
	d.byHash[next.ContentHash] = next
	d.byRealPath[next.RealPath] = next
}

// GetEntries returns all live entries sorted by ascending distance.
func (d *Deduplicator) GetEntries() []*ContentEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*ContentEntry, 0, len(d.byHash))
	for _, e := range d.byHash {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}
