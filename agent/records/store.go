// =============================================================================
// 📦 TradeFlow Agent 记录存储 — 按 (path, mtime) 缓存
// =============================================================================
package records

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// phaseFile is the on-disk customModes document shape.
type phaseFile struct {
	CustomModes []Record `yaml:"customModes"`
}

// Store loads and caches agent records from phaseN_agents_config.yaml files,
// keyed by (path, mtime) the same way config/watcher.go tracks lastModTimes.
type Store struct {
	mu sync.RWMutex

	dir    string
	logger *zap.Logger

	lastModTimes map[string]time.Time // path -> mtime at last successful load
	records      map[string][]Record  // path -> records loaded at that mtime

	bySlug        map[string]Record
	byInternalKey map[string]Record
	byDisplayName map[string]Record
}

// NewStore creates an empty Store rooted at dir (AGENT_CONFIG_DIR).
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:           dir,
		logger:        logger.With(zap.String("component", "agent_records")),
		lastModTimes:  make(map[string]time.Time),
		records:       make(map[string][]Record),
		bySlug:        make(map[string]Record),
		byInternalKey: make(map[string]Record),
		byDisplayName: make(map[string]Record),
	}
}

// LoadPhase loads (or returns the cached copy of) phaseN_agents_config.yaml.
// The cache is invalidated when the file's mtime has advanced since the last
// successful load, or when Clear has been called.
func (s *Store) LoadPhase(phase int) ([]Record, error) {
	path := fmt.Sprintf("%s/phase%d_agents_config.yaml", s.dir, phase)
	return s.loadPath(path)
}

func (s *Store) loadPath(path string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("agent records: stat %s: %w", path, err)
	}

	s.mu.RLock()
	cachedMod, ok := s.lastModTimes[path]
	cached := s.records[path]
	s.mu.RUnlock()
	if ok && !info.ModTime().After(cachedMod) {
		return cached, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent records: read %s: %w", path, err)
	}
	var doc phaseFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("agent records: parse %s: %w", path, err)
	}

	seenSlugs := make(map[string]struct{}, len(doc.CustomModes))
	records := make([]Record, 0, len(doc.CustomModes))
	for _, r := range doc.CustomModes {
		r.Tools = dedupTools(r.Tools)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seenSlugs[r.Slug]; dup {
			return nil, fmt.Errorf("agent records: duplicate slug %q in %s", r.Slug, path)
		}
		seenSlugs[r.Slug] = struct{}{}
		records = append(records, r)
	}

	s.mu.Lock()
	s.lastModTimes[path] = info.ModTime()
	s.records[path] = records
	s.indexLocked(path, records)
	s.mu.Unlock()

	s.logger.Info("loaded agent records", zap.String("path", path), zap.Int("count", len(records)))
	return records, nil
}

// indexLocked adds path's records to the lookup indexes that span every
// loaded path; existing entries are never removed here. Caller holds s.mu
// for writing. A colliding derived internal_key across
// different slugs is not an error: the later-indexed record's key is
// suffixed _2, _3, ... and both remain addressable by slug.
func (s *Store) indexLocked(path string, records []Record) {
	for _, r := range records {
		s.bySlug[r.Slug] = r
		s.byDisplayName[r.Name] = r

		key := InternalKey(r.Slug)
		if existing, exists := s.byInternalKey[key]; exists && existing.Slug != r.Slug {
			key = s.nextFreeKeyLocked(key)
			s.logger.Warn("internal_key collision, suffixing",
				zap.String("slug", r.Slug), zap.String("assigned_key", key))
		}
		s.byInternalKey[key] = r
	}
}

func (s *Store) nextFreeKeyLocked(base string) string {
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, exists := s.byInternalKey[candidate]; !exists {
			return candidate
		}
	}
}

// Clear invalidates every cached phase file, forcing the next LoadPhase to
// re-read from disk regardless of mtime.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastModTimes = make(map[string]time.Time)
	s.records = make(map[string][]Record)
	s.bySlug = make(map[string]Record)
	s.byInternalKey = make(map[string]Record)
	s.byDisplayName = make(map[string]Record)
}

// BySlug looks up a record by its unique slug.
func (s *Store) BySlug(slug string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.bySlug[slug]
	return r, ok
}

// ByInternalKey looks up a record by its derived internal_key.
func (s *Store) ByInternalKey(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byInternalKey[key]
	return r, ok
}

// ByDisplayName looks up a record by its display name.
func (s *Store) ByDisplayName(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byDisplayName[name]
	return r, ok
}

// SavePhase validates and atomically overwrites phaseN_agents_config.yaml,
// then invalidates the cached copy so the next LoadPhase re-reads it.
func (s *Store) SavePhase(phase int, records []Record) error {
	seenSlugs := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seenSlugs[r.Slug]; dup {
			return fmt.Errorf("agent records: duplicate slug %q", r.Slug)
		}
		seenSlugs[r.Slug] = struct{}{}
	}

	data, err := yaml.Marshal(phaseFile{CustomModes: records})
	if err != nil {
		return fmt.Errorf("agent records: marshal: %w", err)
	}

	path := fmt.Sprintf("%s/phase%d_agents_config.yaml", s.dir, phase)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("agent records: write %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("agent records: rename %s: %w", tempPath, err)
	}

	// Drop every cached path's index, not just this one: a slug removed from
	// this phase must also disappear from bySlug/byInternalKey/byDisplayName,
	// and loadPath only ever adds entries to those maps.
	s.mu.Lock()
	s.lastModTimes = make(map[string]time.Time)
	s.records = make(map[string][]Record)
	s.bySlug = make(map[string]Record)
	s.byInternalKey = make(map[string]Record)
	s.byDisplayName = make(map[string]Record)
	s.mu.Unlock()

	s.logger.Info("saved agent records", zap.String("path", path), zap.Int("count", len(records)))
	return nil
}

// All returns every record indexed so far, across all loaded phase files.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.bySlug))
	for _, r := range s.bySlug {
		out = append(out, r)
	}
	return out
}
