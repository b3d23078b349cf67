package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// snapshotFile is the on-disk format: the whole store and the TTL deadlines,
// in one JSON document.
type snapshotFile struct {
	Store map[string]string `json:"store"`
	TTL   map[string]int64  `json:"ttl"`
}

// saveLocked writes the snapshot to a temp file and renames it into place.
// The caller holds the write lock (or has exclusive access). A failed save
// leaves the dirty counter untouched.
func (s *Store) saveLocked() error {
	if !s.persistenceEnabled {
		return nil
	}

	snap := snapshotFile{Store: s.data, TTL: s.ttl}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	s.dirty.Store(0)
	s.saveCount.Add(1)
	return nil
}

// Save takes the write lock and snapshots. Concurrent Save callers are
// coalesced into one write. The background manager and write-through saves
// do not go through Save; they call saveLocked under the lock they hold.
func (s *Store) Save() error {
	_, err, _ := s.saves.Do("snapshot", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return nil, s.saveLocked()
	})
	return err
}

// Load reads the snapshot at startup. A missing file starts empty; a corrupt
// file logs and starts empty rather than crashing. Keys whose deadline has
// already passed are dropped on the way in. After populating, the memory
// estimate and LRU order are rebuilt and the limit enforced.
func (s *Store) Load() error {
	if !s.persistenceEnabled {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info().Str("path", s.path).Msg("database file not found, starting empty")
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("could not parse database file, starting empty")
		return nil
	}

	now := nowMillis()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, deadline := range snap.TTL {
		if now > deadline {
			delete(snap.Store, key)
			delete(snap.TTL, key)
		}
	}
	if snap.Store == nil {
		snap.Store = make(map[string]string)
	}
	if snap.TTL == nil {
		snap.TTL = make(map[string]int64)
	}
	s.data = snap.Store
	s.ttl = snap.TTL

	s.memory = 0
	for key, value := range s.data {
		s.memory += int64(len(key) + len(value))
		s.promoteLocked(key)
	}
	s.enforceLimitLocked()

	s.log.Info().Int("keys", len(s.data)).Msg("loaded snapshot")
	return nil
}

// DiskSize returns the snapshot file size in bytes, or -1 when unavailable.
func (s *Store) DiskSize() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return -1
	}
	return info.Size()
}
