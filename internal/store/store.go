// Package store implements the concurrent in-memory key-value core: the value
// map, TTL deadlines, the LRU list used for memory-bounded eviction, the dirty
// operation counter that drives snapshots, and the snapshot codec itself.
package store

import (
	"container/list"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nukekv/nukekv/internal/config"
)

var (
	ErrKeyNotFound     = errors.New("key does not exist")
	ErrValueNotInteger = errors.New("value is not an integer")
)

// TTLState classifies the result of a TTL lookup.
type TTLState int

const (
	TTLMissing TTLState = iota // key absent or expired
	TTLNone                    // key present, no deadline
	TTLSet                     // key present, deadline in the future
)

// Store is the engine state. A single reader-writer lock guards the maps, the
// LRU list, and the memory estimate; the runtime-mutable knobs (debug mode,
// batch size) and the statistics counters are atomics.
type Store struct {
	mu       sync.RWMutex
	data     map[string]string
	ttl      map[string]int64 // epoch-milliseconds deadline
	lru      *list.List       // keys, most recently used at the front
	lruIndex map[string]*list.Element
	memory   int64 // estimated bytes: sum of len(key)+len(value)

	dirty     atomic.Int64
	batchSize atomic.Int64
	debug     atomic.Bool

	evictions atomic.Uint64
	expired   atomic.Uint64
	saveCount atomic.Uint64

	cachingEnabled     bool
	maxMemoryBytes     int64
	persistenceEnabled bool
	path               string

	saves singleflight.Group
	log   zerolog.Logger
}

// New creates an empty store configured from cfg.
func New(cfg *config.Config, logger zerolog.Logger) *Store {
	s := &Store{
		data:               make(map[string]string),
		ttl:                make(map[string]int64),
		lru:                list.New(),
		lruIndex:           make(map[string]*list.Element),
		cachingEnabled:     cfg.CachingEnabled,
		maxMemoryBytes:     cfg.MaxMemoryBytes,
		persistenceEnabled: cfg.PersistenceEnabled,
		path:               cfg.DatabasePath,
		log:                logger.With().Str("component", "store").Logger(),
	}
	s.batchSize.Store(int64(cfg.BatchProcessingSize))
	s.debug.Store(cfg.DebugMode)
	return s
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// lruActive reports whether promotion and eviction do anything. Both require
// caching to be on and a memory limit to enforce against.
func (s *Store) lruActive() bool {
	return s.cachingEnabled && s.maxMemoryBytes > 0
}

func (s *Store) promoteLocked(key string) {
	if !s.lruActive() {
		return
	}
	if elem, ok := s.lruIndex[key]; ok {
		s.lru.MoveToFront(elem)
		return
	}
	s.lruIndex[key] = s.lru.PushFront(key)
}

// removeLocked applies the full cleanup for one key: value map, TTL entry,
// LRU node, memory estimate.
func (s *Store) removeLocked(key string) {
	value, ok := s.data[key]
	if !ok {
		return
	}
	s.memory -= int64(len(key) + len(value))
	delete(s.data, key)
	delete(s.ttl, key)
	if elem, ok := s.lruIndex[key]; ok {
		s.lru.Remove(elem)
		delete(s.lruIndex, key)
	}
}

// enforceLimitLocked evicts from the LRU tail until the estimate fits.
func (s *Store) enforceLimitLocked() {
	if !s.lruActive() {
		return
	}
	for s.memory > s.maxMemoryBytes && s.lru.Len() > 0 {
		victim := s.lru.Back().Value.(string)
		s.removeLocked(victim)
		s.evictions.Add(1)
		if s.debug.Load() {
			s.log.Debug().Str("key", victim).Msg("evicted key to stay within memory limit")
		}
	}
}

// expireIfDueLocked removes the key if its deadline has passed and reports
// whether it did. Lazy expiry: the first operation that touches an expired
// key observes the expiry and applies the cleanup.
func (s *Store) expireIfDueLocked(key string, now int64) bool {
	deadline, ok := s.ttl[key]
	if !ok || now <= deadline {
		return false
	}
	s.removeLocked(key)
	s.expired.Add(1)
	s.dirty.Add(1)
	return true
}

// writeThroughLocked saves immediately when batching is off.
func (s *Store) writeThroughLocked() {
	if s.persistenceEnabled && s.batchSize.Load() == 0 {
		if err := s.saveLocked(); err != nil {
			s.log.Error().Err(err).Msg("write-through save failed")
		}
	}
}

// Set stores value under key, replacing any TTL. hasTTL attaches a deadline
// ttlSeconds from now.
func (s *Store) Set(key, value string, ttlSeconds int64, hasTTL bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[key]; ok {
		s.memory -= int64(len(key) + len(old))
	}
	s.data[key] = value
	s.memory += int64(len(key) + len(value))
	s.promoteLocked(key)
	if hasTTL {
		s.ttl[key] = nowMillis() + ttlSeconds*1000
	} else {
		delete(s.ttl, key)
	}
	s.dirty.Add(1)
	s.enforceLimitLocked()
	s.writeThroughLocked()
}

// Update replaces the value of an existing key without touching its TTL.
func (s *Store) Update(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked(key, nowMillis())
	old, ok := s.data[key]
	if !ok {
		return ErrKeyNotFound
	}
	s.memory += int64(len(value)) - int64(len(old))
	s.data[key] = value
	s.promoteLocked(key)
	s.dirty.Add(1)
	s.enforceLimitLocked()
	s.writeThroughLocked()
	return nil
}

// Get returns the value for key. The lookup takes the read lock; promotion
// needs the write lock, so the lock is released and reacquired. The value
// read under the read lock is the value returned even if the key is evicted
// in between.
func (s *Store) Get(key string) (string, bool) {
	now := nowMillis()

	s.mu.RLock()
	value, ok := s.data[key]
	deadline, hasTTL := s.ttl[key]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}
	if hasTTL && now > deadline {
		s.mu.Lock()
		s.expireIfDueLocked(key, now)
		s.writeThroughLocked()
		s.mu.Unlock()
		return "", false
	}

	s.mu.Lock()
	if _, still := s.data[key]; still {
		s.promoteLocked(key)
	}
	s.mu.Unlock()
	return value, true
}

// Delete removes the given keys and returns how many existed.
func (s *Store) Delete(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if _, ok := s.data[key]; ok {
			s.removeLocked(key)
			deleted++
		}
	}
	if deleted > 0 {
		s.dirty.Add(int64(deleted))
		s.writeThroughLocked()
	}
	return deleted
}

// IncrBy adds amount to the integer stored at key, creating it from zero when
// absent. The stored representation is decimal text.
func (s *Store) IncrBy(key string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked(key, nowMillis())

	var current int64
	if old, ok := s.data[key]; ok {
		parsed, err := strconv.ParseInt(old, 10, 64)
		if err != nil {
			return 0, ErrValueNotInteger
		}
		current = parsed
		s.memory -= int64(len(key) + len(old))
	}
	next := current + amount
	value := strconv.FormatInt(next, 10)
	s.data[key] = value
	s.memory += int64(len(key) + len(value))
	s.promoteLocked(key)
	s.dirty.Add(1)
	s.enforceLimitLocked()
	s.writeThroughLocked()
	return next, nil
}

// Mutate runs fn on the current value of key under the write lock, making
// read-modify-write commands (the JSON mutators) atomic with respect to every
// other store operation. fn returns the replacement value and whether to
// write it; returning write=false leaves the store untouched. Returns
// ErrKeyNotFound without calling fn when the key is absent or expired.
func (s *Store) Mutate(key string, fn func(value string) (string, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked(key, nowMillis())
	old, ok := s.data[key]
	if !ok {
		return ErrKeyNotFound
	}

	next, write, err := fn(old)
	if err != nil || !write {
		return err
	}

	s.memory += int64(len(next)) - int64(len(old))
	s.data[key] = next
	s.promoteLocked(key)
	s.dirty.Add(1)
	s.enforceLimitLocked()
	s.writeThroughLocked()
	return nil
}

// TTL reports the remaining whole seconds for key, or the state when there is
// nothing to count down.
func (s *Store) TTL(key string) (int64, TTLState) {
	now := nowMillis()

	s.mu.RLock()
	_, exists := s.data[key]
	deadline, hasTTL := s.ttl[key]
	s.mu.RUnlock()

	if !exists {
		return 0, TTLMissing
	}
	if !hasTTL {
		return 0, TTLNone
	}
	if now > deadline {
		s.mu.Lock()
		s.expireIfDueLocked(key, now)
		s.writeThroughLocked()
		s.mu.Unlock()
		return 0, TTLMissing
	}
	return (deadline - now) / 1000, TTLSet
}

// Expire sets or clears the deadline of an existing key. Non-positive seconds
// remove the TTL.
func (s *Store) Expire(key string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	s.expireIfDueLocked(key, now)
	if _, ok := s.data[key]; !ok {
		return ErrKeyNotFound
	}
	if seconds <= 0 {
		delete(s.ttl, key)
	} else {
		s.ttl[key] = now + seconds*1000
	}
	s.dirty.Add(1)
	s.writeThroughLocked()
	return nil
}

// Clear drops every key and returns how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.data)
	s.data = make(map[string]string)
	s.ttl = make(map[string]int64)
	s.lru = list.New()
	s.lruIndex = make(map[string]*list.Element)
	s.memory = 0
	s.dirty.Add(1)
	s.writeThroughLocked()
	return cleared
}

// PrefixCount counts live keys beginning with prefix, by raw byte comparison.
func (s *Store) PrefixCount(prefix string) int {
	now := nowMillis()

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.data {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if deadline, ok := s.ttl[key]; ok && now > deadline {
			continue
		}
		count++
	}
	return count
}

// sweepExpiredLocked removes every key whose deadline has passed and returns
// the count. The background manager calls this under try-lock.
func (s *Store) sweepExpiredLocked(now int64) int {
	var due []string
	for key, deadline := range s.ttl {
		if now > deadline {
			due = append(due, key)
		}
	}
	for _, key := range due {
		s.removeLocked(key)
	}
	if n := len(due); n > 0 {
		s.expired.Add(uint64(n))
		s.dirty.Add(int64(n))
	}
	return len(due)
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// TTLCount returns the number of keys carrying a deadline.
func (s *Store) TTLCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ttl)
}

// MemoryUsed returns the running len(key)+len(value) estimate.
func (s *Store) MemoryUsed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory
}

func (s *Store) MemoryLimit() int64      { return s.maxMemoryBytes }
func (s *Store) CachingEnabled() bool    { return s.cachingEnabled }
func (s *Store) Persistence() bool       { return s.persistenceEnabled }
func (s *Store) DatabasePath() string    { return s.path }
func (s *Store) Dirty() int64            { return s.dirty.Load() }
func (s *Store) BatchSize() int64        { return s.batchSize.Load() }
func (s *Store) SetBatchSize(n int64)    { s.batchSize.Store(n) }
func (s *Store) Debug() bool             { return s.debug.Load() }
func (s *Store) SetDebug(on bool)        { s.debug.Store(on) }
func (s *Store) Evictions() uint64       { return s.evictions.Load() }
func (s *Store) ExpiredKeys() uint64     { return s.expired.Load() }
func (s *Store) SnapshotSaves() uint64   { return s.saveCount.Load() }
