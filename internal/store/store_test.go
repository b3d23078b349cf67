package store

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nukekv/nukekv/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PersistenceEnabled = false
	return cfg
}

func newTestStore(cfg *config.Config) *Store {
	return New(cfg, zerolog.Nop())
}

func TestSetGetDelete(t *testing.T) {
	s := newTestStore(testConfig())

	s.Set("hello", "world", 0, false)
	got, ok := s.Get("hello")
	if !ok || got != "world" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	if n := s.Delete("hello"); n != 1 {
		t.Fatalf("Delete = %d, want 1", n)
	}
	if _, ok := s.Get("hello"); ok {
		t.Fatal("key should be gone")
	}
}

func TestDeleteCountsOnlyExisting(t *testing.T) {
	s := newTestStore(testConfig())
	s.Set("a", "1", 0, false)
	s.Set("b", "2", 0, false)

	if n := s.Delete("a", "b", "c"); n != 2 {
		t.Fatalf("Delete = %d, want 2", n)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(testConfig())

	if err := s.Update("missing", "v"); err != ErrKeyNotFound {
		t.Fatalf("Update on missing key: %v", err)
	}

	s.Set("k", "old", 60, true)
	if err := s.Update("k", "new"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := s.Get("k"); got != "new" {
		t.Fatalf("value = %q", got)
	}
	// Update must not touch the TTL.
	if _, state := s.TTL("k"); state != TTLSet {
		t.Fatal("TTL lost by Update")
	}
}

func TestLazyExpiry(t *testing.T) {
	s := newTestStore(testConfig())

	// A deadline of now is in the past one tick later.
	s.Set("k", "v", 0, true)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Get("k"); ok {
		t.Fatal("expired key must read as missing")
	}
	if s.Len() != 0 {
		t.Fatal("lazy expiry should have removed the key")
	}
}

func TestTTLStates(t *testing.T) {
	s := newTestStore(testConfig())

	if _, state := s.TTL("nope"); state != TTLMissing {
		t.Fatal("missing key")
	}

	s.Set("plain", "v", 0, false)
	if _, state := s.TTL("plain"); state != TTLNone {
		t.Fatal("key without deadline")
	}

	s.Set("timed", "v", 10, true)
	secs, state := s.TTL("timed")
	if state != TTLSet || secs < 8 || secs > 10 {
		t.Fatalf("TTL = %d, %v", secs, state)
	}

	s.Set("gone", "v", 0, true)
	time.Sleep(5 * time.Millisecond)
	if _, state := s.TTL("gone"); state != TTLMissing {
		t.Fatal("expired key must report missing")
	}
}

func TestExpire(t *testing.T) {
	s := newTestStore(testConfig())

	if err := s.Expire("missing", 10); err != ErrKeyNotFound {
		t.Fatalf("Expire on missing: %v", err)
	}

	s.Set("k", "v", 0, false)
	if err := s.Expire("k", 30); err != nil {
		t.Fatal(err)
	}
	if _, state := s.TTL("k"); state != TTLSet {
		t.Fatal("deadline not set")
	}

	// Non-positive seconds remove the deadline.
	if err := s.Expire("k", 0); err != nil {
		t.Fatal(err)
	}
	if _, state := s.TTL("k"); state != TTLNone {
		t.Fatal("deadline not cleared")
	}
}

func TestIncrDecr(t *testing.T) {
	s := newTestStore(testConfig())

	if v, err := s.IncrBy("n", 1); err != nil || v != 1 {
		t.Fatalf("first incr: %d, %v", v, err)
	}
	if v, err := s.IncrBy("n", 5); err != nil || v != 6 {
		t.Fatalf("incr by 5: %d, %v", v, err)
	}
	if v, err := s.IncrBy("n", -2); err != nil || v != 4 {
		t.Fatalf("decr by 2: %d, %v", v, err)
	}

	s.Set("text", "abc", 0, false)
	if _, err := s.IncrBy("text", 1); err != ErrValueNotInteger {
		t.Fatalf("incr on non-integer: %v", err)
	}
}

func TestMemoryEstimate(t *testing.T) {
	s := newTestStore(testConfig())

	s.Set("ab", "cdef", 0, false) // 6
	s.Set("x", "y", 0, false)     // 2
	if got := s.MemoryUsed(); got != 8 {
		t.Fatalf("memory = %d, want 8", got)
	}

	s.Set("ab", "z", 0, false) // replace: 3
	if got := s.MemoryUsed(); got != 5 {
		t.Fatalf("memory after replace = %d, want 5", got)
	}

	s.Delete("ab", "x")
	if got := s.MemoryUsed(); got != 0 {
		t.Fatalf("memory after delete = %d, want 0", got)
	}
}

func TestLRUEviction(t *testing.T) {
	cfg := testConfig()
	// Pairs are 10 bytes (2-byte key + 8-byte value): three fit, four do not.
	cfg.MaxMemoryBytes = 35
	s := newTestStore(cfg)

	val := strings.Repeat("v", 8)
	for _, k := range []string{"k1", "k2", "k3", "k4"} {
		s.Set(k, val, 0, false)
	}

	if _, ok := s.Get("k1"); ok {
		t.Fatal("k1 should have been evicted as the LRU tail")
	}
	for _, k := range []string{"k2", "k3", "k4"} {
		if _, ok := s.Get(k); !ok {
			t.Fatalf("%s should survive", k)
		}
	}
}

func TestLRUPromotionOnRead(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMemoryBytes = 35
	s := newTestStore(cfg)

	val := strings.Repeat("v", 8)
	s.Set("k1", val, 0, false)
	s.Set("k2", val, 0, false)
	s.Set("k3", val, 0, false)

	// Touch k1 so k2 becomes the tail.
	if _, ok := s.Get("k1"); !ok {
		t.Fatal("k1 must be present")
	}
	s.Set("k4", val, 0, false)

	if _, ok := s.Get("k2"); ok {
		t.Fatal("k2 should have been evicted after k1's promotion")
	}
	if _, ok := s.Get("k1"); !ok {
		t.Fatal("promoted k1 should survive")
	}
}

func TestCachingDisabledSkipsEviction(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMemoryBytes = 10
	cfg.CachingEnabled = false
	s := newTestStore(cfg)

	for i := 0; i < 10; i++ {
		s.Set(fmt.Sprintf("k%d", i), "0123456789", 0, false)
	}
	if s.Len() != 10 {
		t.Fatalf("eviction ran with caching disabled: %d keys", s.Len())
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(testConfig())
	s.Set("a", "1", 0, false)
	s.Set("b", "2", 60, true)

	if n := s.Clear(); n != 2 {
		t.Fatalf("Clear = %d", n)
	}
	if s.Len() != 0 || s.TTLCount() != 0 || s.MemoryUsed() != 0 {
		t.Fatal("state not reset")
	}
}

func TestPrefixCount(t *testing.T) {
	s := newTestStore(testConfig())
	s.Set("user:1", "a", 0, false)
	s.Set("user:2", "b", 0, false)
	s.Set("userx", "c", 0, false)

	if n := s.PrefixCount("user:"); n != 2 {
		t.Fatalf("PrefixCount = %d, want 2", n)
	}
	if n := s.PrefixCount("user"); n != 3 {
		t.Fatalf("PrefixCount = %d, want 3", n)
	}
	if n := s.PrefixCount("zzz"); n != 0 {
		t.Fatalf("PrefixCount = %d, want 0", n)
	}
}

func TestConcurrentDisjointKeys(t *testing.T) {
	s := newTestStore(testConfig())
	const goroutines = 8
	const ops = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				k := fmt.Sprintf("g%d-k%d", id, i%50)
				v := fmt.Sprintf("%d", i)
				s.Set(k, v, 0, false)
				if got, ok := s.Get(k); ok && got != v {
					// Keys are disjoint per goroutine, so the last write
					// must be the value observed.
					t.Errorf("goroutine %d read %q, want %q", id, got, v)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestConcurrentIncrNoLostUpdates(t *testing.T) {
	s := newTestStore(testConfig())
	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if _, err := s.IncrBy("shared", 1); err != nil {
					t.Errorf("IncrBy: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get("shared")
	want := fmt.Sprintf("%d", goroutines*perGoroutine)
	if got != want {
		t.Fatalf("final counter = %s, want %s", got, want)
	}
}

func TestSweeperRemovesExpired(t *testing.T) {
	s := newTestStore(testConfig())
	s.Set("gone", "v", 0, true)
	s.Set("stays", "v", 60, true)
	time.Sleep(5 * time.Millisecond)

	w := NewSweeper(s, zerolog.Nop())
	w.interval = 10 * time.Millisecond
	w.Start()
	defer w.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.TTLCount() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.TTLCount() != 1 {
		t.Fatal("sweeper did not remove the expired key")
	}
	if _, ok := s.Get("stays"); !ok {
		t.Fatal("live key must survive the sweep")
	}
}
