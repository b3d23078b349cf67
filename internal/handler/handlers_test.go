package handler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nukekv/nukekv/internal/config"
	"github.com/nukekv/nukekv/internal/store"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	cfg := config.Default()
	cfg.PersistenceEnabled = false
	return New(store.New(cfg, zerolog.Nop()), cfg)
}

type reply struct {
	status int
	text   string
}

// rep packs a handler's two results so they can sit among other arguments.
func rep(status int, text string) reply { return reply{status, text} }

func expect(t *testing.T, got reply, wantStatus int, wantText string) {
	t.Helper()
	if got.status != wantStatus || got.text != wantText {
		t.Fatalf("got (%d, %q), want (%d, %q)", got.status, got.text, wantStatus, wantText)
	}
}

func TestScenarioSetGetDel(t *testing.T) {
	h := newTestHandlers(t)

	expect(t, rep(h.Set([]string{"a", "hello"})), 200, "+OK")
	expect(t, rep(h.Get([]string{"a"})), 200, "hello")
	expect(t, rep(h.Del([]string{"a"})), 200, "1")
	expect(t, rep(h.Get([]string{"a"})), 404, "(nil)")
}

func TestScenarioIncrDecr(t *testing.T) {
	h := newTestHandlers(t)

	expect(t, rep(h.Set([]string{"n", "10"})), 200, "+OK")
	expect(t, rep(h.incrDecr([]string{"n", "5"}, 1)), 200, "15")
	expect(t, rep(h.incrDecr([]string{"n"}, -1)), 200, "14")

	expect(t, rep(h.Set([]string{"s", "abc"})), 200, "+OK")
	expect(t, rep(h.incrDecr([]string{"s"}, 1)), 400, "-ERR value is not an integer")
	expect(t, rep(h.incrDecr([]string{"n", "xyz"}, 1)), 400, "-ERR not an integer")
}

func TestIncrFromAbsent(t *testing.T) {
	h := newTestHandlers(t)

	expect(t, rep(h.incrDecr([]string{"c"}, 1)), 200, "1")
	expect(t, rep(h.incrDecr([]string{"c", "5"}, 1)), 200, "6")
	expect(t, rep(h.incrDecr([]string{"c", "2"}, -1)), 200, "4")
}

func TestUpdateMissingKey(t *testing.T) {
	h := newTestHandlers(t)
	expect(t, rep(h.Update([]string{"ghost", "v"})), 404, "(nil)")
}

func TestDelCountsExisting(t *testing.T) {
	h := newTestHandlers(t)
	h.Set([]string{"k1", "v"})
	h.Set([]string{"k3", "v"})

	expect(t, rep(h.Del([]string{"k1", "k2", "k3"})), 200, "2")
}

func TestSetWithTTLAndExpiry(t *testing.T) {
	h := newTestHandlers(t)

	expect(t, rep(h.Set([]string{"k", "v", "EX", "30"})), 200, "+OK")
	status, text := h.TTL([]string{"k"})
	if status != 200 || text == "-1" {
		t.Fatalf("TTL = (%d, %q)", status, text)
	}

	expect(t, rep(h.Set([]string{"k2", "v", "EX", "0"})), 200, "+OK")
	time.Sleep(5 * time.Millisecond)
	expect(t, rep(h.Get([]string{"k2"})), 404, "(nil)")
	expect(t, rep(h.TTL([]string{"k2"})), 404, "(nil)")

	expect(t, rep(h.Set([]string{"k3", "v", "EX", "abc"})), 400, "-ERR value is not an integer")
}

func TestTTLWithoutDeadline(t *testing.T) {
	h := newTestHandlers(t)
	h.Set([]string{"k", "v"})
	expect(t, rep(h.TTL([]string{"k"})), 200, "-1")
}

func TestExpireCommand(t *testing.T) {
	h := newTestHandlers(t)
	h.Set([]string{"k", "v"})

	expect(t, rep(h.Expire([]string{"k", "60"})), 200, "+OK")
	if _, text := h.TTL([]string{"k"}); text == "-1" {
		t.Fatal("deadline not applied")
	}

	expect(t, rep(h.Expire([]string{"k", "0"})), 200, "+OK")
	expect(t, rep(h.TTL([]string{"k"})), 200, "-1")

	expect(t, rep(h.Expire([]string{"ghost", "10"})), 404, "(nil)")
	expect(t, rep(h.Expire([]string{"k", "abc"})), 400, "-ERR invalid TTL value")
}

func TestJSONSetAndProjection(t *testing.T) {
	h := newTestHandlers(t)

	expect(t, rep(h.JSONSet([]string{"u", `{"a":{"b":[10,20,30]}}`})), 200, "+OK")

	status, text := h.JSONGet([]string{"u", "$.a.b[1]"})
	if status != 200 {
		t.Fatalf("projection status = %d: %s", status, text)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("projection is not JSON: %v", err)
	}
	if v, ok := got["a.b[1]"]; !ok || v != float64(20) {
		t.Fatalf("projection = %v", got)
	}
	if !strings.Contains(text, "\n") {
		t.Fatal("projection should be pretty-printed")
	}

	// Missing paths project as null.
	_, text = h.JSONGet([]string{"u", "$.a.missing"})
	var miss map[string]any
	if err := json.Unmarshal([]byte(text), &miss); err != nil {
		t.Fatal(err)
	}
	if v, ok := miss["a.missing"]; !ok || v != nil {
		t.Fatalf("missing path should be null, got %v", miss)
	}
}

func TestJSONGetWholeDocument(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"u", `{"name":"a","age":1}`})

	status, text := h.JSONGet([]string{"u"})
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["name"] != "a" || doc["age"] != float64(1) {
		t.Fatalf("doc = %v", doc)
	}

	expect(t, rep(h.JSONGet([]string{"ghost"})), 404, "(nil)")
}

func TestJSONSetRejectsInvalid(t *testing.T) {
	h := newTestHandlers(t)

	status, text := h.JSONSet([]string{"u", `{"broken":`})
	if status != 400 || !strings.HasPrefix(text, "-ERR invalid JSON") {
		t.Fatalf("got (%d, %q)", status, text)
	}
}

func TestJSONWhereFilter(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"p", `[{"id":1,"s":5},{"id":2,"s":7}]`})

	status, text := h.JSONGet([]string{"p", "WHERE", "id", "2"})
	if status != 200 {
		t.Fatalf("status = %d: %s", status, text)
	}
	var arr []map[string]any
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		t.Fatal(err)
	}
	if len(arr) != 1 || arr[0]["id"] != float64(2) || arr[0]["s"] != float64(7) {
		t.Fatalf("filtered = %v", arr)
	}

	expect(t, rep(h.JSONGet([]string{"p", "WHERE", "id", "99"})), 404, "[]")
}

func TestJSONWhereOnNonArray(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"u", `{"name":"a","age":1}`})

	status, text := h.JSONUpdate([]string{"u", "WHERE", "name", "a", "SET", "age", "2"})
	if status != 400 || !strings.Contains(text, "WHERE") {
		t.Fatalf("got (%d, %q)", status, text)
	}
}

func TestJSONUpdate(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"p", `[{"id":1,"s":5},{"id":2,"s":7}]`})

	expect(t, rep(h.JSONUpdate([]string{"p", "WHERE", "id", "2", "SET", "s", "9"})), 200, "1")

	_, text := h.JSONGet([]string{"p", "WHERE", "id", "2"})
	var arr []map[string]any
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		t.Fatal(err)
	}
	if arr[0]["s"] != float64(9) {
		t.Fatalf("update not applied: %v", arr)
	}

	// No matches: reply 0, nothing written.
	expect(t, rep(h.JSONUpdate([]string{"p", "WHERE", "id", "42", "SET", "s", "1"})), 200, "0")

	// Multi-field SET pairs.
	expect(t, rep(h.JSONUpdate([]string{"p", "WHERE", "id", "1", "SET", "s", "0", "tag", `"new"`})), 200, "1")

	expect(t, rep(h.JSONUpdate([]string{"p", "WHERE", "id", "1"})), 400,
		"-ERR syntax error. Expected: ... WHERE <field> <value> SET ...")
	expect(t, rep(h.JSONUpdate([]string{"ghost", "WHERE", "id", "1", "SET", "a", "b"})), 404, "(nil)")
}

func TestJSONAppendAndDel(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"p", `[{"id":1},{"id":2}]`})

	expect(t, rep(h.JSONAppend([]string{"p", `{"id":3}`})), 200, "3")
	expect(t, rep(h.JSONDel([]string{"p", "WHERE", "id", "2"})), 200, "1")

	_, text := h.JSONGet([]string{"p"})
	var arr []map[string]any
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		t.Fatal(err)
	}
	if len(arr) != 2 || arr[0]["id"] != float64(1) || arr[1]["id"] != float64(3) {
		t.Fatalf("after append+del: %v", arr)
	}

	// Array payload concatenates.
	expect(t, rep(h.JSONAppend([]string{"p", `[{"id":4},{"id":5}]`})), 200, "4")

	// Scalar payload is rejected.
	expect(t, rep(h.JSONAppend([]string{"p", `42`})), 400, "-ERR append value must be a JSON object or array")

	// Non-array target is rejected.
	h.JSONSet([]string{"obj", `{"a":1}`})
	expect(t, rep(h.JSONAppend([]string{"obj", `{"b":2}`})), 400,
		"-ERR APPEND requires the value at key to be a JSON array")
}

func TestJSONDelPlainDelegatesToDel(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"p", `[1,2]`})
	expect(t, rep(h.JSONDel([]string{"p"})), 200, "1")
	expect(t, rep(h.Get([]string{"p"})), 404, "(nil)")
}

func TestJSONSearchWordBoundaries(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"d", `{"text":"The quickfox jumps over the fox"}`})

	status, text := h.JSONSearch([]string{"d", "fox"})
	if status != 200 {
		t.Fatalf("status = %d: %s", status, text)
	}
	var arr []any
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		t.Fatal(err)
	}
	if len(arr) != 1 {
		t.Fatalf("expected one match, got %d", len(arr))
	}

	expect(t, rep(h.JSONSearch([]string{"d", "quickf"})), 404, "(nil)")
}

func TestJSONSearchArrayWithMax(t *testing.T) {
	h := newTestHandlers(t)
	h.JSONSet([]string{"ppl", `[{"name":"fox one"},{"name":"fox two"},{"name":"bear"}]`})

	_, text := h.JSONSearch([]string{"ppl", "fox", "MAX", "1"})
	var arr []any
	if err := json.Unmarshal([]byte(text), &arr); err != nil {
		t.Fatal(err)
	}
	if len(arr) != 1 {
		t.Fatalf("MAX 1 returned %d results", len(arr))
	}

	expect(t, rep(h.JSONSearch([]string{"ppl", "fox", "MAX", "0"})), 400, "-ERR MAX count must be a positive integer")
	expect(t, rep(h.JSONSearch([]string{"ppl", "fox", "LIMIT", "1"})), 400, "-ERR expected MAX keyword after term")
}

func TestSimilarPrefixCount(t *testing.T) {
	h := newTestHandlers(t)
	h.Set([]string{"user:1", "a"})
	h.Set([]string{"user:2", "b"})
	h.Set([]string{"userx", "c"})

	expect(t, rep(h.Similar([]string{"user:"})), 200, "2")
	expect(t, rep(h.Similar([]string{""})), 400, "-ERR prefix cannot be empty")
}

func TestClearDB(t *testing.T) {
	h := newTestHandlers(t)
	h.Set([]string{"a", "1"})
	h.Set([]string{"b", "2"})

	expect(t, rep(h.ClearDB(nil)), 200, "+OK 2 keys cleared.")
	expect(t, rep(h.Get([]string{"a"})), 404, "(nil)")
}

func TestBatchAndDebug(t *testing.T) {
	h := newTestHandlers(t)

	expect(t, rep(h.Batch([]string{"100"})), 200, "+OK")
	expect(t, rep(h.Batch([]string{"-1"})), 400, "-ERR batch size cannot be negative")
	expect(t, rep(h.Batch([]string{"abc"})), 400, "-ERR value is not an integer")

	expect(t, rep(h.Debug([]string{"true"})), 200, "+OK Debug mode enabled.")
	expect(t, rep(h.Debug([]string{"FALSE"})), 200, "+OK Debug mode disabled.")
	expect(t, rep(h.Debug([]string{"maybe"})), 400, "-ERR Invalid argument. Use 'true' or 'false'.")
}

func TestStatsReport(t *testing.T) {
	h := newTestHandlers(t)
	h.Set([]string{"a", "1"})
	h.Set([]string{"b", "2", "EX", "60"})

	status, text := h.Stats(nil)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	for _, line := range []string{
		"Version: " + Version,
		"Protocol: " + ProtocolName,
		"Debug Mode: OFF",
		"Total Keys: 2",
		"Keys with TTL: 1",
	} {
		if !strings.Contains(text, line) {
			t.Errorf("STATS missing %q:\n%s", line, text)
		}
	}
	// Line order is stable: Version first, key counts near the end.
	if strings.Index(text, "Version:") > strings.Index(text, "Total Keys:") {
		t.Fatal("STATS line order changed")
	}
}

func TestStressIsolation(t *testing.T) {
	cfg := config.Default()
	cfg.PersistenceEnabled = true
	cfg.DatabasePath = filepath.Join(t.TempDir(), "nukekv.db")
	s := store.New(cfg, zerolog.Nop())
	h := New(s, cfg)

	h.Set([]string{"live", "data"})
	snapshotBefore, _ := os.ReadFile(cfg.DatabasePath)
	keysBefore := s.Len()
	dirtyBefore := s.Dirty()

	status, text := h.Stress([]string{"1000"})
	if status != 200 || !strings.Contains(text, "Stress Test running for 1000 ops") {
		t.Fatalf("stress = (%d, %q)", status, text)
	}
	for _, label := range []string{"SET:", "UPDATE:", "GET:", "DEL:", "MAX RAM USAGE", "Total Stress Test Time"} {
		if !strings.Contains(text, label) {
			t.Errorf("stress report missing %q", label)
		}
	}

	if s.Len() != keysBefore {
		t.Fatal("STRESS touched the live store")
	}
	if s.Dirty() != dirtyBefore {
		t.Fatal("STRESS changed the dirty counter")
	}
	snapshotAfter, _ := os.ReadFile(cfg.DatabasePath)
	if string(snapshotBefore) != string(snapshotAfter) {
		t.Fatal("STRESS changed the snapshot file")
	}

	expect(t, rep(h.Stress([]string{"0"})), 400, "-ERR count must be positive")
	expect(t, rep(h.Stress([]string{"abc"})), 400, "-ERR invalid number")
}

func TestArityErrors(t *testing.T) {
	h := newTestHandlers(t)

	if status, _ := h.Set([]string{"k"}); status != 400 {
		t.Fatal("SET arity")
	}
	if status, _ := h.Get(nil); status != 400 {
		t.Fatal("GET arity")
	}
	if status, _ := h.Del(nil); status != 400 {
		t.Fatal("DEL arity")
	}
	if status, _ := h.JSONSet([]string{"k"}); status != 400 {
		t.Fatal("JSON.SET arity")
	}
	if status, _ := h.JSONGet(nil); status != 400 {
		t.Fatal("JSON.GET arity")
	}
	if status, _ := h.JSONSearch([]string{"k"}); status != 400 {
		t.Fatal("JSON.SEARCH arity")
	}
}

func TestValueSizeCap(t *testing.T) {
	cfg := config.Default()
	cfg.PersistenceEnabled = false
	cfg.MaxValueSize = 8
	h := New(store.New(cfg, zerolog.Nop()), cfg)

	expect(t, rep(h.Set([]string{"k", "123456789"})), 400, "-ERR value exceeds maximum size")
	expect(t, rep(h.Set([]string{"k", "12345678"})), 200, "+OK")
}
