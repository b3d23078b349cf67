// Package handler implements one function per command. Handlers take parsed
// argv and return (status, text); the status code exists for tests and future
// transports, the text is the wire reply.
package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nukekv/nukekv/internal/config"
	"github.com/nukekv/nukekv/internal/store"
	"github.com/nukekv/nukekv/internal/worker"
)

const (
	Version      = "NukeKV v2.5-stable"
	ProtocolName = "Nuke-Wire (RAW TCP)"
)

// Handlers binds the command set to a store and its configuration.
type Handlers struct {
	store *store.Store
	cfg   *config.Config
}

func New(s *store.Store, cfg *config.Config) *Handlers {
	return &Handlers{store: s, cfg: cfg}
}

// Table returns the dispatch table keyed by upper-case command name. The
// worker pool's unknown-command branch is the only fallback.
func (h *Handlers) Table() map[string]worker.Handler {
	return map[string]worker.Handler{
		"SET":         h.Set,
		"GET":         h.Get,
		"UPDATE":      h.Update,
		"DEL":         h.Del,
		"INCR":        func(args []string) (int, string) { return h.incrDecr(args, 1) },
		"DECR":        func(args []string) (int, string) { return h.incrDecr(args, -1) },
		"TTL":         h.TTL,
		"EXPIRE":      h.Expire,
		"JSON.SET":    h.JSONSet,
		"JSON.GET":    h.JSONGet,
		"JSON.UPDATE": h.JSONUpdate,
		"JSON.DEL":    h.JSONDel,
		"JSON.APPEND": h.JSONAppend,
		"JSON.SEARCH": h.JSONSearch,
		"STATS":       h.Stats,
		"STRESS":      h.Stress,
		"BATCH":       h.Batch,
		"DEBUG":       h.Debug,
		"CLRDB":       h.ClearDB,
		"SIMILAR":     h.Similar,
	}
}

// Set handles `SET <key> "<value>" [EX <seconds>]`.
func (h *Handlers) Set(args []string) (int, string) {
	if len(args) != 2 && len(args) != 4 {
		return 400, `-ERR wrong number of arguments for 'SET'. Expected: SET <key> "<value>" [EX <seconds>]`
	}
	key, value := args[0], args[1]
	if int64(len(value)) > h.cfg.MaxValueSize {
		return 400, "-ERR value exceeds maximum size"
	}

	var ttlSeconds int64
	hasTTL := false
	if len(args) == 4 {
		if !strings.EqualFold(args[2], "EX") {
			return 400, "-ERR syntax error"
		}
		seconds, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return 400, "-ERR value is not an integer"
		}
		ttlSeconds = seconds
		hasTTL = true
	}

	h.store.Set(key, value, ttlSeconds, hasTTL)
	return 200, "+OK"
}

// Get handles `GET <key>`.
func (h *Handlers) Get(args []string) (int, string) {
	if len(args) != 1 {
		return 400, "-ERR wrong number of arguments"
	}
	value, ok := h.store.Get(args[0])
	if !ok {
		return 404, "(nil)"
	}
	return 200, value
}

// Update handles `UPDATE <key> "<value>"`; it fails when the key is absent.
func (h *Handlers) Update(args []string) (int, string) {
	if len(args) != 2 {
		return 400, `-ERR wrong number of arguments for 'UPDATE'. Expected: UPDATE <key> "<value>"`
	}
	if int64(len(args[1])) > h.cfg.MaxValueSize {
		return 400, "-ERR value exceeds maximum size"
	}
	if err := h.store.Update(args[0], args[1]); err != nil {
		return 404, "(nil)"
	}
	return 200, "+OK"
}

// Del handles `DEL <key> [key2 ...]` and replies with the deletion count.
func (h *Handlers) Del(args []string) (int, string) {
	if len(args) == 0 {
		return 400, "-ERR wrong number of arguments"
	}
	deleted := h.store.Delete(args...)
	return 200, strconv.Itoa(deleted)
}

func (h *Handlers) incrDecr(args []string, sign int64) (int, string) {
	if len(args) == 0 || len(args) > 2 {
		return 400, "-ERR wrong number of arguments"
	}
	amount := int64(1)
	if len(args) == 2 {
		parsed, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return 400, "-ERR not an integer"
		}
		amount = parsed
	}
	value, err := h.store.IncrBy(args[0], sign*amount)
	if err != nil {
		return 400, "-ERR value is not an integer"
	}
	return 200, strconv.FormatInt(value, 10)
}

// TTL handles `TTL <key>`: remaining whole seconds, -1 without a deadline,
// (nil) when missing or expired.
func (h *Handlers) TTL(args []string) (int, string) {
	if len(args) != 1 {
		return 400, "-ERR wrong number of arguments"
	}
	seconds, state := h.store.TTL(args[0])
	switch state {
	case store.TTLMissing:
		return 404, "(nil)"
	case store.TTLNone:
		return 200, "-1"
	default:
		return 200, strconv.FormatInt(seconds, 10)
	}
}

// Expire handles `EXPIRE <key> <seconds>`; non-positive seconds remove the
// deadline.
func (h *Handlers) Expire(args []string) (int, string) {
	if len(args) != 2 {
		return 400, "-ERR wrong number of arguments"
	}
	seconds, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 400, "-ERR invalid TTL value"
	}
	if err := h.store.Expire(args[0], seconds); err != nil {
		return 404, "(nil)"
	}
	return 200, "+OK"
}

// Batch handles `BATCH <size>`: 0 means write-through, larger values defer
// snapshots to the background manager.
func (h *Handlers) Batch(args []string) (int, string) {
	if len(args) != 1 {
		return 400, "-ERR BATCH requires one argument"
	}
	size, err := strconv.Atoi(args[0])
	if err != nil {
		return 400, "-ERR value is not an integer"
	}
	if size < 0 {
		return 400, "-ERR batch size cannot be negative"
	}
	h.store.SetBatchSize(int64(size))
	return 200, "+OK"
}

// Debug handles `DEBUG true|false`.
func (h *Handlers) Debug(args []string) (int, string) {
	if len(args) != 1 {
		return 400, "-ERR DEBUG requires one argument"
	}
	switch strings.ToLower(args[0]) {
	case "true":
		h.store.SetDebug(true)
		return 200, "+OK Debug mode enabled."
	case "false":
		h.store.SetDebug(false)
		return 200, "+OK Debug mode disabled."
	}
	return 400, "-ERR Invalid argument. Use 'true' or 'false'."
}

// ClearDB handles `CLRDB`.
func (h *Handlers) ClearDB(args []string) (int, string) {
	cleared := h.store.Clear()
	return 200, fmt.Sprintf("+OK %d keys cleared.", cleared)
}

// Similar handles `SIMILAR <prefix>`: counts keys by raw byte prefix.
func (h *Handlers) Similar(args []string) (int, string) {
	if len(args) != 1 {
		return 400, "-ERR wrong number of arguments, expected: SIMILAR <prefix>"
	}
	if args[0] == "" {
		return 400, "-ERR prefix cannot be empty"
	}
	return 200, strconv.Itoa(h.store.PrefixCount(args[0]))
}

// Stats handles `STATS`: a stable-order human-readable report.
func (h *Handlers) Stats(args []string) (int, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s\n", Version)
	fmt.Fprintf(&b, "Protocol: %s\n", ProtocolName)
	fmt.Fprintf(&b, "Debug Mode: %s\n", onOff(h.store.Debug()))
	fmt.Fprintf(&b, "Worker Threads: %d\n", h.cfg.Workers())
	b.WriteString("-------------------------\n")
	fmt.Fprintf(&b, "Persistence Disk: %s\n", enabledDisabled(h.store.Persistence()))
	if h.store.Persistence() {
		fmt.Fprintf(&b, "  - Batch Size: %d\n", h.store.BatchSize())
		fmt.Fprintf(&b, "  - Unsaved Ops: %d\n", h.store.Dirty())
		if size := h.store.DiskSize(); size >= 0 {
			fmt.Fprintf(&b, "  - Disk Size: %s\n", formatMemorySize(uint64(size)))
		} else {
			b.WriteString("  - Disk Size: N/A\n")
		}
	}
	b.WriteString("-------------------------\n")
	fmt.Fprintf(&b, "Caching: %s\n", enabledDisabled(h.store.CachingEnabled()))
	if h.store.CachingEnabled() {
		if limit := h.store.MemoryLimit(); limit > 0 {
			fmt.Fprintf(&b, "  - Memory Limit: %s\n", formatMemorySize(uint64(limit)))
		} else {
			b.WriteString("  - Memory Limit: Unlimited\n")
		}
		fmt.Fprintf(&b, "  - Memory Used: %s\n", formatMemorySize(uint64(h.store.MemoryUsed())))
	}
	b.WriteString("-------------------------\n")
	fmt.Fprintf(&b, "Total Keys: %d\n", h.store.Len())
	fmt.Fprintf(&b, "Keys with TTL: %d\n", h.store.TTLCount())
	b.WriteString("-------------------------")
	return 200, b.String()
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func enabledDisabled(v bool) string {
	if v {
		return "Enabled"
	}
	return "Disabled"
}
