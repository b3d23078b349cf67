package handler

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Stress handles `STRESS <count>`: a synthetic SET/UPDATE/GET/DEL benchmark
// against an ephemeral in-memory map. It never touches the live store or the
// snapshot file.
func (h *Handlers) Stress(args []string) (int, string) {
	if len(args) != 1 {
		return 400, "-ERR STRESS requires one argument"
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		return 400, "-ERR invalid number"
	}
	if count <= 0 {
		return 400, "-ERR count must be positive"
	}

	overallStart := time.Now()

	keys := make([]string, count)
	for i := range keys {
		keys[i] = "stress:" + strconv.Itoa(i)
	}
	scratch := make(map[string]string, count)

	runBenchmark := func(op func(i int)) time.Duration {
		start := time.Now()
		for i := 0; i < count; i++ {
			op(i)
		}
		return time.Since(start)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stress Test running for %d ops ...\n", count)
	b.WriteString("-------------------------------------------")

	report := func(label string, elapsed time.Duration) {
		fmt.Fprintf(&b, "\n%-8s%12.2f ops/sec (%s total)",
			label, float64(count)/elapsed.Seconds(), FormatDuration(elapsed))
	}

	report("SET:", runBenchmark(func(i int) { scratch[keys[i]] = "svalue" }))
	report("UPDATE:", runBenchmark(func(i int) { scratch[keys[i]] = "nvalue" }))
	report("GET:", runBenchmark(func(i int) { _ = scratch[keys[i]] }))
	report("DEL:", runBenchmark(func(i int) { delete(scratch, keys[i]) }))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fmt.Fprintf(&b, "\n-------------------------------------------\n")
	fmt.Fprintf(&b, "MAX RAM USAGE: %s\n", formatMemorySize(m.Sys))
	fmt.Fprintf(&b, "Total Stress Test Time: %s", FormatDuration(time.Since(overallStart)))
	return 200, b.String()
}
