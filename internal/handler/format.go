package handler

import (
	"fmt"
	"math"
	"time"
)

// formatMemorySize renders a byte count the way the STATS and STRESS reports
// print it: whole bytes below 1 KB, otherwise two decimals and a
// binary-scaled suffix.
func formatMemorySize(bytes uint64) string {
	if bytes == 0 {
		return "0 B"
	}
	suffixes := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(suffixes)-1 {
		value /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.2f %s", value, suffixes[i])
}

// FormatDuration renders elapsed time with a unit matched to its magnitude.
// The connection loop uses it for the debug-mode reply suffix.
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 0.001:
		return fmt.Sprintf("%.2fµs", seconds*1e6)
	case seconds < 1.0:
		return fmt.Sprintf("%.2fms", seconds*1e3)
	case seconds < 60.0:
		return fmt.Sprintf("%.3fs", seconds)
	case seconds < 3600.0:
		return fmt.Sprintf("%dm %.2fs", int(seconds)/60, math.Mod(seconds, 60))
	default:
		return fmt.Sprintf("%dh %dm %.2fs", int(seconds)/3600, (int(seconds)%3600)/60, math.Mod(seconds, 60))
	}
}
