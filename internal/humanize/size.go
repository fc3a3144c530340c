// Package humanize formats byte counts for log lines.
package humanize

import "fmt"

var units = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// Size renders n bytes as a human-readable string with one decimal place,
// e.g. Size(1536) == "1.5 KiB".
func Size(n int64) string {
	if n < 0 {
		return fmt.Sprintf("-%s", Size(-n))
	}
	value := float64(n)
	unit := units[0]
	for _, u := range units[1:] {
		if value < 1024 {
			break
		}
		value /= 1024
		unit = u
	}
	if unit == units[0] {
		return fmt.Sprintf("%.0f %s", value, unit)
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}
