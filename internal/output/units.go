package output

import "fmt"

// FormatBytes renders a byte count in decimal units, the way the dashboard
// shows traffic.
func FormatBytes(n int64) string {
	switch {
	case n <= 0:
		return "0 B"
	case n < 1e6:
		return fmt.Sprintf("%.1f KB", float64(n)/1e3)
	case n < 1e9:
		return fmt.Sprintf("%.1f MB", float64(n)/1e6)
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/1e9)
	}
}
