package k8s

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

// FormatAge formats a duration in kubectl style (e.g., "5m", "2h", "3d")
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// MilliCPU parses a CPU quantity ("250m", "2") into millicores. Unparseable
// values count as zero.
func MilliCPU(s string) int64 {
	if s == "" {
		return 0
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return q.MilliValue()
}

// Bytes parses a memory quantity ("128Mi", "1G") into bytes. Unparseable values
// count as zero.
func Bytes(s string) int64 {
	if s == "" {
		return 0
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return q.Value()
}

// FormatMilliCPU renders millicores the way kubectl top does
func FormatMilliCPU(m int64) string {
	return fmt.Sprintf("%dm", m)
}

// FormatBytes renders bytes in Mi, the unit kubectl top uses
func FormatBytes(b int64) string {
	return fmt.Sprintf("%dMi", b/(1024*1024))
}
