package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort renders elapsed wall time as M:SS, or H:MM:SS past an
// hour. Durations are rounded to the nearest second; negatives render as 0:00.
func FormatDurationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, total%3600/60, total%60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
