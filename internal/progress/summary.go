package progress

import (
	"fmt"
	"strings"
	"time"
)

// Summary is the end-of-run tally.
type Summary struct {
	Processed int64
	Succeeded int64
	Failed    int64
	Skipped   int
	Elapsed   time.Duration
}

// Summary builds the end-of-run tally. skipped is the number of files the
// walker filtered out before dispatch.
func (c *Counters) Summary(skipped int) Summary {
	s := c.Snapshot()
	return Summary{
		Processed: s.Completed(),
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   skipped,
		Elapsed:   s.Elapsed,
	}
}

// Rate is the average completions per second.
func (s Summary) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Processed) / s.Elapsed.Seconds()
}

// String renders the summary as a few aligned lines.
func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total images processed: %d\n", s.Processed)
	fmt.Fprintf(&sb, "  Succeeded:            %d\n", s.Succeeded)
	fmt.Fprintf(&sb, "  Failed:               %d\n", s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(&sb, "  Skipped:              %d\n", s.Skipped)
	}
	fmt.Fprintf(&sb, "Total time taken:       %.2f seconds\n", s.Elapsed.Seconds())
	fmt.Fprintf(&sb, "Average rate:           %.2f images/sec", s.Rate())
	return sb.String()
}
