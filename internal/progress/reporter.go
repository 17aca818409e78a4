package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// lineWidth pads the progress line so a shorter redraw clears the previous one.
const lineWidth = 60

// Reporter redraws a single progress line on a fixed interval. It only reads
// the counters, so a slow terminal never holds up a worker.
type Reporter struct {
	counters *Counters
	out      io.Writer
	interval time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewReporter creates a Reporter writing to out every interval.
func NewReporter(counters *Counters, out io.Writer, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		counters: counters,
		out:      out,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins rendering in a background goroutine.
func (r *Reporter) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.render()
			}
		}
	}()
}

// Stop halts rendering, draws the final state and ends the line.
// It is safe to call more than once.
func (r *Reporter) Stop() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		r.render()
		fmt.Fprintln(r.out)
	})
}

func (r *Reporter) render() {
	// best effort: a failed write just drops this frame
	_, _ = io.WriteString(r.out, "\r"+FormatLine(r.counters.Snapshot()))
}

// FormatLine renders one progress line, padded to a fixed width.
func FormatLine(s Snapshot) string {
	line := fmt.Sprintf("Progress: %d/%d | OK: %d | Failed: %d | Rate: %.2f images/sec",
		s.Completed(), s.Dispatched, s.Succeeded, s.Failed, s.Rate())
	if len(line) < lineWidth {
		line += strings.Repeat(" ", lineWidth-len(line))
	}
	return line
}
