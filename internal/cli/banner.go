package cli

import (
	"fmt"
	"io"

	"github.com/fpang/photo-curator/internal/progress"
)

const (
	heavyRule = "============================================"
	lightRule = "--------------------------------------------"
)

// Field is one "Label: value" line of a banner.
type Field struct {
	Label string
	Value string
}

// PrintHeader writes the run banner shown before dispatch starts.
func PrintHeader(w io.Writer, title string, fields ...Field) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, heavyRule)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, heavyRule)
	for _, f := range fields {
		fmt.Fprintf(w, "%s: %s\n", f.Label, f.Value)
	}
	fmt.Fprintln(w, lightRule)
}

// PrintSummary writes the end-of-run tally and any walk warnings.
func PrintSummary(w io.Writer, s progress.Summary, warnings []string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, heavyRule)
	fmt.Fprintln(w, "Summary")
	fmt.Fprintln(w, heavyRule)
	fmt.Fprintln(w, s.String())
	fmt.Fprintf(w, "Wall time:              %s\n", FormatDurationShort(s.Elapsed))
	if len(warnings) > 0 {
		fmt.Fprintln(w, lightRule)
		fmt.Fprintf(w, "Directories not scanned (%d):\n", len(warnings))
		for _, msg := range warnings {
			fmt.Fprintf(w, "   %s\n", msg)
		}
	}
	fmt.Fprintln(w, heavyRule)
}
