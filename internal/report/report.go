// Package report writes the per-item results of a run to a JSON file,
// zstd-compressed when the file name ends in .zst.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fpang/photo-curator/internal/pipeline"
	"github.com/fpang/photo-curator/internal/progress"
	"github.com/klauspost/compress/zstd"
)

// Entry is one item in the report.
type Entry struct {
	Path       string `json:"path"`
	RelPath    string `json:"rel_path"`
	Status     string `json:"status"`
	Outcome    string `json:"outcome"`
	Attempts   int    `json:"attempts"`
	Applied    bool   `json:"applied"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Payload    any    `json:"payload,omitempty"`
}

// Report is the document written to disk.
type Report struct {
	RunID    string    `json:"run_id"`
	Pipeline string    `json:"pipeline"`
	Finished time.Time `json:"finished"`
	Summary  struct {
		Processed int64   `json:"processed"`
		Succeeded int64   `json:"succeeded"`
		Failed    int64   `json:"failed"`
		Skipped   int     `json:"skipped"`
		ElapsedMs int64   `json:"elapsed_ms"`
		Rate      float64 `json:"rate_per_sec"`
	} `json:"summary"`
	Items []Entry `json:"items"`
}

// Build assembles a Report from pipeline results. Failed items carry no payload.
func Build[P any](runID, pipelineName string, summary progress.Summary, results []pipeline.Result[P]) Report {
	r := Report{
		RunID:    runID,
		Pipeline: pipelineName,
		Finished: time.Now().UTC(),
		Items:    make([]Entry, 0, len(results)),
	}
	r.Summary.Processed = summary.Processed
	r.Summary.Succeeded = summary.Succeeded
	r.Summary.Failed = summary.Failed
	r.Summary.Skipped = summary.Skipped
	r.Summary.ElapsedMs = summary.Elapsed.Milliseconds()
	r.Summary.Rate = summary.Rate()

	for _, res := range results {
		e := Entry{
			Path:       res.Item.Path,
			RelPath:    res.Item.RelPath,
			Status:     res.Status.String(),
			Outcome:    res.Outcome.String(),
			Attempts:   res.Attempts,
			Applied:    res.SideEffectApplied,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		} else {
			e.Payload = res.Payload
		}
		r.Items = append(r.Items, e)
	}
	return r
}

// Write stores r at path, replacing any existing file only once the new
// one is complete.
func Write(path string, r Report) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(tmp)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = zw
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err = enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return fmt.Errorf("failed to finish zstd stream: %w", err)
		}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to place report file: %w", err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) (Report, error) {
	var r Report
	f, err := os.Open(path)
	if err != nil {
		return r, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	var rd io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return r, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		rd = zr
	}
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return r, fmt.Errorf("failed to decode report: %w", err)
	}
	return r, nil
}
