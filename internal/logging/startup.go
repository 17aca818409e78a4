package logging

import (
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger collects the identity and configuration of a pipeline run and
// emits them as a single structured event, so a log file always says how a
// run was configured.
type RunLogger struct {
	pipeline string
	runID    string
	source   string
	output   string
	features map[string]bool
	config   map[string]string
}

// NewRunLogger creates a RunLogger for the named pipeline ("classify", "tag")
// with a fresh run id.
func NewRunLogger(pipeline string) *RunLogger {
	return &RunLogger{
		pipeline: pipeline,
		runID:    uuid.NewString(),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// RunID returns the id attached to every record of this run.
func (r *RunLogger) RunID() string {
	return r.runID
}

// Source records the scan root.
func (r *RunLogger) Source(dir string) *RunLogger {
	r.source = dir
	return r
}

// Output records the output root (classify only).
func (r *RunLogger) Output(dir string) *RunLogger {
	r.output = dir
	return r
}

// Feature registers a boolean switch such as dry_run or overwrite.
func (r *RunLogger) Feature(name string, enabled bool) *RunLogger {
	r.features[name] = enabled
	return r
}

// Config registers a non-sensitive configuration key-value pair.
// Never pass the API key here.
func (r *RunLogger) Config(key, value string) *RunLogger {
	r.config[key] = value
	return r
}

// Logger returns a child of the global logger tagged with the run id and pipeline.
func (r *RunLogger) Logger() zerolog.Logger {
	return log.With().Str("run_id", r.runID).Str("pipeline", r.pipeline).Logger()
}

// Log emits a single structured INFO event with everything collected.
func (r *RunLogger) Log() {
	evt := log.Info().
		Str("run_id", r.runID).
		Str("pipeline", r.pipeline).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH)

	if r.source != "" {
		evt = evt.Str("source", r.source)
	}
	if r.output != "" {
		evt = evt.Str("output", r.output)
	}

	if len(r.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(r.features) {
			d = d.Bool(k, r.features[k])
		}
		evt = evt.Dict("features", d)
	}

	if len(r.config) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(r.config) {
			d = d.Str(k, r.config[k])
		}
		evt = evt.Dict("config", d)
	}

	evt.Msg("Run starting")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
