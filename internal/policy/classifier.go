package policy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/fpang/photo-curator/internal/assets"
	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/filehandler"
	"github.com/fpang/photo-curator/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

// ErrNoScore is returned when the model output has no integer in it.
var ErrNoScore = errors.New("no score in model output")

const (
	minScore = 0
	maxScore = 100
)

var (
	scorePattern = regexp.MustCompile(`-?\d+`)
	// legacyPrefix matches files named by an older scheme that put the score
	// in the file name ("087__IMG_1234.jpg").
	legacyPrefix = regexp.MustCompile(`^\d{3}__`)
)

// Classifier scores images and moves each into <output>/<score:03d>/<relative dir>/.
type Classifier struct {
	outputRoot      string
	dryRun          bool
	includeMetadata bool
}

// NewClassifier returns a Classifier that moves files under outputRoot.
// In dry-run mode the destination is logged and nothing is moved.
func NewClassifier(outputRoot string, dryRun, includeMetadata bool) *Classifier {
	return &Classifier{outputRoot: outputRoot, dryRun: dryRun, includeMetadata: includeMetadata}
}

// Name identifies the policy in logs and reports.
func (c *Classifier) Name() string { return "classify" }

// Instruction returns the prompt for item.
func (c *Classifier) Instruction(item filehandler.WorkItem) string {
	return instruction(assets.RenderClassifyPrompt, item, c.includeMetadata)
}

// Shape asks for a very short plain-text answer.
func (c *Classifier) Shape() chat.Shape {
	return chat.Shape{MaxTokens: 10}
}

// Parse extracts the score. Missing scores are retryable since the model
// may answer properly next time.
func (c *Classifier) Parse(raw string) (int, error) {
	score, err := ParseScore(raw)
	if err != nil {
		return 0, chat.RetryableFailure("unparseable score", err)
	}
	return score, nil
}

// ParseScore returns the first integer in raw, clamped to [0,100].
func ParseScore(raw string) (int, error) {
	match := scorePattern.FindString(jsonutil.StripThinking(raw))
	if match == "" {
		return 0, fmt.Errorf("%w: %q", ErrNoScore, truncate(raw, 80))
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		// only overflow gets here: far out of range either way
		if match[0] == '-' {
			return minScore, nil
		}
		return maxScore, nil
	}
	return min(max(n, minScore), maxScore), nil
}

// Destination is where item ends up for a given score.
func (c *Classifier) Destination(item filehandler.WorkItem, score int) string {
	return filepath.Join(c.outputRoot, fmt.Sprintf("%03d", score), item.RelDir(), filepath.Base(item.Path))
}

// Apply moves the file into its score bucket.
func (c *Classifier) Apply(_ context.Context, item filehandler.WorkItem, score int) (bool, error) {
	dst := c.Destination(item, score)
	if c.dryRun {
		log.Info().
			Str("path", item.RelPath).
			Int("score", score).
			Str("destination", dst).
			Msg("Dry run: would move")
		return false, nil
	}
	if err := filehandler.MoveFile(item.Path, dst); err != nil {
		return false, err
	}
	log.Info().
		Str("path", item.RelPath).
		Int("score", score).
		Str("destination", dst).
		Msg("Moved")
	return true, nil
}

// SkipLegacy leaves out files already named by the old score-prefix scheme.
func SkipLegacy(item filehandler.WorkItem) (bool, string) {
	if legacyPrefix.MatchString(filepath.Base(item.Path)) {
		return true, "legacy score prefix"
	}
	return false, ""
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
