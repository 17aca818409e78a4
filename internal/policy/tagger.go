package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fpang/photo-curator/internal/assets"
	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/filehandler"
	"github.com/fpang/photo-curator/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

// ErrIncompleteTags is returned when the model output lacks a title or a description.
var ErrIncompleteTags = errors.New("model output is missing title or description")

// Tagger asks for title, description and keywords and writes them into the image.
type Tagger struct {
	writer          filehandler.MetadataWriter
	dryRun          bool
	includeMetadata bool
}

// NewTagger returns a Tagger. In dry-run mode writer may be nil; nothing is written.
func NewTagger(writer filehandler.MetadataWriter, dryRun, includeMetadata bool) *Tagger {
	return &Tagger{writer: writer, dryRun: dryRun, includeMetadata: includeMetadata}
}

// Name identifies the policy in logs and reports.
func (t *Tagger) Name() string { return "tag" }

// Instruction returns the prompt for item.
func (t *Tagger) Instruction(item filehandler.WorkItem) string {
	return instruction(assets.RenderTagPrompt, item, t.includeMetadata)
}

// Shape asks for a JSON object with room for a long keyword list.
func (t *Tagger) Shape() chat.Shape {
	return chat.Shape{MaxTokens: 4096, JSON: true}
}

// keywordList accepts either a JSON array or a single delimited string.
type keywordList []string

func (k *keywordList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("keywords must be a list or a string: %w", err)
	}
	*k = splitDelimited(s)
	return nil
}

type tagReply struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Keywords    keywordList `json:"keywords"`
}

// Parse reads the tags from JSON output, falling back to "Title: ..." lines
// for models that ignore the format request. Title and description are
// required; keywords may be empty.
func (t *Tagger) Parse(raw string) (filehandler.Tags, error) {
	tags, err := ParseTags(raw)
	if err != nil {
		return filehandler.Tags{}, chat.RetryableFailure("unusable tags", err)
	}
	return tags, nil
}

// ParseTags is the parsing half of Tagger.Parse.
func ParseTags(raw string) (filehandler.Tags, error) {
	reply, jsonErr := jsonutil.ParseJSON[tagReply](raw)
	if jsonErr != nil {
		reply = parseLabeledLines(jsonutil.StripThinking(raw))
	}

	tags := filehandler.Tags{
		Title:       strings.TrimSpace(reply.Title),
		Description: strings.TrimSpace(reply.Description),
		Keywords:    normalizeKeywords(reply.Keywords),
	}
	if tags.Title == "" || tags.Description == "" {
		if jsonErr != nil {
			return filehandler.Tags{}, fmt.Errorf("%w: %v", ErrIncompleteTags, jsonErr)
		}
		return filehandler.Tags{}, ErrIncompleteTags
	}
	return tags, nil
}

// parseLabeledLines reads "Title: x" / "Description: y" / "Keywords: a, b".
func parseLabeledLines(text string) tagReply {
	var reply tagReply
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.Trim(strings.TrimSpace(label), "*-# "))
		value = strings.Trim(strings.TrimSpace(value), `"*`)
		switch label {
		case "title":
			reply.Title = value
		case "description":
			reply.Description = value
		case "keywords", "tags":
			reply.Keywords = splitDelimited(value)
		}
	}
	return reply
}

func splitDelimited(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

// normalizeKeywords trims entries and drops blanks and case-insensitive
// duplicates, keeping the model's order.
func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

// Apply writes the tags, or only logs them in dry-run mode.
func (t *Tagger) Apply(_ context.Context, item filehandler.WorkItem, tags filehandler.Tags) (bool, error) {
	if t.dryRun {
		log.Info().
			Str("path", item.RelPath).
			Str("title", tags.Title).
			Strs("keywords", tags.Keywords).
			Msg("Dry run: would write tags")
		return false, nil
	}
	if err := t.writer.WriteTags(item.Path, tags); err != nil {
		return false, err
	}
	log.Info().
		Str("path", item.RelPath).
		Str("title", tags.Title).
		Int("keywords", len(tags.Keywords)).
		Msg("Tagged")
	return true, nil
}

// SkipTagged returns a walk filter that leaves out images which already
// carry a title and keywords. With overwrite set nothing is skipped.
func SkipTagged(overwrite bool) filehandler.SkipFunc {
	return func(item filehandler.WorkItem) (bool, string) {
		if overwrite {
			return false, ""
		}
		existing, err := filehandler.ReadExistingTags(item.Path)
		if err != nil {
			log.Debug().Err(err).Str("path", item.RelPath).Msg("Could not read existing tags")
			return false, ""
		}
		if existing.HasTitleAndKeywords() {
			return true, "already tagged"
		}
		return false, ""
	}
}
