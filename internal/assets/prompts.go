// Package assets holds the prompt templates embedded into the binaries.
//
// Templates are plain text under prompts/ with an optional
// {{.MetadataContext}} block filled from the image's EXIF data.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/classify.txt
var classifyTemplate string

//go:embed prompts/tag.txt
var tagTemplate string

// template.Must panics on malformed templates, catching errors at program
// startup rather than at call time.
var (
	classifyPromptTmpl = template.Must(template.New("classify").Parse(classifyTemplate))
	tagPromptTmpl      = template.Must(template.New("tag").Parse(tagTemplate))
)

// PromptData holds the dynamic data injected into prompt templates.
type PromptData struct {
	// MetadataContext is the formatted EXIF block, or "" when unavailable.
	MetadataContext string
}

// RenderClassifyPrompt renders the quality-score instruction.
func RenderClassifyPrompt(metadataContext string) string {
	return renderTemplate(classifyPromptTmpl, metadataContext)
}

// RenderTagPrompt renders the title/description/keywords instruction.
func RenderTagPrompt(metadataContext string) string {
	return renderTemplate(tagPromptTmpl, metadataContext)
}

func renderTemplate(tmpl *template.Template, metadataContext string) string {
	var buf bytes.Buffer
	// Execution errors are not expected with these templates; whatever was
	// rendered is still a usable prompt.
	_ = tmpl.Execute(&buf, PromptData{MetadataContext: strings.TrimSpace(metadataContext)})
	return strings.TrimSpace(buf.String())
}
