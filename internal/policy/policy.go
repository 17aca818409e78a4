// Package policy holds the two result policies: how raw model output is
// interpreted and which side effect a successful item gets.
package policy

import (
	"github.com/fpang/photo-curator/internal/filehandler"
	"github.com/rs/zerolog/log"
)

// metadataContext returns the EXIF prompt block for item, or "" if the
// image has none or it cannot be read.
func metadataContext(item filehandler.WorkItem) string {
	meta, err := filehandler.ExtractImageMetadata(item.Path)
	if err != nil {
		log.Debug().Err(err).Str("path", item.RelPath).Msg("No EXIF context for prompt")
		return ""
	}
	return meta.FormatMetadataContext()
}

// instruction renders a prompt, with EXIF context when enabled.
func instruction(render func(string) string, item filehandler.WorkItem, withMetadata bool) string {
	if !withMetadata {
		return render("")
	}
	return render(metadataContext(item))
}
