package filehandler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"github.com/bep/imagemeta"
)

// Tags are the descriptive fields media-tag writes into an image.
type Tags struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// HasTitleAndKeywords reports whether the image already looks tagged.
func (t Tags) HasTitleAndKeywords() bool {
	return strings.TrimSpace(t.Title) != "" && len(t.Keywords) > 0
}

// existingTagNames are the EXIF and XMP tags ReadExistingTags cares about.
var existingTagNames = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"XPTitle":          true,
		"XPKeywords":       true,
		"ImageDescription": true,
	},
	imagemeta.XMP: {
		"Title":       true,
		"Description": true,
		"Subject":     true,
	},
}

// ReadExistingTags reads title, description and keywords already embedded
// in an image. EXIF XP fields win over their XMP equivalents.
func ReadExistingTags(path string) (Tags, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tags{}, fmt.Errorf("failed to read image: %w", err)
	}

	var exif, xmp Tags
	opts := imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if names, ok := existingTagNames[ti.Source]; ok {
				return names[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			dst := &exif
			if ti.Source == imagemeta.XMP {
				dst = &xmp
			}
			switch ti.Tag {
			case "XPTitle", "Title":
				dst.Title = tagValueString(ti.Value)
			case "ImageDescription", "Description":
				dst.Description = tagValueString(ti.Value)
			case "XPKeywords":
				dst.Keywords = splitKeywords(tagValueString(ti.Value))
			case "Subject":
				dst.Keywords = tagValueStrings(ti.Value)
			}
			return nil
		},
	}
	setImageFormat(&opts, path)

	if _, err := imagemeta.Decode(opts); err != nil {
		return Tags{}, fmt.Errorf("failed to decode metadata: %w", err)
	}

	out := exif
	if out.Title == "" {
		out.Title = xmp.Title
	}
	if out.Description == "" {
		out.Description = xmp.Description
	}
	if len(out.Keywords) == 0 {
		out.Keywords = xmp.Keywords
	}
	return out, nil
}

// setImageFormat tells the decoder the container format when the
// extension makes it obvious.
func setImageFormat(opts *imagemeta.Options, path string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		opts.ImageFormat = imagemeta.JPEG
	case ".png":
		opts.ImageFormat = imagemeta.PNG
	case ".tif", ".tiff":
		opts.ImageFormat = imagemeta.TIFF
	case ".webp":
		opts.ImageFormat = imagemeta.WebP
	}
}

// splitKeywords splits the ";"-joined XPKeywords value.
func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ";") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList); XP fields
// may arrive as raw UCS-2 bytes.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimRight(val, "\x00")
	case []byte:
		return decodeUCS2(val)
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// tagValueStrings extracts every string from a list-valued tag.
func tagValueStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}

// decodeUCS2 decodes a little-endian UTF-16 byte slice, dropping the
// trailing NUL terminator.
func decodeUCS2(b []byte) string {
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])|uint16(b[i+1])<<8)
	}
	return strings.TrimRight(string(utf16.Decode(u)), "\x00")
}
