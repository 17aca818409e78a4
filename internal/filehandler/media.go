// Package filehandler discovers image files and applies the file-system side
// effects of the curator pipelines.
//
// Reading uses pure Go metadata parsers (evanoberholster/imagemeta for EXIF
// prompt context, bep/imagemeta for existing tags). Writing goes through the
// exiftool binary, which preserves every field it is not told to change.
package filehandler

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when a file's content is not a recognised image.
var ErrNotImage = errors.New("not a recognised image")

// SupportedImageExtensions maps accepted image extensions to MIME types.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
}

// DefaultClassifyExtensions are scanned by media-classify.
var DefaultClassifyExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

// DefaultTagExtensions are scanned by media-tag. EXIF XP fields only exist in JPEG.
var DefaultTagExtensions = []string{".jpg", ".jpeg"}

// decoderMIME maps image.DecodeConfig format names to MIME types.
var decoderMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"tiff": "image/tiff",
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, bool) {
	mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return mimeType, ok
}

// IsImage returns true if the file extension corresponds to an image.
func IsImage(ext string) bool {
	_, ok := GetMIMEType(ext)
	return ok
}

// DetectMIMEType sniffs the MIME type from the image header. Formats Go
// cannot decode (HEIC) fall back to the extension. The bytes are never
// re-encoded; only the header is inspected.
func DetectMIMEType(data []byte, path string) (string, error) {
	if len(data) == 0 {
		return "", ErrNotImage
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if mimeType, ok := decoderMIME[format]; ok {
			return mimeType, nil
		}
	}
	if mimeType, ok := GetMIMEType(filepath.Ext(path)); ok {
		return mimeType, nil
	}
	return "", ErrNotImage
}
