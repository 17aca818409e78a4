package filehandler

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/rs/zerolog/log"
)

// MetadataWriter rewrites the descriptive tags of one image.
type MetadataWriter interface {
	WriteTags(path string, tags Tags) error
}

// ExifToolWriter writes tags through a long-lived exiftool process.
// It is safe for concurrent use; go-exiftool serialises access to the process.
type ExifToolWriter struct {
	et *exiftool.Exiftool
}

var _ MetadataWriter = (*ExifToolWriter)(nil)

// NewExifToolWriter starts exiftool in stay-open mode. It fails if the
// exiftool binary is not on PATH.
func NewExifToolWriter() (*ExifToolWriter, error) {
	if _, err := exec.LookPath("exiftool"); err != nil {
		return nil, ErrExifToolMissing
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	return &ExifToolWriter{et: et}, nil
}

// Close stops the exiftool process.
func (w *ExifToolWriter) Close() error {
	return w.et.Close()
}

// tagFields builds the exiftool assignments for tags. Only these fields are
// written; everything else in the file is left as it is. An empty keyword
// list removes any keywords already in the file.
func tagFields(tags Tags) exiftool.FileMetadata {
	tags = singleLine(tags)
	fm := exiftool.EmptyFileMetadata()
	fm.SetString("XPTitle", tags.Title)
	fm.SetString("ImageDescription", tags.Description)
	fm.SetString("XMP-dc:Title", tags.Title)
	fm.SetString("XMP-dc:Description", tags.Description)
	if len(tags.Keywords) == 0 {
		// a cleared field is written as "-Tag=", which deletes stale keywords
		fm.Clear("XPKeywords")
		fm.Clear("XMP-dc:Subject")
		return fm
	}
	fm.SetString("XPKeywords", strings.Join(tags.Keywords, ";"))
	fm.SetStrings("XMP-dc:Subject", tags.Keywords)
	return fm
}

// WriteTags writes tags into the image at path. The edit happens on a
// temporary copy in the same directory which then replaces the original
// with a rename, so the original is either fully old or fully new.
// File mode and access/modification times are carried over.
func (w *ExifToolWriter) WriteTags(path string, tags Tags) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat image: %w", err)
	}
	atime := fileAtime(info)

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	tmp := tempSibling(path)
	err = copyToFile(src, tmp, info.Mode().Perm())
	src.Close()
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := w.writeInPlace(tmp, tags); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := syncFile(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		log.Debug().Err(err).Str("path", tmp).Msg("Failed to carry over file mode")
	}
	if err := os.Chtimes(tmp, atime, info.ModTime()); err != nil {
		log.Debug().Err(err).Str("path", tmp).Msg("Failed to carry over file times")
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace original: %w", err)
	}

	log.Debug().
		Str("path", path).
		Str("title", tags.Title).
		Int("keywords", len(tags.Keywords)).
		Msg("Tags written")
	return nil
}

// singleLine collapses whitespace runs; exiftool reads one argument per line.
func singleLine(tags Tags) Tags {
	flat := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	out := Tags{Title: flat(tags.Title), Description: flat(tags.Description)}
	for _, k := range tags.Keywords {
		if k = flat(k); k != "" {
			out.Keywords = append(out.Keywords, k)
		}
	}
	return out
}

func (w *ExifToolWriter) writeInPlace(path string, tags Tags) error {
	fm := tagFields(tags)
	fm.File = path
	batch := []exiftool.FileMetadata{fm}
	w.et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("exiftool write failed: %w", batch[0].Err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open for sync: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}
	return f.Close()
}

// ErrExifToolMissing reports that tag writing is unavailable.
var ErrExifToolMissing = errors.New("exiftool not found on PATH")
