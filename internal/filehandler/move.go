package filehandler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrDestinationExists is returned when a move would overwrite an existing file.
var ErrDestinationExists = errors.New("destination already exists")

// renameFunc is swapped in tests to simulate a cross-device rename.
var renameFunc = os.Rename

// MoveFile moves src to dst, creating dst's parent directories. It never
// overwrites dst. Within one volume this is a single rename; across volumes
// the file is copied to a temporary name beside dst, synced, renamed into
// place, and only then is src removed. Either way exactly one copy remains.
func MoveFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check destination: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	err := renameFunc(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to move file: %w", err)
	}

	log.Debug().Str("src", src).Str("dst", dst).Msg("Cross-device move, copying")
	return copyThenRemove(src, dst)
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	tmp := tempSibling(dst)
	if err := copyToFile(in, tmp, info.Mode().Perm()); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		log.Debug().Err(err).Str("path", tmp).Msg("Failed to carry over modification time")
	}

	if _, err := os.Lstat(dst); err == nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to place copy: %w", err)
	}

	if err := os.Remove(src); err != nil {
		// never leave two copies behind
		if rmErr := os.Remove(dst); rmErr != nil {
			log.Error().Err(rmErr).Str("path", dst).Msg("Failed to roll back copied file")
		}
		return fmt.Errorf("failed to remove source after copy: %w", err)
	}
	return nil
}

// copyToFile writes r into a new file at path and fsyncs it.
func copyToFile(r io.Reader, path string, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return nil
}

// tempSibling returns a hidden, unique path in the same directory as path,
// keeping its extension so format-sniffing tools still recognise it.
func tempSibling(path string) string {
	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+name+"."+uuid.NewString()+".tmp"+ext)
}
