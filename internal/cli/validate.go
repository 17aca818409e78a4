package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/photo-curator/internal/auth"
	"github.com/rs/zerolog/log"
)

// ResolveDirectory checks that the path exists and is a directory, then
// returns its absolute form with symlinks resolved.
func ResolveDirectory(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", dirPath)
		}
		return "", fmt.Errorf("failed to access directory %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", dirPath)
	}

	return resolvePath(dirPath)
}

// ValidateAndResolveDirectory is ResolveDirectory that exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	resolved, err := ResolveDirectory(dirPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dirPath).Msg("Invalid directory")
	}
	return resolved
}

// ResolveOutputDirectory returns the absolute, symlink-free output root,
// creating it when create is set. It refuses a path that exists but is not
// a directory.
func ResolveOutputDirectory(dirPath string, create bool) (string, error) {
	if dirPath == "" {
		return "", errors.New("output directory is required")
	}
	if info, err := os.Stat(dirPath); err == nil && !info.IsDir() {
		return "", fmt.Errorf("output path is not a directory: %s", dirPath)
	}
	if create {
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return resolvePath(dirPath)
}

// resolvePath makes path absolute and resolves symlinks in the part of it
// that exists, so two spellings of one directory compare equal.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	existing, rest := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// ValidationMessage maps an endpoint validation failure to the message shown
// to the user.
func ValidationMessage(err error) string {
	var validationErr *auth.ValidationError
	if !errors.As(err, &validationErr) {
		return "Unexpected error while checking the inference endpoint"
	}
	switch validationErr.Type {
	case auth.ErrTypeNoKey:
		return "Endpoint requires an API key. Set CURATOR_API_KEY, api_key in the config file, or " + auth.KeyFileEnv
	case auth.ErrTypeInvalidKey:
		return "API key rejected by the endpoint. Please check your API key and try again"
	case auth.ErrTypeNetworkError:
		return "Inference endpoint unreachable. Check that the server is running and endpoint_url is correct"
	case auth.ErrTypeQuotaExceeded:
		return "Inference endpoint is rate limiting requests. Please try again later"
	default:
		return "Inference endpoint check failed"
	}
}

// HandleValidationError logs the failure with user-facing guidance and exits.
func HandleValidationError(err error) {
	log.Fatal().Err(err).Msg(ValidationMessage(err))
	os.Exit(1)
}
