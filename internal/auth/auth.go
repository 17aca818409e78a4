// Package auth resolves endpoint credentials and checks that the inference
// endpoint is reachable before a run starts.
package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// KeyFileEnv names a file holding the endpoint API key.
const KeyFileEnv = "CURATOR_API_KEY_FILE"

// ResolveAPIKey returns the API key for the inference endpoint.
// Priority order:
//  1. the configured key (config file, CURATOR_API_KEY or --api-key)
//  2. the file named by CURATOR_API_KEY_FILE
//
// Local servers usually need no key, so an empty result is not an error.
func ResolveAPIKey(configured string) (string, error) {
	if configured != "" {
		log.Debug().Msg("Using configured API key")
		return configured, nil
	}

	path := os.Getenv(KeyFileEnv)
	if path == "" {
		log.Debug().Msg("No API key configured")
		return "", nil
	}

	key, err := readKeyFile(path)
	if err != nil {
		return "", err
	}
	log.Debug().Str("file", path).Msg("Using API key from key file")
	return key, nil
}

// readKeyFile reads a key file. The file must be owner-only.
func readKeyFile(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("API key file not readable: %w", err)
	}
	if mode := fi.Mode().Perm(); mode&0o077 != 0 {
		return "", &ValidationError{
			Type:    ErrTypeNoKey,
			Message: fmt.Sprintf("API key file %s has insecure permissions %04o (should be 0600)", path, mode),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", &ValidationError{Type: ErrTypeNoKey, Message: "API key file " + path + " is empty"}
	}
	return key, nil
}
