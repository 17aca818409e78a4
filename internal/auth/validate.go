package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ValidationError represents a specific type of endpoint validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates the endpoint wants a key and none was configured.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the configured key was rejected.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates the endpoint could not be reached or is failing.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the endpoint is rate limiting us.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Prober is the part of the inference client the startup check needs.
type Prober interface {
	Probe(ctx context.Context) (int, error)
	ModelsURL() string
}

// ValidateEndpoint makes one cheap request to the endpoint's model listing.
// It returns nil if the endpoint answered, or a ValidationError describing
// why the run should not start. hasKey tells apart "no key" from "bad key"
// on a 401/403.
func ValidateEndpoint(ctx context.Context, p Prober, hasKey bool) error {
	log.Debug().Str("url", p.ModelsURL()).Msg("Probing inference endpoint")

	start := time.Now()
	status, err := p.Probe(ctx)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Msg("Inference endpoint unreachable")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "inference endpoint unreachable at " + p.ModelsURL(),
			Err:     err,
		}
	}

	log.Debug().
		Int("status", status).
		Dur("duration", elapsed).
		Msg("Endpoint probe result")

	if verr := classifyStatus(status, hasKey); verr != nil {
		return verr
	}

	log.Info().Msg("Inference endpoint reachable")
	return nil
}

// classifyStatus maps a probe status code to a ValidationError, or nil if
// the endpoint is usable. A 404 is accepted since not every server exposes
// a model listing.
func classifyStatus(code int, hasKey bool) *ValidationError {
	switch {
	case code >= 200 && code < 300:
		return nil

	case code == http.StatusNotFound, code == http.StatusMethodNotAllowed:
		log.Warn().Int("code", code).Msg("Endpoint has no model listing; skipping check")
		return nil

	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		if !hasKey {
			log.Error().Int("code", code).Msg("Endpoint requires an API key")
			return &ValidationError{
				Type:    ErrTypeNoKey,
				Message: "endpoint requires an API key",
			}
		}
		log.Error().Int("code", code).Msg("Authentication failed - invalid API key")
		return &ValidationError{
			Type:    ErrTypeInvalidKey,
			Message: "API key is invalid, expired, or lacks permissions",
		}

	case code == http.StatusTooManyRequests:
		log.Error().Int("code", code).Msg("Rate limit exceeded")
		return &ValidationError{
			Type:    ErrTypeQuotaExceeded,
			Message: "endpoint rate limit exceeded - try again later",
		}

	case code >= 500:
		log.Error().Int("code", code).Msg("Server error during validation")
		return &ValidationError{
			Type:    ErrTypeNetworkError,
			Message: "inference server error - is the model loaded?",
		}

	default:
		log.Error().Int("code", code).Msg("Unexpected probe status")
		return &ValidationError{
			Type:    ErrTypeUnknown,
			Message: http.StatusText(code),
		}
	}
}
