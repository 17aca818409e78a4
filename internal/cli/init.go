package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fpang/photo-curator/internal/auth"
	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/config"
	"github.com/rs/zerolog/log"
)

// probeTimeout bounds the startup check independently of the per-attempt timeout.
const probeTimeout = 10 * time.Second

// NewInferenceClient resolves the API key, builds the client and, unless
// skipProbe is set, checks that the endpoint is reachable.
func NewInferenceClient(ctx context.Context, cfg config.Config, skipProbe bool) (*chat.Client, error) {
	apiKey, err := auth.ResolveAPIKey(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve API key: %w", err)
	}

	client := chat.NewClient(chat.Options{
		EndpointURL: cfg.EndpointURL,
		Model:       cfg.Model,
		APIKey:      apiKey,
		Timeout:     cfg.Timeout(),
		JSONMode:    cfg.JSONMode,
	})

	if skipProbe {
		log.Debug().Msg("Endpoint probe skipped")
		return client, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := auth.ValidateEndpoint(probeCtx, client, apiKey != ""); err != nil {
		return nil, err
	}
	return client, nil
}

// InitInferenceClient is NewInferenceClient that exits fatally on failure.
func InitInferenceClient(ctx context.Context, cfg config.Config, skipProbe bool) *chat.Client {
	client, err := NewInferenceClient(ctx, cfg, skipProbe)
	if err != nil {
		HandleValidationError(err)
	}

	log.Info().
		Str("endpoint", client.Endpoint()).
		Str("model", cfg.Model).
		Msg("Inference client ready")
	return client
}
