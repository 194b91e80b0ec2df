package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/loqalabs/salute-gateway/internal/config"
	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/transport"
)

// Validate checks whether cred is accepted by the authentication endpoint. It
// runs the same exchange as Manager.Token over a throwaway client and caches
// nothing.
func Validate(ctx context.Context, cfg config.SpeechConfig, cred speech.Credential, logger *slog.Logger) error {
	client := transport.NewClient(cfg.TLSInsecure)
	defer client.CloseIdleConnections()

	x := exchanger{
		endpoint: cfg.AuthEndpoint,
		scope:    cfg.Scope,
		timeout:  cfg.AuthTimeout(),
		client:   client,
		log:      logger.With(slog.String("component", "auth-validate")),
		rqUID:    uuid.NewString,
	}
	_, err := x.exchange(ctx, cred)
	return err
}
