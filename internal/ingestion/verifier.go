package ingestion

import (
	"crypto/subtle"

	"recruitbase_backend/platform/apperr"
	"recruitbase_backend/platform/config"
	"recruitbase_backend/platform/logger"
)

// subscribeMode is the only handshake mode the provider sends for
// subscription verification.
const subscribeMode = "subscribe"

// Verifier validates webhook subscription-verification handshakes.
type Verifier struct {
	token string
	log   *logger.Logger
}

// NewVerifier creates a verifier bound to the configured secret.
func NewVerifier(cfg config.WebhookConfig, log *logger.Logger) *Verifier {
	return &Verifier{token: cfg.GetWebhookVerifyToken(), log: log}
}

// Verify checks the handshake and returns the challenge to echo back.
// A wrong mode or token is an authorization failure; the attempt is logged
// either way and nothing else happens.
func (v *Verifier) Verify(mode, token, challenge string) (string, error) {
	if mode != subscribeMode {
		v.log.VerificationAttempt(mode, false)
		return "", apperr.Forbidden("verification rejected")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) != 1 {
		v.log.VerificationAttempt(mode, false)
		return "", apperr.Forbidden("verification rejected")
	}

	v.log.VerificationAttempt(mode, true)
	return challenge, nil
}
