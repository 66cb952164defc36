package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Verifier checks a webhook signature against the raw payload and the
// per-gateway secret. Schemes differ per provider, so verification is a
// pluggable strategy selected when the ingestor is built.
type Verifier interface {
	Verify(payload []byte, signature, secret string) bool
}

// HMACVerifier implements the common sha256= prefixed hex HMAC scheme.
type HMACVerifier struct{}

// Verify implements Verifier using a constant-time comparison.
func (HMACVerifier) Verify(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// LegacyVerifier reproduces the placeholder scheme the simulated gateways
// send: base64 of the payload concatenated with the secret. It exists for
// compatibility only and is not a real authentication scheme.
type LegacyVerifier struct{}

// Verify implements Verifier.
func (LegacyVerifier) Verify(payload []byte, signature, secret string) bool {
	expected := base64.StdEncoding.EncodeToString(append(append([]byte{}, payload...), secret...))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SkipVerifier accepts any signature. Used when a gateway has no webhook
// secret configured.
type SkipVerifier struct{}

// Verify implements Verifier.
func (SkipVerifier) Verify([]byte, string, string) bool { return true }
