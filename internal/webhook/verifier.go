package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"go.uber.org/zap"
)

// Verifier authenticates incoming webhook calls
type Verifier struct {
	ocrSecret   string
	pandaDocKey string
	logger      *zap.Logger
}

// NewVerifier creates a new webhook verifier. An empty ocrSecret rejects
// every OCR callback; an empty pandaDocKey disables PandaDoc signature checks.
func NewVerifier(ocrSecret, pandaDocKey string, logger *zap.Logger) *Verifier {
	return &Verifier{
		ocrSecret:   ocrSecret,
		pandaDocKey: pandaDocKey,
		logger:      logger,
	}
}

// VerifySecret compares the X-Webhook-Secret header with the shared secret
func (v *Verifier) VerifySecret(got string) bool {
	if v.ocrSecret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(v.ocrSecret)) == 1
}

// VerifySignature checks the hex HMAC-SHA256 of body PandaDoc sends in
// the signature query parameter
func (v *Verifier) VerifySignature(body []byte, signature string) bool {
	if v.pandaDocKey == "" {
		return true
	}
	expected := Sign(v.pandaDocKey, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign returns the hex HMAC-SHA256 of body under key
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
