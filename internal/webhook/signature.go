package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Verify checks a Shopify webhook signature: base64 HMAC-SHA256 over the raw
// request body using the shared secret. The body must be the exact bytes as
// received; re-serializing parsed JSON invalidates the signature.
func Verify(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	b, err := base64.StdEncoding.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, b)
}

// Sign returns the base64 HMAC-SHA256 for a body, for tests and tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
