package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes an HMAC-SHA256 signature over the exact bytes that will be
// transmitted, keyed by the subscription secret, rendered as hex. Receivers
// recompute it over the raw body and compare in constant time; this side only
// ever signs.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
