package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultSkewSeconds is the replay window applied when the caller does not
// override it.
const DefaultSkewSeconds = 300

// VerifyHMAC validates a webhook signature against HMAC-SHA256(secret,
// "<int_ts>." || body). The timestamp header may carry fractional seconds;
// only its truncated integer part participates in the signed message,
// matching the upstream gateway's own signing convention. Returns false
// whenever the secret, timestamp, or signature is missing or malformed, or
// when the timestamp falls outside skewSeconds of now.
func VerifyHMAC(secret, timestampHeader, signatureHeader string, body []byte, skewSeconds int) bool {
	if secret == "" || timestampHeader == "" || signatureHeader == "" {
		return false
	}
	if skewSeconds <= 0 {
		skewSeconds = DefaultSkewSeconds
	}

	ts, err := strconv.ParseFloat(timestampHeader, 64)
	if err != nil {
		return false
	}

	now := float64(time.Now().Unix())
	if math.Abs(now-ts) > float64(skewSeconds) {
		return false
	}

	message := fmt.Sprintf("%d.", int64(ts))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(computed), []byte(signatureHeader)) == 1
}

// VerifyWebhookToken performs the optional second gate: when
// configuredToken is empty, the check is disabled and always passes.
func VerifyWebhookToken(configuredToken, headerToken string) bool {
	if configuredToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(configuredToken), []byte(headerToken)) == 1
}
