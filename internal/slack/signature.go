package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// signatureVersion prefixes every signed request per Slack's scheme.
const signatureVersion = "v0"

// MaxSignatureAge bounds the timestamp skew accepted on incoming
// requests, limiting replay of captured payloads.
const MaxSignatureAge = 5 * time.Minute

// Sign computes the v0 request signature over timestamp and body.
func Sign(signingSecret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "%s:%s:", signatureVersion, timestamp)
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an incoming request signature and rejects
// stale timestamps.
func VerifySignature(signingSecret, timestamp, signature string, body []byte, now time.Time) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > MaxSignatureAge || age < -MaxSignatureAge {
		return false
	}
	expected := Sign(signingSecret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
