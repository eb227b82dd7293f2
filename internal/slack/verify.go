package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"
)

// MaxSkew is the largest accepted difference between the request timestamp and now.
const MaxSkew = 5 * time.Minute

// Signature errors.
var (
	ErrMissingSignature = errors.New("slack: missing signature headers")
	ErrStaleRequest     = errors.New("slack: request timestamp outside allowed skew")
	ErrBadSignature     = errors.New("slack: signature mismatch")
)

// Verifier checks X-Slack-Signature (v0, HMAC-SHA256 over "v0:<timestamp>:<body>").
type Verifier struct {
	secret []byte
	nowF   func() time.Time
}

// NewVerifier returns a verifier for signingSecret, or nil when the secret is empty (verification off).
func NewVerifier(signingSecret string) *Verifier {
	if signingSecret == "" {
		return nil
	}
	return &Verifier{secret: []byte(signingSecret), nowF: time.Now}
}

// Verify checks the request headers against body. A nil Verifier accepts everything.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	if v == nil {
		return nil
	}
	ts := h.Get("X-Slack-Request-Timestamp")
	sig := h.Get("X-Slack-Signature")
	if ts == "" || sig == "" {
		return ErrMissingSignature
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMissingSignature
	}
	if math.Abs(float64(v.nowF().Unix()-secs)) > MaxSkew.Seconds() {
		return ErrStaleRequest
	}
	if !hmac.Equal([]byte(sig), []byte(Sign(v.secret, ts, body))) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the v0 signature header value.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
