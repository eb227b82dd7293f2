package slack

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func signedHeader(secret string, ts time.Time, body []byte) http.Header {
	h := http.Header{}
	stamp := strconv.FormatInt(ts.Unix(), 10)
	h.Set("X-Slack-Request-Timestamp", stamp)
	h.Set("X-Slack-Signature", Sign([]byte(secret), stamp, body))
	return h
}

func TestVerifier(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	body := []byte("user_id=U1&text=hi")
	v := NewVerifier("shh")
	v.nowF = func() time.Time { return now }

	testCases := []struct {
		name   string
		header http.Header
		want   error
	}{
		{"valid", signedHeader("shh", now, body), nil},
		{"within skew", signedHeader("shh", now.Add(-4*time.Minute), body), nil},
		{"stale", signedHeader("shh", now.Add(-6*time.Minute), body), ErrStaleRequest},
		{"wrong secret", signedHeader("other", now, body), ErrBadSignature},
		{"missing", http.Header{}, ErrMissingSignature},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := v.Verify(tc.header, body); !errors.Is(err, tc.want) {
				t.Errorf("Verify = %v, want %v", err, tc.want)
			}
		})
	}

	tampered := signedHeader("shh", now, body)
	if err := v.Verify(tampered, []byte("user_id=U1&text=evil")); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered body = %v, want ErrBadSignature", err)
	}
}

func TestVerifier_DisabledWithoutSecret(t *testing.T) {
	v := NewVerifier("")
	if v != nil {
		t.Fatal("empty secret should disable verification")
	}
	if err := v.Verify(http.Header{}, nil); err != nil {
		t.Errorf("nil verifier Verify = %v, want nil", err)
	}
}
