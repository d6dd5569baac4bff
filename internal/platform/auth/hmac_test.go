package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func signedRequest(t *testing.T, secret string, now time.Time, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/cultures/elvish:reload", bytes.NewReader(body))
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := Sign([]byte(secret), req.Method, req.URL.EscapedPath(), ts, body)
	req.Header.Set(defaultSignatureHeader, hex.EncodeToString(sig))
	req.Header.Set(defaultTimestampHeader, ts)
	return req
}

func TestRequireAcceptsValidSignature(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	validator := NewHMACValidator("shh", WithHMACClock(func() time.Time { return now }))

	body := []byte(`{"reason":"template update"}`)
	req := signedRequest(t, "shh", now, body)

	var seen []byte
	rr := httptest.NewRecorder()
	validator.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Equal(seen, body) {
		t.Fatalf("expected body to be restored for the handler, got %q", seen)
	}
}

func TestRequireAcceptsBase64Signature(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	validator := NewHMACValidator("shh", WithHMACClock(func() time.Time { return now }))

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	ts := now.Format(time.RFC3339)
	req.Header.Set(defaultTimestampHeader, ts)
	req.Header.Set(defaultSignatureHeader, base64.StdEncoding.EncodeToString(Sign([]byte("shh"), http.MethodPost, "/reload", ts, nil)))

	rr := httptest.NewRecorder()
	validator.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireRejections(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	})

	cases := []struct {
		name   string
		secret string
		req    func() *http.Request
		status int
	}{
		{
			name:   "wrong secret",
			secret: "shh",
			req:    func() *http.Request { return signedRequest(t, "other", now, nil) },
			status: http.StatusUnauthorized,
		},
		{
			name:   "stale timestamp",
			secret: "shh",
			req:    func() *http.Request { return signedRequest(t, "shh", now.Add(-time.Hour), nil) },
			status: http.StatusUnauthorized,
		},
		{
			name:   "missing signature",
			secret: "shh",
			req: func() *http.Request {
				r := signedRequest(t, "shh", now, nil)
				r.Header.Del(defaultSignatureHeader)
				return r
			},
			status: http.StatusUnauthorized,
		},
		{
			name:   "tampered body",
			secret: "shh",
			req: func() *http.Request {
				r := signedRequest(t, "shh", now, []byte("a"))
				r.Body = io.NopCloser(bytes.NewReader([]byte("b")))
				return r
			},
			status: http.StatusUnauthorized,
		},
		{
			name:   "no secret configured",
			secret: "",
			req:    func() *http.Request { return signedRequest(t, "shh", now, nil) },
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator := NewHMACValidator(tc.secret, WithHMACClock(func() time.Time { return now }))
			rr := httptest.NewRecorder()
			validator.Require(next).ServeHTTP(rr, tc.req())
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
