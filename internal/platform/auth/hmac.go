package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultClockSkew       = 5 * time.Minute
	maxSignedBodyBytes     = 1 << 20
)

// HMACValidator verifies requests signed by trusted operators with a shared secret.
// The signature covers the method, escaped path, timestamp and a SHA-256 of the body.
type HMACValidator struct {
	secret []byte
	logger *zap.Logger
	now    func() time.Time

	signatureHeader string
	timestampHeader string
	clockSkew       time.Duration
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator for secret. An empty secret rejects every request.
func NewHMACValidator(secret string, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		secret:          []byte(strings.TrimSpace(secret)),
		logger:          zap.NewNop(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		clockSkew:       defaultClockSkew,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACClock injects a custom clock, primarily for tests.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders customises the header names used by the middleware.
func WithHMACHeaders(signature, timestamp string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
	}
}

// WithHMACClockSkew adjusts the accepted timestamp skew.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// Require enforces a valid signature before calling next.
func (v *HMACValidator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(v.secret) == 0 {
			respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "hmac secret not configured")
			return
		}

		signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
		if signatureValue == "" {
			respondAuthError(w, http.StatusUnauthorized, "signature_missing", "signature header missing")
			return
		}
		timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
		timestamp, err := parseSignatureTimestamp(timestampValue)
		if err != nil {
			respondAuthError(w, http.StatusUnauthorized, "timestamp_invalid", "signature timestamp missing or invalid")
			return
		}
		if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
			respondAuthError(w, http.StatusUnauthorized, "timestamp_skew", "signature timestamp outside allowed window")
			return
		}

		body, err := readAndRestoreBody(r)
		if err != nil {
			respondAuthError(w, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
			return
		}
		signature, err := decodeSignature(signatureValue)
		if err != nil {
			respondAuthError(w, http.StatusUnauthorized, "signature_invalid", "signature encoding invalid")
			return
		}
		if !hmac.Equal(signature, Sign(v.secret, r.Method, r.URL.EscapedPath(), timestampValue, body)) {
			v.logger.Warn("hmac signature mismatch", zap.String("path", r.URL.Path))
			respondAuthError(w, http.StatusUnauthorized, "signature_mismatch", "signature verification failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sign computes the request signature. Clients use it to build the signature header.
func Sign(secret []byte, method, path, timestamp string, body []byte) []byte {
	if path == "" {
		path = "/"
	}
	hash := sha256.Sum256(body)
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		hex.EncodeToString(hash[:]),
	}, "\n")
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxSignedBodyBytes {
		return nil, errors.New("auth: signed body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
