// Package signing implements HMAC-SHA256 request signing for calls from the
// public gateway to the private prediction server. The canonical form of a
// request is:
//
//	METHOD\nPATH\nTIMESTAMP\nCANONICAL_JSON(body)
//
// where CANONICAL_JSON is RFC 8785 (JCS): keys sorted, no extraneous
// whitespace, so signer and verifier produce byte-identical input.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// DefaultTolerance is the maximum accepted clock skew between signer and
// verifier. Requests older than this are rejected as replays.
const DefaultTolerance = 300 * time.Second

// ErrEmptySecret is returned when a signer is constructed without a secret.
var ErrEmptySecret = errors.New("signing: secret key must not be empty")

// Signer signs and verifies gateway requests with a shared secret.
// It is stateless and safe for concurrent use.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for the given shared secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// CanonicalJSON returns the RFC 8785 canonical JSON encoding of body.
func CanonicalJSON(body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("signing: marshal body: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("signing: canonicalize body: %w", err)
	}
	return canonical, nil
}

// StringToSign builds the canonical string for the given request components.
func (s *Signer) StringToSign(method, path string, body any, timestamp int64) (string, error) {
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n%s\n%d\n%s", strings.ToUpper(method), path, timestamp, canonical), nil
}

// Sign computes the lowercase-hex HMAC-SHA256 signature of the request.
// A timestamp of 0 means "now".
func (s *Signer) Sign(method, path string, body any, timestamp int64) (string, error) {
	if timestamp == 0 {
		timestamp = s.now().Unix()
	}
	payload, err := s.StringToSign(method, path, body, timestamp)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a signature against the request components. It returns false
// when the timestamp is outside the tolerance window (replay mitigation) or
// when the signature does not match; malformed input is simply invalid, never
// an error. Comparison is constant time.
func (s *Signer) Verify(method, path string, body any, signature string, timestamp int64, tolerance time.Duration) bool {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	skew := s.now().Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > tolerance {
		return false
	}

	expected, err := s.Sign(method, path, body, timestamp)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignedHeaders returns the header set for an outbound signed request:
// X-Signature, X-Timestamp and Content-Type, merged with extra.
func (s *Signer) SignedHeaders(method, path string, body any, extra map[string]string) (map[string]string, error) {
	timestamp := s.now().Unix()
	signature, err := s.Sign(method, path, body, timestamp)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"X-Signature":  signature,
		"X-Timestamp":  strconv.FormatInt(timestamp, 10),
		"Content-Type": "application/json",
	}
	for k, v := range extra {
		headers[k] = v
	}
	return headers, nil
}

// VerifyHeaders validates an inbound request whose signature and timestamp
// arrive in X-Signature / X-Timestamp headers.
func (s *Signer) VerifyHeaders(method, path string, body any, headers map[string]string) bool {
	signature := headers["X-Signature"]
	timestampStr := headers["X-Timestamp"]
	if signature == "" || timestampStr == "" {
		return false
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return false
	}
	return s.Verify(method, path, body, signature, timestamp, DefaultTolerance)
}

// VerifyWebhookSignature validates a raw webhook payload against a hex
// HMAC-SHA256 signature. A "sha256=" prefix on the signature is accepted.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
