package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	predictPath    = "/api/predict"
	healthPath     = "/health"
	userAgent      = "MirrorOS-Public-API/1.0"
	predictTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

// Signer produces the authentication headers for outbound requests. Nil
// means no shared secret is configured and requests go out unsigned.
type Signer interface {
	SignedHeaders(method, path string, body any, extra map[string]string) (map[string]string, error)
}

// UpstreamPayload is the body forwarded to the private prediction service.
type UpstreamPayload struct {
	UserID         string         `json:"user_id"`
	UserTier       string         `json:"user_tier"`
	RequestID      string         `json:"request_id"`
	PredictionData map[string]any `json:"prediction_data"`
}

// signFailure marks errors raised while preparing authentication headers,
// as opposed to transport failures.
type signFailure struct{ err error }

func (e *signFailure) Error() string { return "proxy: sign request: " + e.err.Error() }
func (e *signFailure) Unwrap() error { return e.err }

// IsSignFailure reports whether the error came from request signing rather
// than the network.
func IsSignFailure(err error) bool {
	var sf *signFailure
	return errors.As(err, &sf)
}

// IsTimeout reports whether a transport error was a timeout rather than a
// connection failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NormalizeBaseURL ensures the upstream URL carries a scheme, defaulting to
// https, and no trailing slash.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// Upstream is the HTTP client for the private prediction service.
type Upstream struct {
	baseURL string
	signer  Signer
	client  *http.Client
}

// NewUpstream creates the client. An empty baseURL yields an unconfigured
// client; the orchestrator turns that into a configuration error per
// request rather than failing startup.
func NewUpstream(baseURL string, signer Signer) *Upstream {
	return &Upstream{
		baseURL: NormalizeBaseURL(baseURL),
		signer:  signer,
		client:  &http.Client{Timeout: predictTimeout},
	}
}

// Configured reports whether an upstream URL is set.
func (u *Upstream) Configured() bool { return u.baseURL != "" }

// Predict forwards a signed payload and returns the upstream status and
// decoded JSON body. A non-JSON body decodes to nil without error; the
// status still drives classification.
func (u *Upstream) Predict(ctx context.Context, payload UpstreamPayload) (int, map[string]any, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   userAgent,
		"X-User-Tier":  payload.UserTier,
		"X-Request-ID": payload.RequestID,
	}
	if u.signer != nil {
		signed, err := u.signer.SignedHeaders(http.MethodPost, predictPath, payload, headers)
		if err != nil {
			return 0, nil, &signFailure{err: err}
		}
		headers = signed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("proxy: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("proxy: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr == nil {
			_ = json.Unmarshal(raw, &decoded)
		}
	}
	return resp.StatusCode, decoded, nil
}

// Health probes the upstream health endpoint and returns the round-trip
// time on success.
func (u *Upstream) Health(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+healthPath, nil)
	if err != nil {
		return 0, fmt.Errorf("proxy: build health request: %w", err)
	}

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return 0, &HealthStatusError{StatusCode: resp.StatusCode}
	}
	return time.Since(start), nil
}

// HealthStatusError reports a reachable upstream that answered the health
// probe with a non-200 status.
type HealthStatusError struct {
	StatusCode int
}

func (e *HealthStatusError) Error() string {
	return fmt.Sprintf("proxy: upstream health returned %d", e.StatusCode)
}
