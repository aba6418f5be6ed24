// Package proxy is the gateway core: it validates prediction requests,
// enforces the daily quota, signs and forwards the request upstream,
// classifies the outcome and writes exactly one usage-log record per
// terminal outcome.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mirroros/gateway/pkg/quota"
	"github.com/mirroros/gateway/pkg/tiers"
	"github.com/mirroros/gateway/pkg/usagelog"
	"github.com/mirroros/gateway/pkg/users"
)

// Outcome is the terminal result of a proxied prediction: the HTTP status,
// the response envelope, and the failure code (empty on success).
type Outcome struct {
	Status int
	Code   Code
	Body   map[string]any
}

// Orchestrator drives a prediction request through validate, quota, sign,
// forward, classify, log. Demo accounts get process-local quota and usage
// state so the shared demo identity never touches persistent storage.
type Orchestrator struct {
	upstream *Upstream
	ledger   *quota.Ledger
	records  usagelog.Store

	demoLedger  *quota.Ledger
	demoRecords usagelog.Store

	log *slog.Logger
	now func() time.Time
}

// NewOrchestrator wires the orchestrator. The demo stores are created
// internally and live only as long as the process.
func NewOrchestrator(upstream *Upstream, ledger *quota.Ledger, records usagelog.Store, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		upstream:    upstream,
		ledger:      ledger,
		records:     records,
		demoLedger:  quota.NewLedger(quota.NewMemoryStore()),
		demoRecords: usagelog.NewMemoryStore(),
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the orchestrator's clock. Test hook.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

func (o *Orchestrator) ledgerFor(acct users.Account) *quota.Ledger {
	if acct.IsDemo() {
		return o.demoLedger
	}
	return o.ledger
}

func (o *Orchestrator) recordsFor(acct users.Account) usagelog.Store {
	if acct.IsDemo() {
		return o.demoRecords
	}
	return o.records
}

// Predict runs the full proxy state machine for one request. It always
// returns a terminal outcome and always writes exactly one usage-log record,
// including when a later stage panics.
func (o *Orchestrator) Predict(ctx context.Context, acct users.Account, body map[string]any) (out Outcome) {
	start := o.now()
	logged := false

	record := func(success bool, code Code) {
		if logged {
			return
		}
		logged = true
		rec := usagelog.Record{
			ID:             uuid.NewString(),
			UserID:         acct.AccountID(),
			RequestHash:    RequestHash(body),
			Success:        success,
			ResponseTimeMS: o.now().Sub(start).Milliseconds(),
			CreatedAt:      o.now().UTC(),
		}
		if !success {
			rec.ErrorCode = string(code)
		}
		// The caller may already be gone (timeout, disconnect); the row
		// still has to land.
		if err := o.recordsFor(acct).Append(context.WithoutCancel(ctx), rec); err != nil {
			o.log.Error("failed to record prediction attempt", "user_id", acct.AccountID(), "error", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("panic in prediction proxy", "user_id", acct.AccountID(), "panic", fmt.Sprint(r))
			record(false, CodeInternal)
			out = failure(CodeInternal, "An unexpected error occurred", nil)
		}
	}()

	// Validate.
	if err := Validate(body); err != nil {
		var verr *ValidationError
		msg := "Request body must be a JSON object"
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		record(false, CodeValidation)
		return failure(CodeValidation, msg, nil)
	}

	o.log.Info("prediction request", "user_id", acct.AccountID(), "tier", string(acct.TierID()), "request", SanitizeForLog(body))

	// Quota.
	ledger := o.ledgerFor(acct)
	dailyLimit := acct.Limits().PredictionsPerDay
	allowed, err := ledger.CanMakePrediction(ctx, acct.AccountID(), dailyLimit)
	if err != nil {
		o.log.Error("quota check failed", "user_id", acct.AccountID(), "error", err)
		record(false, CodeInternal)
		return failure(CodeInternal, "An unexpected error occurred", nil)
	}
	if !allowed {
		snap, snapErr := ledger.Snapshot(ctx, acct.AccountID(), dailyLimit)
		details := map[string]any{"limit": dailyLimit}
		if snapErr == nil {
			details["used_today"] = snap.Used
		}
		record(false, CodeRateLimit)
		return failure(CodeRateLimit, "Daily prediction limit reached. Upgrade your tier or try again tomorrow.", details)
	}

	// Upstream must be configured before signing or forwarding.
	if !o.upstream.Configured() {
		o.log.Error("upstream prediction service not configured")
		record(false, CodeConfiguration)
		return failure(CodeConfiguration, "Prediction service is not available", nil)
	}

	payload := UpstreamPayload{
		UserID:         acct.AccountID(),
		UserTier:       string(acct.TierID()),
		RequestID:      fmt.Sprintf("req_%d", o.now().UnixMilli()),
		PredictionData: body,
	}

	// Forward and classify.
	status, respBody, err := o.upstream.Predict(ctx, payload)
	elapsed := o.now().Sub(start)
	if err != nil {
		switch {
		case IsSignFailure(err):
			o.log.Error("failed to sign upstream request", "error", err)
			record(false, CodeSigning)
			return failure(CodeSigning, "Failed to prepare request", nil)
		case IsTimeout(err):
			o.log.Error("upstream request timed out", "request_id", payload.RequestID)
			record(false, CodeTimeout)
			return failure(CodeTimeout, "Prediction request timed out. Please try again.", nil)
		default:
			o.log.Error("cannot reach upstream prediction service", "error", err)
			record(false, CodeConnection)
			return failure(CodeConnection, "Prediction service is temporarily unavailable", nil)
		}
	}

	switch {
	case status == http.StatusOK:
		if err := ledger.IncrementUsage(context.WithoutCancel(ctx), acct.AccountID()); err != nil {
			// The prediction was delivered; losing the increment is an
			// accounting gap, not a user-visible failure.
			o.log.Error("failed to increment quota after success", "user_id", acct.AccountID(), "error", err)
		}
		record(true, "")

		result := respBody
		if result == nil {
			result = map[string]any{}
		}
		result["metadata"] = map[string]any{
			"user_tier":                   string(acct.TierID()),
			"response_time_ms":            elapsed.Milliseconds(),
			"request_id":                  payload.RequestID,
			"predictions_remaining_today": o.remaining(ctx, acct, dailyLimit),
		}
		o.log.Info("prediction successful", "user_id", acct.AccountID(), "response_time_ms", elapsed.Milliseconds())
		return Outcome{Status: http.StatusOK, Body: result}

	case status == http.StatusBadRequest:
		// Upstream 4xx messages were written for the requester; relay them.
		msg := "Invalid prediction request"
		var details any
		if respBody != nil {
			if m, ok := respBody["message"].(string); ok && m != "" {
				msg = m
			}
			details = respBody["details"]
		}
		record(false, CodeClient)
		return failure(CodeClient, msg, details)

	case status == http.StatusTooManyRequests:
		record(false, CodePrivateRateLimit)
		return failure(CodePrivateRateLimit, "Prediction service is currently busy. Please try again later.", nil)

	default:
		o.log.Error("upstream prediction error", "status", status, "request_id", payload.RequestID)
		record(false, CodeServer)
		return failure(CodeServer, "Prediction service encountered an error", nil)
	}
}

// remaining resolves the post-increment quota position, -1 when unlimited.
func (o *Orchestrator) remaining(ctx context.Context, acct users.Account, dailyLimit int64) int64 {
	if tiers.IsUnlimited(dailyLimit) {
		return -1
	}
	snap, err := o.ledgerFor(acct).Snapshot(ctx, acct.AccountID(), dailyLimit)
	if err != nil {
		return 0
	}
	return snap.Remaining
}

// Health proxies a lightweight reachability probe to the upstream service.
func (o *Orchestrator) Health(ctx context.Context) Outcome {
	if !o.upstream.Configured() {
		return Outcome{Status: http.StatusServiceUnavailable, Body: map[string]any{
			"status":  "unhealthy",
			"message": "Private API URL not configured",
		}}
	}

	rtt, err := o.upstream.Health(ctx)
	if err != nil {
		var statusErr *HealthStatusError
		if errors.As(err, &statusErr) {
			return Outcome{Status: http.StatusServiceUnavailable, Body: map[string]any{
				"status":         "unhealthy",
				"private_server": "error",
				"status_code":    statusErr.StatusCode,
			}}
		}
		o.log.Error("upstream health check failed", "error", err)
		return Outcome{Status: http.StatusServiceUnavailable, Body: map[string]any{
			"status":         "unhealthy",
			"private_server": "unavailable",
		}}
	}

	return Outcome{Status: http.StatusOK, Body: map[string]any{
		"status":           "healthy",
		"private_server":   "available",
		"response_time_ms": rtt.Milliseconds(),
	}}
}

func failure(code Code, message string, details any) Outcome {
	body := map[string]any{
		"error":   code.WireName(),
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	return Outcome{Status: code.HTTPStatus(), Code: code, Body: body}
}
