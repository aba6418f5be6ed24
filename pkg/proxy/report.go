package proxy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mirroros/gateway/pkg/users"
)

// UsageLimits is the tier ceiling section of the usage report.
type UsageLimits struct {
	PredictionsPerDay int64 `json:"predictions_per_day"`
	RequestsPerMinute int   `json:"requests_per_minute"`
	RequestsPerHour   int   `json:"requests_per_hour"`
}

// UsageStats is the counters section of the usage report.
type UsageStats struct {
	PredictionsUsedToday      int64   `json:"predictions_used_today"`
	PredictionsRemainingToday int64   `json:"predictions_remaining_today"`
	TotalPredictions          int64   `json:"total_predictions"`
	SuccessfulPredictions     int64   `json:"successful_predictions"`
	SuccessRatePercent        float64 `json:"success_rate_percent"`
	CanMakePrediction         bool    `json:"can_make_prediction"`
}

// RecentRequest is one usage-log entry as exposed to the user.
type RecentRequest struct {
	RequestHash    string    `json:"request_hash"`
	Success        bool      `json:"success"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageReport is the payload of GET /predict/usage.
type UsageReport struct {
	Tier           string          `json:"tier"`
	Limits         UsageLimits     `json:"limits"`
	Usage          UsageStats      `json:"usage"`
	RecentRequests []RecentRequest `json:"recent_requests"`
}

// Usage builds the read-only usage report for an account.
func (o *Orchestrator) Usage(ctx context.Context, acct users.Account) (*UsageReport, error) {
	limits := acct.Limits()
	ledger := o.ledgerFor(acct)
	records := o.recordsFor(acct)

	snap, err := ledger.Snapshot(ctx, acct.AccountID(), limits.PredictionsPerDay)
	if err != nil {
		return nil, fmt.Errorf("proxy: usage snapshot: %w", err)
	}

	total, successful, err := records.Totals(ctx, acct.AccountID())
	if err != nil {
		return nil, fmt.Errorf("proxy: usage totals: %w", err)
	}

	recent, err := records.Recent(ctx, acct.AccountID(), 10)
	if err != nil {
		return nil, fmt.Errorf("proxy: usage recent: %w", err)
	}

	canPredict, err := ledger.CanMakePrediction(ctx, acct.AccountID(), limits.PredictionsPerDay)
	if err != nil {
		return nil, fmt.Errorf("proxy: usage quota: %w", err)
	}

	report := &UsageReport{
		Tier: string(acct.TierID()),
		Limits: UsageLimits{
			PredictionsPerDay: limits.PredictionsPerDay,
			RequestsPerMinute: limits.RequestsPerMinute,
			RequestsPerHour:   limits.RequestsPerHour,
		},
		Usage: UsageStats{
			PredictionsUsedToday:      snap.Used,
			PredictionsRemainingToday: snap.Remaining,
			TotalPredictions:          total,
			SuccessfulPredictions:     successful,
			SuccessRatePercent:        successRate(total, successful),
			CanMakePrediction:         canPredict,
		},
		RecentRequests: make([]RecentRequest, 0, len(recent)),
	}
	for _, rec := range recent {
		report.RecentRequests = append(report.RecentRequests, RecentRequest{
			RequestHash:    rec.RequestHash,
			Success:        rec.Success,
			ErrorCode:      rec.ErrorCode,
			ResponseTimeMS: rec.ResponseTimeMS,
			CreatedAt:      rec.CreatedAt,
		})
	}
	return report, nil
}

// successRate is successful/total as a percentage rounded to one decimal,
// 0 when no requests exist.
func successRate(total, successful int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(successful)/float64(total)*1000) / 10
}
