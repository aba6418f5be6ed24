// Package tiers defines subscription tier definitions for the public API.
// Tiers map to daily prediction quotas and short-horizon request ceilings.
package tiers

import "sync"

// TierID identifies a subscription tier.
type TierID string

const (
	TierFree       TierID = "free"
	TierPro        TierID = "pro"
	TierEnterprise TierID = "enterprise"
)

// Limits defines usage ceilings for a tier.
type Limits struct {
	PredictionsPerDay int64 // -1 = unlimited
	RequestsPerMinute int
	RequestsPerHour   int
}

// Tier represents a subscription tier with its limits and pricing.
type Tier struct {
	ID            TierID
	Name          string
	Description   string
	Limits        Limits
	PricePerMonth int64 // cents, -1 = custom pricing
}

// All available tiers
var (
	Free = Tier{
		ID:          TierFree,
		Name:        "Free",
		Description: "For individuals trying out predictions",
		Limits: Limits{
			PredictionsPerDay: 3,
			RequestsPerMinute: 30,
			RequestsPerHour:   500,
		},
		PricePerMonth: 0,
	}

	Pro = Tier{
		ID:          TierPro,
		Name:        "Pro",
		Description: "For regular users and small teams",
		Limits: Limits{
			PredictionsPerDay: 50,
			RequestsPerMinute: 200,
			RequestsPerHour:   5000,
		},
		PricePerMonth: 1900, // $19
	}

	Enterprise = Tier{
		ID:          TierEnterprise,
		Name:        "Enterprise",
		Description: "For organizations with high prediction volume",
		Limits: Limits{
			PredictionsPerDay: -1, // unlimited
			RequestsPerMinute: 1000,
			RequestsPerHour:   50000,
		},
		PricePerMonth: -1, // custom
	}
)

// Anonymous is the fallback ceiling for unauthenticated clients, keyed by IP.
var Anonymous = Limits{
	PredictionsPerDay: 3,
	RequestsPerMinute: 10,
	RequestsPerHour:   100,
}

// Demo is the ceiling for the shared demo account.
var Demo = Limits{
	PredictionsPerDay: 10,
	RequestsPerMinute: 20,
	RequestsPerHour:   200,
}

var (
	mu  sync.RWMutex
	all = map[TierID]Tier{
		TierFree:       Free,
		TierPro:        Pro,
		TierEnterprise: Enterprise,
	}
)

// Get returns a tier by ID, or nil if not found.
func Get(id TierID) *Tier {
	mu.RLock()
	defer mu.RUnlock()
	tier, ok := all[id]
	if !ok {
		return nil
	}
	return &tier
}

// LimitsFor returns the limits for a tier, falling back to the free tier for
// unknown IDs (matching how unknown tiers are treated at the API edge).
func LimitsFor(id TierID) Limits {
	if t := Get(id); t != nil {
		return t.Limits
	}
	return Free.Limits
}

// Override replaces the limits of a known tier. Used by the optional limits
// profile loaded at startup; not intended for use after serving begins.
func Override(id TierID, limits Limits) bool {
	mu.Lock()
	defer mu.Unlock()
	tier, ok := all[id]
	if !ok {
		return false
	}
	tier.Limits = limits
	all[id] = tier
	return true
}

// IsUnlimited checks if a limit is unlimited (-1).
func IsUnlimited(limit int64) bool {
	return limit < 0
}
