package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mirroros/gateway/pkg/auth"
	"github.com/mirroros/gateway/pkg/ratelimit"
	"github.com/mirroros/gateway/pkg/tiers"
	"github.com/mirroros/gateway/pkg/users"
)

// Middleware is a standard wrapping stage of the request pipeline.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in the listed order: the first element sees the
// request first. The pipeline order is fixed at wiring time instead of
// being implied by decorator stacking.
func Chain(h http.Handler, stages ...Middleware) http.Handler {
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	return h
}

// Authenticate validates the bearer token and attaches the account to the
// context. The demo subject resolves to the shared demo account without a
// store lookup; every other subject is reloaded from the user store so tier
// changes and deactivations take effect immediately.
func Authenticate(authn *auth.Authenticator, store users.Store) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				WriteUnauthorized(w, "Missing Authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			claims, err := authn.Validate(parts[1])
			if err != nil {
				WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			var acct users.Account
			if claims.Subject == users.DemoSubject {
				acct = users.DemoAccount{}
			} else {
				u, err := store.ByID(r.Context(), claims.Subject)
				if err != nil {
					WriteUnauthorized(w, "Invalid or expired token")
					return
				}
				if !u.Active {
					WriteUnauthorized(w, "Account is deactivated")
					return
				}
				acct = u
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAccount(r.Context(), acct)))
		})
	}
}

// RequireVerified rejects registered accounts that have not verified their
// email. The demo account is exempt.
func RequireVerified() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, err := auth.GetAccount(r.Context())
			if err != nil {
				WriteUnauthorized(w, "Authentication required")
				return
			}
			if u, ok := acct.(*users.User); ok && !u.Verified {
				WriteError(w, http.StatusForbidden, "verification_required", "Please verify your email address to use this feature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var tierRank = map[tiers.TierID]int{
	tiers.TierFree:       0,
	tiers.TierPro:        1,
	tiers.TierEnterprise: 2,
}

// RequireTier rejects accounts below the minimum subscription tier.
func RequireTier(minimum tiers.TierID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, err := auth.GetAccount(r.Context())
			if err != nil {
				WriteUnauthorized(w, "Authentication required")
				return
			}
			if tierRank[acct.TierID()] < tierRank[minimum] {
				WriteErrorDetails(w, http.StatusForbidden, "tier_required",
					"This feature requires a higher subscription tier",
					map[string]any{"required_tier": string(minimum), "current_tier": string(acct.TierID())})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Throttle enforces the caller's per-minute and per-hour request ceilings
// through the sliding-window limiter. Authenticated callers are keyed by
// user ID with their tier's ceilings; anonymous callers by IP with the
// anonymous ceilings.
func Throttle(limiter *ratelimit.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, limits := throttleKey(r)

			res := limiter.Check(r.Context(), identifier, limits)
			setRateHeaders(w, limits, res)
			if !res.Allowed {
				retryAfter := int(res.RetryAfter.Seconds()) + 1
				WriteTooManyRequests(w, retryAfter,
					"Too many requests. Please slow down.",
					map[string]any{"window": res.Exceeded, "retry_after_seconds": retryAfter})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func throttleKey(r *http.Request) (string, map[string]ratelimit.Limit) {
	if acct, err := auth.GetAccount(r.Context()); err == nil {
		return "user:" + acct.AccountID(), ratelimit.PerTier(acct.Limits())
	}
	return "ip:" + clientIP(r), ratelimit.PerTier(tiers.Anonymous)
}

func setRateHeaders(w http.ResponseWriter, limits map[string]ratelimit.Limit, res ratelimit.Result) {
	minute, ok := limits["minute"]
	if !ok || minute.Max < 0 {
		return
	}
	remaining := minute.Max - res.Counts["minute"]
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(minute.Max))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	reset := time.Now().Add(res.Resets["minute"]).Unix()
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
}

func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return strings.Trim(r.RemoteAddr, "[]")
}
