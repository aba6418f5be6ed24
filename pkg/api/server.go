package api

import (
	"log/slog"
	"net/http"

	"github.com/mirroros/gateway/pkg/auth"
	"github.com/mirroros/gateway/pkg/observability"
	"github.com/mirroros/gateway/pkg/proxy"
	"github.com/mirroros/gateway/pkg/ratelimit"
	"github.com/mirroros/gateway/pkg/users"
)

// Server owns the HTTP surface: routes, the middleware pipeline and the
// collaborators each handler needs.
type Server struct {
	orch    *proxy.Orchestrator
	limiter *ratelimit.Limiter
	authn   *auth.Authenticator
	store   users.Store
	edge    *EdgeLimiter
	obs     *observability.Provider
	log     *slog.Logger

	corsOrigins         []string
	forgiveClientErrors bool
}

// Options configures optional server behavior.
type Options struct {
	CORSOrigins []string
	// ForgiveUpstreamClientErrors removes the throttle event recorded for a
	// request when upstream rejects it with a 400.
	ForgiveUpstreamClientErrors bool
	// EdgeRPS and EdgeBurst size the per-IP flood guard.
	EdgeRPS   int
	EdgeBurst int
}

// NewServer wires the HTTP surface.
func NewServer(orch *proxy.Orchestrator, limiter *ratelimit.Limiter, authn *auth.Authenticator,
	store users.Store, obs *observability.Provider, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.EdgeRPS <= 0 {
		opts.EdgeRPS = 50
	}
	if opts.EdgeBurst <= 0 {
		opts.EdgeBurst = 100
	}
	return &Server{
		orch:                orch,
		limiter:             limiter,
		authn:               authn,
		store:               store,
		edge:                NewEdgeLimiter(opts.EdgeRPS, opts.EdgeBurst),
		obs:                 obs,
		log:                 log,
		corsOrigins:         opts.CORSOrigins,
		forgiveClientErrors: opts.ForgiveUpstreamClientErrors,
	}
}

// Handler builds the router. Each route states its pipeline explicitly, in
// execution order.
func (s *Server) Handler() http.Handler {
	edge := []Middleware{
		auth.RequestID,
		auth.CORS(s.corsOrigins),
		s.edge.Middleware,
	}
	authed := append(append([]Middleware{}, edge...),
		Authenticate(s.authn, s.store),
		RequireVerified(),
	)
	throttled := append(append([]Middleware{}, authed...),
		Throttle(s.limiter),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /predict", Chain(http.HandlerFunc(s.handlePredict), throttled...))
	mux.Handle("GET /predict/health", Chain(http.HandlerFunc(s.handleHealth), edge...))
	mux.Handle("GET /predict/usage", Chain(http.HandlerFunc(s.handleUsage), authed...))
	return mux
}
