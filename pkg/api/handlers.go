package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mirroros/gateway/pkg/auth"
	"github.com/mirroros/gateway/pkg/proxy"
	"github.com/mirroros/gateway/pkg/ratelimit"
)

// maxBodyBytes bounds inbound request bodies well above the largest valid
// prediction request.
const maxBodyBytes = 1 << 20

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustGetAccount(r.Context())

	var body map[string]any
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 || json.Unmarshal(raw, &body) != nil || body == nil {
		WriteError(w, http.StatusBadRequest, string(proxy.CodeValidation), "Request body must be a JSON object")
		return
	}

	out := s.orch.Predict(r.Context(), acct, body)

	// An upstream rejection of a well-formed request is not the caller
	// hammering the gateway; optionally give the throttle event back.
	if out.Code == proxy.CodeClient && s.forgiveClientErrors {
		s.limiter.Forgive(r.Context(), "user:"+acct.AccountID(), ratelimit.PerTier(acct.Limits()))
	}

	s.obs.RecordRequest(r.Context(), "/predict", out.Status, string(out.Code))
	WriteJSON(w, out.Status, out.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := s.orch.Health(r.Context())
	s.obs.RecordRequest(r.Context(), "/predict/health", out.Status, string(out.Code))
	WriteJSON(w, out.Status, out.Body)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustGetAccount(r.Context())

	report, err := s.orch.Usage(r.Context(), acct)
	if err != nil {
		s.log.Error("failed to build usage report", "user_id", acct.AccountID(), "error", err)
		s.obs.RecordRequest(r.Context(), "/predict/usage", http.StatusInternalServerError, string(proxy.CodeInternal))
		WriteError(w, http.StatusInternalServerError, string(proxy.CodeInternal), "An unexpected error occurred")
		return
	}
	s.obs.RecordRequest(r.Context(), "/predict/usage", http.StatusOK, "")
	WriteJSON(w, http.StatusOK, report)
}
