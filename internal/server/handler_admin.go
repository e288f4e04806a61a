package server

import (
	"net/http"

	"github.com/me/docsched/pkg/model"
)

// handleShutdown requests a graceful close: no new dispatch, running agents
// drain, the daemon exits once the system is empty. The request is handed to
// the event loop; this handler returns immediately.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.shutdownFn == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrInternal,
			Message: "shutdown not available",
		})
		return
	}

	s.logger.Info("shutdown requested via api", "request_id", reqID)
	s.shutdownFn()
	respondOK(w, reqID, map[string]string{"result": "shutdown requested"})
}

// handleKill SIGTERMs every live agent process. Their deaths arrive through
// the normal reaping path, so jobs end up FAILED rather than orphaned.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.killFn == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrInternal,
			Message: "kill not available",
		})
		return
	}

	n := s.killFn()
	s.logger.Warn("kill requested via api", "request_id", reqID, "signalled", n)
	respondOK(w, reqID, map[string]int{"signalled": n})
}
