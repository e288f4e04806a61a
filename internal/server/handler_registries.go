package server

import (
	"net/http"

	"github.com/me/docsched/pkg/model"
)

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.hosts.List())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	agents := s.agents.List()
	out := make([]model.AgentInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Info())
	}
	respondOK(w, reqID, out)
}
