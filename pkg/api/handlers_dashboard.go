package api

import (
	"net/http"
	"strconv"

	"github.com/stormstack/control-plane/pkg/types"
)

func queryIntDefault(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleDashboardOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.deps.View.GetOverview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleDashboardNodes(w http.ResponseWriter, r *http.Request) {
	offset := queryIntDefault(r, "offset", 0)
	pageSize := queryIntDefault(r, "pageSize", 20)

	page, err := s.deps.View.ListNodesPage(r.Context(), offset, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDashboardMatches(w http.ResponseWriter, r *http.Request) {
	offset := queryIntDefault(r, "offset", 0)
	pageSize := queryIntDefault(r, "pageSize", 20)
	status := types.MatchStatus(r.URL.Query().Get("status"))

	page, err := s.deps.View.ListMatchesPage(r.Context(), status, offset, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
