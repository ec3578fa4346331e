package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/router"
	"github.com/stormstack/control-plane/pkg/types"
)

func parseMatchID(r *http.Request) (types.ClusterMatchId, error) {
	raw := mux.Vars(r)["id"]
	id, err := types.ParseClusterMatchId(raw)
	if err != nil {
		return types.ClusterMatchId{}, apierrors.Validation("id", "malformed cluster match id")
	}
	return id, nil
}

type createMatchRequest struct {
	Modules       []router.ModuleRef `json:"modules"`
	PreferredNode string             `json:"preferredNode,omitempty"`
	PlayerLimit   int                `json:"playerLimit,omitempty"`
	PlayerID      string             `json:"playerId,omitempty"`
	PlayerName    string             `json:"playerName,omitempty"`
	TokenScopes   []string           `json:"tokenScopes,omitempty"`
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	match, err := s.deps.Router.CreateMatch(r.Context(), router.CreateMatchRequest{
		Modules:              req.Modules,
		PreferredNode:        req.PreferredNode,
		PlayerLimit:          req.PlayerLimit,
		RequestingPlayerID:   req.PlayerID,
		RequestingPlayerName: req.PlayerName,
		TokenScopes:          req.TokenScopes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeCreated(w, "/matches/"+match.ID.String(), match)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	statusFilter := types.MatchStatus(r.URL.Query().Get("status"))

	var (
		list []*types.Match
		err  error
	)
	if statusFilter == "" {
		list, err = s.deps.Router.FindAll(r.Context())
	} else {
		list, err = s.deps.Router.FindByStatus(r.Context(), statusFilter)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	match, err := s.deps.Router.FindById(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (s *Server) handleFinishMatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Router.FinishMatch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	match, err := s.deps.Router.FindById(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type updatePlayerCountRequest struct {
	PlayerCount int `json:"playerCount"`
}

func (s *Server) handleUpdatePlayerCount(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updatePlayerCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Router.UpdatePlayerCount(r.Context(), id, req.PlayerCount); err != nil {
		writeError(w, err)
		return
	}
	match, err := s.deps.Router.FindById(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (s *Server) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Router.DeleteMatch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}
