package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/events"
	"github.com/stormstack/control-plane/pkg/nodes"
)

type registerNodeRequest struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, err := s.deps.Nodes.Register(r.Context(), req.ID, req.Address, req.Capacity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCreated(w, "/nodes/"+node.ID, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Nodes.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type heartbeatRequest struct {
	MatchCount     int     `json:"matchCount"`
	ContainerCount int     `json:"containerCount"`
	CPUPercent     float64 `json:"cpuPercent"`
	MemoryBytes    int64   `json:"memoryBytes"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, err := s.deps.Nodes.Heartbeat(r.Context(), nodeID, nodes.HeartbeatMetrics{
		MatchCount:     req.MatchCount,
		ContainerCount: req.ContainerCount,
		CPUPercent:     req.CPUPercent,
		MemoryBytes:    req.MemoryBytes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type updateNodeRequest struct {
	Drained *bool `json:"drained"`
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	var req updateNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Drained == nil {
		writeError(w, apierrors.Validation("drained", "must be set to true or false"))
		return
	}

	var err error
	if *req.Drained {
		err = s.deps.Nodes.Drain(r.Context(), nodeID)
	} else {
		err = s.deps.Nodes.Undrain(r.Context(), nodeID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	node, err := s.deps.Nodes.Get(r.Context(), nodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if err := s.deps.Nodes.Delete(r.Context(), nodeID); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Events != nil {
		s.deps.Events.Publish(&events.Event{
			Type:      events.EventNodeRemoved,
			Timestamp: time.Now(),
			Metadata:  map[string]string{"node_id": nodeID},
		})
	}
	writeNoContent(w)
}
