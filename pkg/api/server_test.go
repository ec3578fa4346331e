package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stormstack/control-plane/pkg/authbroker"
	"github.com/stormstack/control-plane/pkg/autoscaler"
	"github.com/stormstack/control-plane/pkg/clusterview"
	"github.com/stormstack/control-plane/pkg/distributor"
	"github.com/stormstack/control-plane/pkg/engineclient"
	"github.com/stormstack/control-plane/pkg/matches"
	"github.com/stormstack/control-plane/pkg/modules"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/router"
	"github.com/stormstack/control-plane/pkg/scheduler"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stretchr/testify/require"
)

// newTestServer wires the full in-memory stack (mirroring pkg/router and
// pkg/clusterview's test harnesses) behind a Server, plus a fake engine that
// always answers CreateMatch successfully.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := statestore.NewMemoryStore()
	nodeRegistry := nodes.NewRegistry(store, 30*time.Second)
	matchRegistry := matches.NewRegistry(store)
	moduleRegistry := modules.NewRegistry(store)
	sched := scheduler.NewScheduler(nodeRegistry, matchRegistry)

	dial := func(addr string) *engineclient.Client {
		return engineclient.New(addr, time.Second, time.Second)
	}
	dist := distributor.NewDistributor(nodeRegistry, moduleRegistry, dial)
	broker := authbroker.NewBroker(authbroker.Config{ConnectTimeout: time.Second, ReadTimeout: time.Second})

	engineMux := http.NewServeMux()
	engineMux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(engineclient.CreateMatchResponse{HTTPBase: "http://game", WSBase: "ws://game"})
	})
	engineMux.HandleFunc("/modules/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"present": true}`))
	})
	engineMux.HandleFunc("/matches/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	engine := httptest.NewServer(engineMux)
	t.Cleanup(engine.Close)

	_, err := nodeRegistry.Register(context.Background(), "node-1", engine.URL, 10)
	require.NoError(t, err)

	rtr := router.New(nodeRegistry, matchRegistry, sched, dist, broker, dial)
	scaler := autoscaler.New(autoscaler.DefaultConfig(), nodeRegistry, sched)
	view := clusterview.New(nodeRegistry, matchRegistry, scaler)

	deps := Deps{
		Nodes:       nodeRegistry,
		Router:      rtr,
		Modules:     moduleRegistry,
		Distributor: dist,
		View:        view,
	}
	limiter := NewRateLimiter(1000, 1000)
	return NewServer(deps, limiter)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestRegisterAndListNodes(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/nodes", registerNodeRequest{ID: "node-2", Address: "http://node-2", Capacity: 5})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nodesList []map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&nodesList))
	require.Len(t, nodesList, 2)
}

func TestUpdateNodeDrains(t *testing.T) {
	s := newTestServer(t)
	drained := true

	w := doJSON(t, s, http.MethodPatch, "/nodes/node-1", updateNodeRequest{Drained: &drained})
	require.Equal(t, http.StatusOK, w.Code)
	var node map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&node))
	require.Equal(t, true, node["Drained"])
}

func TestDeleteNodeRemovesIt(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodDelete, "/nodes/node-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nodesList []map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&nodesList))
	require.Len(t, nodesList, 0)
}

func TestCreateMatchAndGetItBack(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/matches", createMatchRequest{
		Modules:     []router.ModuleRef{{Name: "lobby", Version: "1.0.0"}},
		PlayerLimit: 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.Equal(t, "RUNNING", created["Status"])

	location := w.Result().Header.Get("Location")
	require.NotEmpty(t, location)

	w = doJSON(t, s, http.MethodGet, location, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateMatchRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/matches", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMatchMissingReturnsNotFound(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/matches/node-1-does-not-exist-does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestModuleUploadListAndDownload(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "lobby"))
	require.NoError(t, mw.WriteField("version", "1.0.0"))
	require.NoError(t, mw.WriteField("description", "lobby module"))
	part, err := mw.CreateFormFile("file", "lobby.wasm")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake module bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/modules", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodGet, "/modules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)

	w = doJSON(t, s, http.MethodGet, "/modules/lobby/1.0.0/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "fake module bytes", w.Body.String())
}

func TestModuleUploadRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "lobby"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/modules", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardOverviewReflectsRegisteredNode(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/dashboard/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&overview))
	status := overview["ClusterStatus"].(map[string]interface{})
	require.Equal(t, float64(1), status["TotalNodes"])
}

func TestDashboardNodesPaginates(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/dashboard/nodes?offset=0&pageSize=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	require.Equal(t, float64(1), page["Total"])
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	store := statestore.NewMemoryStore()
	nodeRegistry := nodes.NewRegistry(store, 30*time.Second)
	matchRegistry := matches.NewRegistry(store)
	moduleRegistry := modules.NewRegistry(store)
	sched := scheduler.NewScheduler(nodeRegistry, matchRegistry)
	dial := func(addr string) *engineclient.Client { return engineclient.New(addr, time.Second, time.Second) }
	dist := distributor.NewDistributor(nodeRegistry, moduleRegistry, dial)
	broker := authbroker.NewBroker(authbroker.Config{ConnectTimeout: time.Second, ReadTimeout: time.Second})
	rtr := router.New(nodeRegistry, matchRegistry, sched, dist, broker, dial)
	scaler := autoscaler.New(autoscaler.DefaultConfig(), nodeRegistry, sched)
	view := clusterview.New(nodeRegistry, matchRegistry, scaler)

	deps := Deps{Nodes: nodeRegistry, Router: rtr, Modules: moduleRegistry, Distributor: dist, View: view}
	s := NewServer(deps, NewRateLimiter(0.0001, 1))

	w := doJSON(t, s, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, s, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
