package distributor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stormstack/control-plane/pkg/engineclient"
	"github.com/stormstack/control-plane/pkg/modules"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributeToAllNodesSkipsNodesThatAlreadyHaveModule(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	nodeRegistry := nodes.NewRegistry(store, 30*time.Second)
	moduleRegistry := modules.NewRegistry(store)

	_, err := moduleRegistry.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("bytes"))
	require.NoError(t, err)

	pushed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"present": true}`))
		case r.Method == http.MethodPost:
			pushed = true
		}
	}))
	defer srv.Close()

	_, err = nodeRegistry.Register(ctx, "node-1", srv.URL, 10)
	require.NoError(t, err)

	dist := NewDistributor(nodeRegistry, moduleRegistry, func(addr string) *engineclient.Client {
		return engineclient.New(addr, time.Second, time.Second)
	})

	count, err := dist.DistributeToAllNodes(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, pushed)
}

func TestDistributeToAllNodesPushesToNodesMissingModule(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	nodeRegistry := nodes.NewRegistry(store, 30*time.Second)
	moduleRegistry := modules.NewRegistry(store)

	_, err := moduleRegistry.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("bytes"))
	require.NoError(t, err)

	pushed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"present": false}`))
		case http.MethodPost:
			pushed = true
		}
	}))
	defer srv.Close()

	_, err = nodeRegistry.Register(ctx, "node-1", srv.URL, 10)
	require.NoError(t, err)

	dist := NewDistributor(nodeRegistry, moduleRegistry, func(addr string) *engineclient.Client {
		return engineclient.New(addr, time.Second, time.Second)
	})

	count, err := dist.DistributeToAllNodes(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, pushed)
}

func TestDistributeToAllNodesSkipsDrainingNodes(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	nodeRegistry := nodes.NewRegistry(store, 30*time.Second)
	moduleRegistry := modules.NewRegistry(store)

	_, err := moduleRegistry.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("bytes"))
	require.NoError(t, err)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err = nodeRegistry.Register(ctx, "node-1", srv.URL, 10)
	require.NoError(t, err)
	require.NoError(t, nodeRegistry.Drain(ctx, "node-1"))

	dist := NewDistributor(nodeRegistry, moduleRegistry, func(addr string) *engineclient.Client {
		return engineclient.New(addr, time.Second, time.Second)
	})

	count, err := dist.DistributeToAllNodes(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, called)
}
