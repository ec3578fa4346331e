package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stormstack/control-plane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(ttl time.Duration) *Registry {
	return NewRegistry(statestore.NewMemoryStore(), ttl)
}

func TestRegisterAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(30 * time.Second)

	node, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusHealthy, node.Status)

	updated, err := reg.Heartbeat(ctx, "node-1", HeartbeatMetrics{MatchCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MatchCount)
}

func TestRegisterRejectsAddressChange(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(30 * time.Second)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)

	_, err = reg.Register(ctx, "node-1", "http://different:9999", 10)
	require.Error(t, err)
	se := apierrors.As(err)
	require.NotNil(t, se)
	assert.Equal(t, apierrors.CodeAlreadyExists, se.Code)
}

func TestHeartbeatRequiresRegistration(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(30 * time.Second)

	_, err := reg.Heartbeat(ctx, "ghost", HeartbeatMetrics{})
	require.Error(t, err)
	se := apierrors.As(err)
	require.NotNil(t, se)
	assert.Equal(t, apierrors.CodeNotRegistered, se.Code)
}

func TestListDerivesUnhealthyAfterTTL(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(10 * time.Millisecond)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	nodes, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, types.NodeStatusUnhealthy, nodes[0].Status)
}

func TestDrainAndUndrain(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(30 * time.Second)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)

	require.NoError(t, reg.Drain(ctx, "node-1"))
	node, err := reg.Get(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusDraining, node.Status)

	require.NoError(t, reg.Undrain(ctx, "node-1"))
	node, err = reg.Get(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusHealthy, node.Status)
}

func TestDrainOnUnhealthyIsNoOp(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(10 * time.Millisecond)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, reg.Drain(ctx, "node-1"))
	node, err := reg.Get(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusUnhealthy, node.Status)
}

func TestDeleteRemovesNode(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(30 * time.Second)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)
	require.NoError(t, reg.Delete(ctx, "node-1"))

	_, err = reg.Get(ctx, "node-1")
	require.Error(t, err)
	se := apierrors.As(err)
	require.NotNil(t, se)
	assert.Equal(t, apierrors.CodeNotFound, se.Code)
}
