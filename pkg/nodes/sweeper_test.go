package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stormstack/control-plane/pkg/events"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stormstack/control-plane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceLeavesNodeUntilGraceElapses(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistryWithGrace(statestore.NewMemoryStore(), 10*time.Millisecond, 40*time.Millisecond)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	swept, err := reg.SweepOnce(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, swept, "grace period has not elapsed yet")

	node, err := reg.Get(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusUnhealthy, node.Status)
}

func TestSweepOnceDeletesAndPublishesAfterGrace(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistryWithGrace(statestore.NewMemoryStore(), 10*time.Millisecond, 20*time.Millisecond)

	_, err := reg.Register(ctx, "node-1", "http://n1:8080", 10)
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	time.Sleep(30 * time.Millisecond)
	swept, err := reg.SweepOnce(ctx, broker)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1"}, swept)

	_, err = reg.Get(ctx, "node-1")
	assert.Error(t, err)

	select {
	case event := <-sub:
		assert.Equal(t, events.EventNodeRemoved, event.Type)
		assert.Equal(t, "node-1", event.Metadata["node_id"])
	case <-time.After(time.Second):
		t.Fatal("expected EventNodeRemoved to be published")
	}
}

func TestRunGraceSweeperStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewRegistryWithGrace(statestore.NewMemoryStore(), 10*time.Millisecond, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		reg.RunGraceSweeper(ctx, nil, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunGraceSweeper to return after context cancellation")
	}
}
