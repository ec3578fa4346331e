package autoscaler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stormstack/control-plane/pkg/matches"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/scheduler"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stormstack/control-plane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAutoscaler(t *testing.T, cfg Config) (*Autoscaler, *nodes.Registry, *matches.Registry) {
	t.Helper()
	store := statestore.NewMemoryStore()
	nodeRegistry := nodes.NewRegistry(store, 30*time.Second)
	matchRegistry := matches.NewRegistry(store)
	sched := scheduler.NewScheduler(nodeRegistry, matchRegistry)
	return New(cfg, nodeRegistry, sched), nodeRegistry, matchRegistry
}

func seedRunningMatch(t *testing.T, matchRegistry *matches.Registry, nodeID string, i int) {
	t.Helper()
	id := types.ClusterMatchId{NodeID: nodeID, ContainerID: "c", LocalID: fmt.Sprintf("m%d", i)}
	require.NoError(t, matchRegistry.Save(context.Background(), &types.Match{
		ID:          id,
		Status:      types.MatchStatusRunning,
		OwnerNodeID: nodeID,
		CreatedAt:   time.Now(),
	}))
}

// TestScaleUpScenario exercises the spec's S8 scenario: a fleet of 2 HEALTHY
// nodes, capacity 10 each, 18 RUNNING matches -> saturation 0.9 -> SCALE_UP
// to ceil(2*1.5)=3, followed by a cooldown-gated NONE on the next tick.
func TestScaleUpScenario(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	a, nodeRegistry, matchRegistry := newTestAutoscaler(t, cfg)

	_, err := nodeRegistry.Register(ctx, "node-1", "http://node-1", 10)
	require.NoError(t, err)
	_, err = nodeRegistry.Register(ctx, "node-2", "http://node-2", 10)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		seedRunningMatch(t, matchRegistry, "node-1", i)
	}
	for i := 0; i < 9; i++ {
		seedRunningMatch(t, matchRegistry, "node-2", i+9)
	}

	rec, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ScaleActionUp, rec.Action)
	assert.Equal(t, 3, rec.TargetFleetSize)
	assert.InDelta(t, 0.9, rec.Saturation, 0.0001)

	rec2, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ScaleActionNone, rec2.Action)
	assert.Equal(t, "cooldown", rec2.Reason)
}

func TestScaleDownWhenSaturationLow(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinNodes = 1
	a, nodeRegistry, _ := newTestAutoscaler(t, cfg)

	for i := 0; i < 4; i++ {
		_, err := nodeRegistry.Register(ctx, fmt.Sprintf("node-%d", i), "http://node", 10)
		require.NoError(t, err)
	}

	rec, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ScaleActionDown, rec.Action)
	assert.Equal(t, 3, rec.TargetFleetSize)
}

func TestBelowMinimumAlwaysScalesUp(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinNodes = 3
	a, nodeRegistry, _ := newTestAutoscaler(t, cfg)

	_, err := nodeRegistry.Register(ctx, "node-1", "http://node-1", 10)
	require.NoError(t, err)

	rec, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ScaleActionUp, rec.Action)
	assert.Equal(t, 3, rec.TargetFleetSize)
	assert.Equal(t, "below minimum", rec.Reason)
}

func TestTargetAlwaysWithinBounds(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinNodes = 2
	cfg.MaxNodes = 5
	a, nodeRegistry, matchRegistry := newTestAutoscaler(t, cfg)

	for i := 0; i < 5; i++ {
		_, err := nodeRegistry.Register(ctx, fmt.Sprintf("node-%d", i), "http://node", 1)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		seedRunningMatch(t, matchRegistry, fmt.Sprintf("node-%d", i), i)
	}

	rec, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.TargetFleetSize, cfg.MinNodes)
	assert.LessOrEqual(t, rec.TargetFleetSize, cfg.MaxNodes)
}

func TestLastRecommendationReflectsMostRecentTick(t *testing.T) {
	ctx := context.Background()
	a, nodeRegistry, _ := newTestAutoscaler(t, DefaultConfig())
	_, err := nodeRegistry.Register(ctx, "node-1", "http://node-1", 10)
	require.NoError(t, err)

	assert.Equal(t, types.ScaleAction(""), a.LastRecommendation().Action)

	rec, err := a.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec, a.LastRecommendation())
}
