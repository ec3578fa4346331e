package scheduler

import (
	"context"
	"sort"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/matches"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/types"
)

// ResourceHint optionally narrows node selection beyond plain capacity.
// Zero values mean "no preference" for that dimension.
type ResourceHint struct {
	MinFreeCPUPercent float64
	MinFreeMemory     int64
}

// Scheduler selects a node to place a new match on (§4.E). It holds no
// state of its own; every call reads the node and match registries fresh.
type Scheduler struct {
	nodes   *nodes.Registry
	matches *matches.Registry
}

// NewScheduler constructs a Scheduler over the given registries.
func NewScheduler(nodeRegistry *nodes.Registry, matchRegistry *matches.Registry) *Scheduler {
	return &Scheduler{nodes: nodeRegistry, matches: matchRegistry}
}

type candidate struct {
	node       *types.Node
	active     int
	saturation float64
}

// SelectNode picks a node for a match requiring one free slot. preferredNode
// short-circuits the saturation comparison if it is itself a valid
// candidate; resourceHint is consulted only as a coarse pre-filter, since
// the registry does not track fine-grained resource reservations.
func (s *Scheduler) SelectNode(ctx context.Context, preferredNode string, hint *ResourceHint) (*types.Node, error) {
	candidates, err := s.candidates(ctx, hint)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apierrors.Capacity("no healthy node has spare capacity")
	}

	if preferredNode != "" {
		for _, c := range candidates {
			if c.node.ID == preferredNode {
				return c.node, nil
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].saturation != candidates[j].saturation {
			return candidates[i].saturation < candidates[j].saturation
		}
		return candidates[i].node.ID < candidates[j].node.ID
	})
	return candidates[0].node, nil
}

func (s *Scheduler) candidates(ctx context.Context, hint *ResourceHint) ([]candidate, error) {
	all, err := s.nodes.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]candidate, 0, len(all))
	for _, n := range all {
		if n.Status != types.NodeStatusHealthy {
			continue
		}
		if n.Capacity <= 0 {
			continue
		}
		active, err := s.matches.CountActiveByNodeId(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		if active+1 > n.Capacity {
			continue
		}
		if hint != nil {
			if hint.MinFreeCPUPercent > 0 && (100-n.CPUPercent) < hint.MinFreeCPUPercent {
				continue
			}
			if hint.MinFreeMemory > 0 && n.MemoryBytes > 0 && n.MemoryBytes < hint.MinFreeMemory {
				continue
			}
		}
		out = append(out, candidate{node: n, active: active, saturation: float64(active) / float64(n.Capacity)})
	}
	return out, nil
}

// ClusterSaturation returns sum(active)/sum(capacity) across HEALTHY nodes,
// defined as 1.0 when no HEALTHY nodes exist (a saturated, empty cluster
// reads the same as a full one to the autoscaler).
func (s *Scheduler) ClusterSaturation(ctx context.Context) (float64, error) {
	all, err := s.nodes.List(ctx)
	if err != nil {
		return 0, err
	}

	var totalCapacity, totalActive int
	for _, n := range all {
		if n.Status != types.NodeStatusHealthy {
			continue
		}
		active, err := s.matches.CountActiveByNodeId(ctx, n.ID)
		if err != nil {
			return 0, err
		}
		totalCapacity += n.Capacity
		totalActive += active
	}
	if totalCapacity == 0 {
		return 1.0, nil
	}
	return float64(totalActive) / float64(totalCapacity), nil
}
