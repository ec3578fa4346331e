// Package distributor implements the Module Distributor (§4.G): pushing a
// module artifact out to the engines running on cluster nodes, skipping
// ones that already report having it. Grounded on the teacher's
// pkg/deploy/deploy.go batching idiom (iterate targets, log and continue
// past individual failures rather than aborting the whole rollout).
package distributor

import (
	"context"

	"github.com/stormstack/control-plane/pkg/engineclient"
	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/metrics"
	"github.com/stormstack/control-plane/pkg/modules"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/types"
)

// EngineDialer returns an engine client for a node's address. Kept as a
// function rather than a fixed map so callers can share connection pooling.
type EngineDialer func(address string) *engineclient.Client

// Distributor pushes modules to node engines.
type Distributor struct {
	nodes   *nodes.Registry
	modules *modules.Registry
	dial    EngineDialer
}

// NewDistributor constructs a Distributor.
func NewDistributor(nodeRegistry *nodes.Registry, moduleRegistry *modules.Registry, dial EngineDialer) *Distributor {
	return &Distributor{nodes: nodeRegistry, modules: moduleRegistry, dial: dial}
}

// DistributeToAllNodes pushes a module version to every node that doesn't
// already have it, returning the number of nodes it was actually sent to.
// DRAINING nodes are skipped per §9's Open Question — there is no value in
// priming a node that is about to stop accepting matches.
func (d *Distributor) DistributeToAllNodes(ctx context.Context, name, version string) (int, error) {
	meta, err := d.modules.FindByNameAndVersion(ctx, name, version)
	if err != nil {
		return 0, err
	}
	data, err := d.modules.Open(ctx, name, version)
	if err != nil {
		return 0, err
	}

	allNodes, err := d.nodes.List(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, n := range allNodes {
		if n.Status == types.NodeStatusDraining || n.Status == types.NodeStatusUnhealthy {
			continue
		}
		if d.pushToNode(ctx, n, meta, data) {
			count++
		}
	}
	return count, nil
}

// DistributeToNode pushes a module version to a single named node,
// regardless of its drain state (an operator explicitly targeting a node
// is assumed to know what they're doing).
func (d *Distributor) DistributeToNode(ctx context.Context, name, version, nodeID string) error {
	meta, err := d.modules.FindByNameAndVersion(ctx, name, version)
	if err != nil {
		return err
	}
	data, err := d.modules.Open(ctx, name, version)
	if err != nil {
		return err
	}
	n, err := d.nodes.Get(ctx, nodeID)
	if err != nil {
		return err
	}
	d.pushToNode(ctx, n, meta, data)
	return nil
}

func (d *Distributor) pushToNode(ctx context.Context, n *types.Node, meta *types.ModuleMetadata, data []byte) bool {
	client := d.dial(n.Address)

	logger := log.WithModule(meta.Name, meta.Version)

	has, err := client.HasModule(ctx, meta.ContentHash)
	if err != nil {
		logger.Warn().Err(err).Str("node_id", n.ID).Msg("failed to query module presence, skipping node")
		metrics.ModuleDistributionFailuresTotal.WithLabelValues(n.ID).Inc()
		return false
	}
	if has {
		return false
	}

	if err := client.DistributeModule(ctx, meta.Name, meta.Version, meta.ContentHash, data); err != nil {
		logger.Warn().Err(err).Str("node_id", n.ID).Msg("module push failed, continuing with remaining nodes")
		metrics.ModuleDistributionFailuresTotal.WithLabelValues(n.ID).Inc()
		return false
	}
	return true
}
