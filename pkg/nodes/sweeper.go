package nodes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/events"
	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/metrics"
)

// SweepOnce finds every node whose heartbeat age exceeds the grace period
// (§3: "removed when absent longer than a grace factor of TTL"), deletes
// it, and publishes an EventNodeRemoved for each so the match router's
// orphan sweeper (§4.F) can transition its matches to ERROR. broker may be
// nil, in which case sweeping still happens but nothing is notified.
// Returns the ids swept.
func (r *Registry) SweepOnce(ctx context.Context, broker *events.Broker) ([]string, error) {
	entries, err := r.store.ListByPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	var swept []string
	for key, raw := range entries {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if time.Since(rec.LastHeartbeat) <= r.grace {
			continue
		}

		if err := r.store.Delete(ctx, key); err != nil {
			log.WithNodeID(rec.ID).Error().Err(err).Msg("failed to delete grace-expired node")
			continue
		}
		metrics.NodesGraceSweptTotal.Inc()
		swept = append(swept, rec.ID)

		if broker != nil {
			broker.Publish(&events.Event{
				Type:     events.EventNodeRemoved,
				Metadata: map[string]string{"node_id": rec.ID},
			})
		}
	}
	return swept, nil
}

// RunGraceSweeper runs SweepOnce on a fixed interval until ctx is cancelled.
// Meant to run in its own goroutine, the same Start/ticker/stop shape as the
// autoscaler's and match router's background loops — cmd/controlplane's
// bootstrap starts all three so each periodic task gets its own worker per
// §5. Grounded on the teacher's pkg/reconciler node-down detection loop,
// generalized from flipping node status in place to physically removing the
// node and notifying the rest of the cluster.
func (r *Registry) RunGraceSweeper(ctx context.Context, broker *events.Broker, interval time.Duration) {
	logger := log.WithComponent("nodes")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Dur("grace", r.grace).Msg("node grace sweeper started")

	for {
		select {
		case <-ticker.C:
			swept, err := r.SweepOnce(ctx, broker)
			if err != nil {
				logger.Error().Err(err).Msg("node grace sweep failed")
				continue
			}
			for _, id := range swept {
				logger.Info().Str("node_id", id).Msg("node removed after grace period elapsed")
			}
		case <-ctx.Done():
			return
		}
	}
}
