// Package nodes implements the Node Registry (§4.B): registration,
// heartbeats, listing with derived status, drain/undrain, and deletion.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/metrics"
	"github.com/stormstack/control-plane/pkg/resilience"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stormstack/control-plane/pkg/types"
)

const keyPrefix = "node:"

func nodeKey(id string) string {
	return keyPrefix + id
}

// record is the on-disk shape; Status is never stored, only derived at read
// time from the TTL and Drained flag per §4.B's status derivation rule.
type record struct {
	ID             string
	Address        string
	Capacity       int
	MatchCount     int
	ContainerCount int
	CPUPercent     float64
	MemoryBytes    int64
	Drained        bool
	LastHeartbeat  time.Time
	CreatedAt      time.Time
}

// defaultGraceFactor is used when NewRegistry is called without an explicit
// grace period (every call site except cmd/controlplane, which wires
// Config.NodeGraceFactor instead). §3 only names "a grace factor of TTL"
// without pinning a number, so 3x is this implementation's choice.
const defaultGraceFactor = 3

// Registry is the Node Registry component.
type Registry struct {
	store    statestore.Store
	ttl      time.Duration
	grace    time.Duration
	retryCfg resilience.RetryConfig
}

// NewRegistry constructs a Registry against store with the given node TTL
// (NODE_TTL_SECONDS, default 30s per §3) and a default grace period of
// defaultGraceFactor*ttl. Use NewRegistryWithGrace to set the grace period
// explicitly.
func NewRegistry(store statestore.Store, ttl time.Duration) *Registry {
	return NewRegistryWithGrace(store, ttl, ttl*defaultGraceFactor)
}

// NewRegistryWithGrace constructs a Registry with an explicit grace period:
// the duration since the last heartbeat after which a node is physically
// removed, rather than just demoted to UNHEALTHY (§3). grace must be >= ttl
// for the two states to be observable in order.
func NewRegistryWithGrace(store statestore.Store, ttl, grace time.Duration) *Registry {
	return &Registry{store: store, ttl: ttl, grace: grace, retryCfg: resilience.DefaultRetryConfig()}
}

// HeartbeatMetrics is the payload a node reports on each heartbeat.
type HeartbeatMetrics struct {
	MatchCount     int
	ContainerCount int
	CPUPercent     float64
	MemoryBytes    int64
}

func (r *Registry) withRetry(ctx context.Context, op string, fn func() error) error {
	timer := metrics.NewTimer()
	err := resilience.Retry(ctx, r.retryCfg, fn)
	timer.ObserveDurationVec(metrics.StoreOperationDuration, op)
	if err != nil {
		return apierrors.StoreUnavailable(fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Register performs a CAS-backed registration (§4.B): fails with
// ALREADY_EXISTS if the node-id is already registered with a different
// address (identity theft prevention), otherwise writes a fresh HEALTHY node.
func (r *Registry) Register(ctx context.Context, nodeID, address string, capacity int) (*types.Node, error) {
	if nodeID == "" {
		return nil, apierrors.Validation("nodeId", "must not be empty")
	}

	existingRaw, getErr := r.store.Get(ctx, nodeKey(nodeID))
	if getErr == nil {
		var existing record
		if err := json.Unmarshal(existingRaw, &existing); err == nil && existing.Address != address {
			return nil, apierrors.AlreadyExists("node", nodeID)
		}
	}

	rec := record{
		ID:            nodeID,
		Address:       address,
		Capacity:      capacity,
		LastHeartbeat: time.Now(),
		CreatedAt:     time.Now(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, apierrors.Internal("failed to marshal node", err)
	}

	err = r.withRetry(ctx, "node_register", func() error {
		// The store's own expiry is the grace period (§3), not the soft
		// liveness TTL: a node must still be readable as UNHEALTHY between
		// the two, which List/Get derive from LastHeartbeat directly
		// rather than from the store's physical key lifetime.
		putErr := r.store.PutIfAbsent(ctx, nodeKey(nodeID), payload, r.grace)
		if putErr == statestore.ErrAlreadyExists {
			// same address re-registering: treat as a TTL refresh
			return r.store.PutWithTTL(ctx, nodeKey(nodeID), payload, r.grace)
		}
		return putErr
	})
	if err != nil {
		return nil, err
	}

	log.WithNodeID(nodeID).Info().Str("address", address).Int("capacity", capacity).Msg("node registered")
	return toNode(rec, false), nil
}

// Heartbeat refreshes the node's TTL and metrics (§4.B); fails with
// NOT_REGISTERED if the node is absent so the caller knows to re-register.
func (r *Registry) Heartbeat(ctx context.Context, nodeID string, metricsIn HeartbeatMetrics) (*types.Node, error) {
	raw, err := r.store.Get(ctx, nodeKey(nodeID))
	if err == statestore.ErrNotFound {
		return nil, apierrors.NotRegistered(nodeID)
	}
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apierrors.Internal("failed to unmarshal node", err)
	}

	rec.MatchCount = metricsIn.MatchCount
	rec.ContainerCount = metricsIn.ContainerCount
	rec.CPUPercent = metricsIn.CPUPercent
	rec.MemoryBytes = metricsIn.MemoryBytes
	rec.LastHeartbeat = time.Now()

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, apierrors.Internal("failed to marshal node", err)
	}

	err = r.withRetry(ctx, "node_heartbeat", func() error {
		return r.store.PutWithTTL(ctx, nodeKey(nodeID), payload, r.grace)
	})
	if err != nil {
		return nil, err
	}

	return toNode(rec, false), nil
}

// List returns every registered node with TTL-expired entries mapped to
// UNHEALTHY, sorted by id for deterministic pagination.
func (r *Registry) List(ctx context.Context) ([]*types.Node, error) {
	entries, err := r.store.ListByPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	nodes := make([]*types.Node, 0, len(entries))
	for _, raw := range entries {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		nodes = append(nodes, toNode(rec, r.ttlExpired(rec)))
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// Get returns a single node by id with derived status.
func (r *Registry) Get(ctx context.Context, nodeID string) (*types.Node, error) {
	raw, err := r.store.Get(ctx, nodeKey(nodeID))
	if err == statestore.ErrNotFound {
		return nil, apierrors.NotFound("node", nodeID)
	}
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apierrors.Internal("failed to unmarshal node", err)
	}
	return toNode(rec, r.ttlExpired(rec)), nil
}

// ttlExpired reports whether rec's heartbeat is older than the TTL. This is
// a wall-clock comparison against LastHeartbeat, deliberately independent of
// the store's own physical key expiry (which uses the longer grace period,
// §3) — otherwise a TTL-expired-but-not-yet-grace-expired node would vanish
// from List/Get entirely instead of surfacing as UNHEALTHY.
func (r *Registry) ttlExpired(rec record) bool {
	return time.Since(rec.LastHeartbeat) > r.ttl
}

// Drain flips a node to DRAINING; a no-op if the node is currently UNHEALTHY
// (rejecting the terminal transition per §4.B).
func (r *Registry) Drain(ctx context.Context, nodeID string) error {
	return r.setDrained(ctx, nodeID, true)
}

// Undrain flips a node back to HEALTHY.
func (r *Registry) Undrain(ctx context.Context, nodeID string) error {
	return r.setDrained(ctx, nodeID, false)
}

func (r *Registry) setDrained(ctx context.Context, nodeID string, drained bool) error {
	node, err := r.Get(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.Status == types.NodeStatusUnhealthy {
		return nil // drain/undrain on an UNHEALTHY node is a no-op
	}

	raw, err := r.store.Get(ctx, nodeKey(nodeID))
	if err != nil {
		return apierrors.StoreUnavailable(err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return apierrors.Internal("failed to unmarshal node", err)
	}
	rec.Drained = drained
	payload, err := json.Marshal(rec)
	if err != nil {
		return apierrors.Internal("failed to marshal node", err)
	}

	remaining, ttlErr := r.store.RemainingTTL(ctx, nodeKey(nodeID))
	ttl := r.grace
	if ttlErr == nil && remaining > 0 {
		ttl = remaining
	}

	return r.withRetry(ctx, "node_drain", func() error {
		return r.store.PutWithTTL(ctx, nodeKey(nodeID), payload, ttl)
	})
}

// Delete removes the node entry; callers (the match router's orphan sweep)
// must independently clean up the node's matches.
func (r *Registry) Delete(ctx context.Context, nodeID string) error {
	return r.withRetry(ctx, "node_delete", func() error {
		return r.store.Delete(ctx, nodeKey(nodeID))
	})
}

func toNode(rec record, ttlExpired bool) *types.Node {
	return &types.Node{
		ID:             rec.ID,
		Address:        rec.Address,
		Capacity:       rec.Capacity,
		MatchCount:     rec.MatchCount,
		ContainerCount: rec.ContainerCount,
		CPUPercent:     rec.CPUPercent,
		MemoryBytes:    rec.MemoryBytes,
		Status:         types.DeriveNodeStatus(ttlExpired, rec.Drained),
		Drained:        rec.Drained,
		LastHeartbeat:  rec.LastHeartbeat,
		CreatedAt:      rec.CreatedAt,
	}
}
