// Package matches implements the Match Registry (§4.C): CRUD over Match
// entities plus the by-node, by-status and active-count queries used by the
// router, the orphan sweeper and the scheduler's saturation view.
package matches

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stormstack/control-plane/pkg/types"
)

const matchPrefix = "match:"

func matchKey(id types.ClusterMatchId) string {
	return matchPrefix + id.String()
}

// record is the JSON-serialized shape of a Match.
type record struct {
	NodeID       string
	ContainerID  string
	LocalID      string
	Status       types.MatchStatus
	Modules      []string
	CreatedAt    time.Time
	PlayerCount  int
	PlayerLimit  int
	OwnerNodeID  string
	HTTPBase     string
	WSBase       string
	ErrorReason  string
	MatchToken   string
	TokenExpires time.Time
}

// Registry is the Match Registry component.
type Registry struct {
	store statestore.Store
}

// NewRegistry constructs a Registry against store.
func NewRegistry(store statestore.Store) *Registry {
	return &Registry{store: store}
}

func toRecord(m *types.Match) record {
	rec := record{
		NodeID:      m.ID.NodeID,
		ContainerID: m.ID.ContainerID,
		LocalID:     m.ID.LocalID,
		Status:      m.Status,
		Modules:     m.Modules,
		CreatedAt:   m.CreatedAt,
		PlayerCount: m.PlayerCount,
		PlayerLimit: m.PlayerLimit,
		OwnerNodeID: m.OwnerNodeID,
		ErrorReason: m.ErrorReason,
		MatchToken:  m.MatchToken,
		TokenExpires: m.TokenExpires,
	}
	if m.Endpoints != nil {
		rec.HTTPBase = m.Endpoints.HTTPBase
		rec.WSBase = m.Endpoints.WSBase
	}
	return rec
}

func toMatch(rec record) *types.Match {
	m := &types.Match{
		ID:           types.ClusterMatchId{NodeID: rec.NodeID, ContainerID: rec.ContainerID, LocalID: rec.LocalID},
		Status:       rec.Status,
		Modules:      rec.Modules,
		CreatedAt:    rec.CreatedAt,
		PlayerCount:  rec.PlayerCount,
		PlayerLimit:  rec.PlayerLimit,
		OwnerNodeID:  rec.OwnerNodeID,
		ErrorReason:  rec.ErrorReason,
		MatchToken:   rec.MatchToken,
		TokenExpires: rec.TokenExpires,
	}
	if rec.HTTPBase != "" || rec.WSBase != "" {
		m.Endpoints = &types.MatchEndpoints{HTTPBase: rec.HTTPBase, WSBase: rec.WSBase}
	}
	return m
}

// Save writes (or overwrites) a Match row.
func (r *Registry) Save(ctx context.Context, m *types.Match) error {
	payload, err := json.Marshal(toRecord(m))
	if err != nil {
		return apierrors.Internal("failed to marshal match", err)
	}
	if err := r.store.Put(ctx, matchKey(m.ID), payload); err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// FindById returns a single match, or NotFound.
func (r *Registry) FindById(ctx context.Context, id types.ClusterMatchId) (*types.Match, error) {
	raw, err := r.store.Get(ctx, matchKey(id))
	if err == statestore.ErrNotFound {
		return nil, apierrors.NotFound("match", id.String())
	}
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apierrors.Internal("failed to unmarshal match", err)
	}
	return toMatch(rec), nil
}

func (r *Registry) all(ctx context.Context) ([]*types.Match, error) {
	entries, err := r.store.ListByPrefix(ctx, matchPrefix)
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}
	out := make([]*types.Match, 0, len(entries))
	for _, raw := range entries {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, toMatch(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// FindAll returns every match.
func (r *Registry) FindAll(ctx context.Context) ([]*types.Match, error) {
	return r.all(ctx)
}

// FindByNodeId returns every match owned by nodeID.
func (r *Registry) FindByNodeId(ctx context.Context, nodeID string) ([]*types.Match, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Match, 0)
	for _, m := range all {
		if m.OwnerNodeID == nodeID {
			out = append(out, m)
		}
	}
	return out, nil
}

// FindByStatus returns every match in the given status.
func (r *Registry) FindByStatus(ctx context.Context, status types.MatchStatus) ([]*types.Match, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Match, 0)
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

// DeleteById removes a match; deleting an unknown id is a no-op internally.
func (r *Registry) DeleteById(ctx context.Context, id types.ClusterMatchId) error {
	if err := r.store.Delete(ctx, matchKey(id)); err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// DeleteByNodeId removes every match owned by nodeID. Per the Open Question
// in §9, this is implemented best-effort (iterate and delete) rather than a
// single atomic operation; it is idempotent, so a retried sweep converges to
// the same end state, which is the property the spec actually requires.
func (r *Registry) DeleteByNodeId(ctx context.Context, nodeID string) error {
	owned, err := r.FindByNodeId(ctx, nodeID)
	if err != nil {
		return err
	}
	for _, m := range owned {
		if err := r.DeleteById(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// CountActive returns the number of matches in CREATING or RUNNING.
func (r *Registry) CountActive(ctx context.Context) (int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range all {
		if m.Status == types.MatchStatusCreating || m.Status == types.MatchStatusRunning {
			count++
		}
	}
	return count, nil
}

// CountActiveByNodeId returns the number of active (CREATING/RUNNING)
// matches owned by nodeID, used by the scheduler's saturation scoring.
func (r *Registry) CountActiveByNodeId(ctx context.Context, nodeID string) (int, error) {
	owned, err := r.FindByNodeId(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range owned {
		if m.Status == types.MatchStatusCreating || m.Status == types.MatchStatusRunning {
			count++
		}
	}
	return count, nil
}
