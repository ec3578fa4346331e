// Package router implements the Match Router (§4.F): the component that
// composes the scheduler, match registry, auth broker, module distributor
// and engine client into the createMatch/finishMatch/deleteMatch state
// machine, plus the orphan sweep that reacts to node removal. Grounded on
// the teacher's pkg/reconciler sweep-loop idiom and pkg/deploy's
// orchestration shape, generalized from container reconciliation to match
// lifecycle management.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/authbroker"
	"github.com/stormstack/control-plane/pkg/distributor"
	"github.com/stormstack/control-plane/pkg/events"
	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/matches"
	"github.com/stormstack/control-plane/pkg/metrics"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/scheduler"
	"github.com/stormstack/control-plane/pkg/types"
)

// ModuleRef names a module version a match requires.
type ModuleRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CreateMatchRequest is the router's createMatch input (§4.F).
type CreateMatchRequest struct {
	Modules       []ModuleRef
	PreferredNode string
	ResourceHint  *scheduler.ResourceHint
	PlayerLimit   int

	// RequestingPlayerID/Name/Scopes, if set, trigger an auth broker call
	// once the match is RUNNING. A failure here never fails match creation.
	RequestingPlayerID   string
	RequestingPlayerName string
	TokenScopes          []string
}

// Router is the Match Router component.
type Router struct {
	nodes       *nodes.Registry
	matches     *matches.Registry
	scheduler   *scheduler.Scheduler
	distributor *distributor.Distributor
	authBroker  *authbroker.Broker
	dial        distributor.EngineDialer
}

// New constructs a Router.
func New(
	nodeRegistry *nodes.Registry,
	matchRegistry *matches.Registry,
	sched *scheduler.Scheduler,
	dist *distributor.Distributor,
	broker *authbroker.Broker,
	dial distributor.EngineDialer,
) *Router {
	return &Router{
		nodes:       nodeRegistry,
		matches:     matchRegistry,
		scheduler:   sched,
		distributor: dist,
		authBroker:  broker,
		dial:        dial,
	}
}

// CreateMatch implements §4.F's createMatch operation end to end. It always
// returns a *types.Match once the node selection step succeeds; a failure
// during engine creation lands the match in ERROR rather than returning an
// error, so the caller can still observe what happened.
func (r *Router) CreateMatch(ctx context.Context, req CreateMatchRequest) (*types.Match, error) {
	node, err := r.scheduler.SelectNode(ctx, req.PreferredNode, req.ResourceHint)
	if err != nil {
		return nil, err
	}

	moduleNames := make([]string, 0, len(req.Modules))
	for _, m := range req.Modules {
		moduleNames = append(moduleNames, m.Name)
	}

	// Hyphens are stripped from the generated parts: ParseClusterMatchId
	// splits on the last two hyphens, so only NodeID may contain them.
	id := types.ClusterMatchId{
		NodeID:      node.ID,
		ContainerID: strings.ReplaceAll(uuid.New().String(), "-", ""),
		LocalID:     strings.ReplaceAll(uuid.New().String(), "-", ""),
	}
	match := &types.Match{
		ID:          id,
		Status:      types.MatchStatusCreating,
		Modules:     moduleNames,
		CreatedAt:   time.Now(),
		PlayerLimit: req.PlayerLimit,
		OwnerNodeID: node.ID,
	}
	if err := r.matches.Save(ctx, match); err != nil {
		return nil, err
	}

	logger := log.WithMatchID(id.String())

	for _, m := range req.Modules {
		if err := r.distributor.DistributeToNode(ctx, m.Name, m.Version, node.ID); err != nil {
			logger.Warn().Err(err).Str("module", m.Name).Msg("module ensure failed before match creation, engine call may fail")
		}
	}

	client := r.dial(node.Address)
	resp, err := client.CreateMatch(ctx, id.ContainerID, moduleNames)
	if err != nil {
		match.Status = types.MatchStatusError
		match.ErrorReason = err.Error()
		if saveErr := r.matches.Save(ctx, match); saveErr != nil {
			return nil, saveErr
		}
		metrics.MatchesErroredTotal.Inc()
		logger.Error().Err(err).Msg("engine createMatch failed")
		return match, nil
	}

	match.Status = types.MatchStatusRunning
	match.Endpoints = &types.MatchEndpoints{HTTPBase: resp.HTTPBase, WSBase: resp.WSBase}

	if req.RequestingPlayerID != "" {
		result := r.authBroker.IssueMatchToken(ctx, id.String(), id.ContainerID, req.RequestingPlayerID, req.RequestingPlayerName, req.TokenScopes)
		if result.Success != nil {
			match.MatchToken = result.Success.Token
			match.TokenExpires = result.Success.ExpiresAt
		} else if result.Failure != nil {
			logger.Warn().Int("status", result.Failure.HTTPStatus).Str("message", result.Failure.Message).Msg("match token request failed, proceeding without a token")
			metrics.AuthBrokerFailuresTotal.Inc()
		}
	}

	if err := r.matches.Save(ctx, match); err != nil {
		return nil, err
	}
	metrics.MatchesCreatedTotal.Inc()
	return match, nil
}

// FindById is a pure read delegating to the match registry.
func (r *Router) FindById(ctx context.Context, id types.ClusterMatchId) (*types.Match, error) {
	return r.matches.FindById(ctx, id)
}

// FindAll is a pure read delegating to the match registry.
func (r *Router) FindAll(ctx context.Context) ([]*types.Match, error) {
	return r.matches.FindAll(ctx)
}

// FindByStatus is a pure read delegating to the match registry.
func (r *Router) FindByStatus(ctx context.Context, status types.MatchStatus) ([]*types.Match, error) {
	return r.matches.FindByStatus(ctx, status)
}

// FinishMatch tears the match down gracefully via the engine and marks it
// FINISHED.
func (r *Router) FinishMatch(ctx context.Context, id types.ClusterMatchId) error {
	match, err := r.matches.FindById(ctx, id)
	if err != nil {
		return err
	}

	node, err := r.nodes.Get(ctx, match.OwnerNodeID)
	if err != nil {
		return err
	}
	client := r.dial(node.Address)
	if err := client.FinishMatch(ctx, id.ContainerID, id.LocalID); err != nil {
		return err
	}

	match.Status = types.MatchStatusFinished
	return r.matches.Save(ctx, match)
}

// DeleteMatch tears down the match's engine-side resources and removes its
// registry row. Deleting an already-absent match returns NotFound so the
// HTTP layer can answer 404, but a retried delete of a match this call
// itself already removed is not distinguishable from that case, which
// matches §4.F's "no-op internally" allowance.
func (r *Router) DeleteMatch(ctx context.Context, id types.ClusterMatchId) error {
	match, err := r.matches.FindById(ctx, id)
	if err != nil {
		return err
	}

	if node, err := r.nodes.Get(ctx, match.OwnerNodeID); err == nil {
		client := r.dial(node.Address)
		if err := client.DeleteMatch(ctx, id.ContainerID, id.LocalID); err != nil {
			log.WithMatchID(id.String()).Warn().Err(err).Msg("engine teardown failed, deleting registry row anyway")
		}
	}

	return r.matches.DeleteById(ctx, id)
}

// UpdatePlayerCount atomically (best-effort) updates a running match's
// player count.
func (r *Router) UpdatePlayerCount(ctx context.Context, id types.ClusterMatchId, count int) error {
	match, err := r.matches.FindById(ctx, id)
	if err != nil {
		return err
	}
	if count < 0 || (match.PlayerLimit > 0 && count > match.PlayerLimit) {
		return apierrors.Validation("playerCount", "must be between 0 and the match's player limit")
	}
	match.PlayerCount = count
	return r.matches.Save(ctx, match)
}

// SweepNode transitions every active (CREATING/RUNNING) match owned by
// nodeID to ERROR. Terminal-state matches are left in place; they age out
// through the normal deleteMatch path rather than being swept immediately.
func (r *Router) SweepNode(ctx context.Context, nodeID string) error {
	owned, err := r.matches.FindByNodeId(ctx, nodeID)
	if err != nil {
		return err
	}

	for _, m := range owned {
		if m.Status != types.MatchStatusCreating && m.Status != types.MatchStatusRunning {
			continue
		}
		m.Status = types.MatchStatusError
		m.ErrorReason = "owning node was removed"
		if err := r.matches.Save(ctx, m); err != nil {
			return err
		}
		metrics.OrphanSweptTotal.Inc()
	}
	return nil
}

// RunOrphanSweeper subscribes to the event broker and sweeps matches for
// every node.removed event until ctx is cancelled. It is meant to be run in
// its own goroutine by the caller (cmd/controlplane's bootstrap).
func (r *Router) RunOrphanSweeper(ctx context.Context, broker *events.Broker) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			if event.Type != events.EventNodeRemoved {
				continue
			}
			nodeID := event.Metadata["node_id"]
			if nodeID == "" {
				continue
			}
			if err := r.SweepNode(ctx, nodeID); err != nil {
				log.WithComponent("router").Error().Err(err).Str("node_id", nodeID).Msg("orphan sweep failed")
			}
		}
	}
}
