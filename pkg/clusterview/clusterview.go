// Package clusterview implements the Cluster View (§4.J): a read-only
// aggregator over the node and match registries for the admin dashboard.
// It holds no state of its own and never mutates anything it reads, the
// same accessor-composition shape the teacher's pkg/manager read paths use.
package clusterview

import (
	"context"

	"github.com/stormstack/control-plane/pkg/autoscaler"
	"github.com/stormstack/control-plane/pkg/matches"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/types"
)

// ClusterStatus is §4.J's getClusterStatus result.
type ClusterStatus struct {
	TotalNodes        int
	HealthyNodes      int
	DrainingNodes     int
	UnhealthyNodes    int
	TotalMatches      int
	RunningMatches    int
	TotalCapacity     int
	AvailableCapacity int
}

// Overview is §4.J's getOverview result: cluster status plus autoscaler
// state and a per-status match breakdown, shaped for the admin dashboard.
type Overview struct {
	ClusterStatus       ClusterStatus
	MatchesByStatus     map[types.MatchStatus]int
	LastRecommendation  types.ScalingRecommendation
}

// Page is an offset+page-size listing result with hasNext/hasPrevious
// indicators, per §4.J.
type Page struct {
	Offset       int
	PageSize     int
	Total        int
	HasNext      bool
	HasPrevious  bool
}

// NodePage is a paginated node listing.
type NodePage struct {
	Page
	Nodes []*types.Node
}

// MatchPage is a paginated match listing.
type MatchPage struct {
	Page
	Matches []*types.Match
}

// View composes the node and match registries with the autoscaler's latest
// recommendation into dashboard-shaped reads.
type View struct {
	nodes      *nodes.Registry
	matches    *matches.Registry
	autoscaler *autoscaler.Autoscaler
}

// New constructs a View.
func New(nodeRegistry *nodes.Registry, matchRegistry *matches.Registry, scaler *autoscaler.Autoscaler) *View {
	return &View{nodes: nodeRegistry, matches: matchRegistry, autoscaler: scaler}
}

// GetClusterStatus implements §4.J's getClusterStatus.
func (v *View) GetClusterStatus(ctx context.Context) (ClusterStatus, error) {
	allNodes, err := v.nodes.List(ctx)
	if err != nil {
		return ClusterStatus{}, err
	}
	allMatches, err := v.matches.FindAll(ctx)
	if err != nil {
		return ClusterStatus{}, err
	}

	status := ClusterStatus{TotalNodes: len(allNodes), TotalMatches: len(allMatches)}
	for _, n := range allNodes {
		switch n.Status {
		case types.NodeStatusHealthy:
			status.HealthyNodes++
			status.TotalCapacity += n.Capacity
			status.AvailableCapacity += n.Capacity - n.MatchCount
		case types.NodeStatusDraining:
			status.DrainingNodes++
			status.TotalCapacity += n.Capacity
		case types.NodeStatusUnhealthy:
			status.UnhealthyNodes++
		}
	}
	for _, m := range allMatches {
		if m.Status == types.MatchStatusRunning {
			status.RunningMatches++
		}
	}
	if status.AvailableCapacity < 0 {
		status.AvailableCapacity = 0
	}
	return status, nil
}

// GetOverview implements §4.J's getOverview.
func (v *View) GetOverview(ctx context.Context) (Overview, error) {
	status, err := v.GetClusterStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	allMatches, err := v.matches.FindAll(ctx)
	if err != nil {
		return Overview{}, err
	}

	byStatus := map[types.MatchStatus]int{}
	for _, m := range allMatches {
		byStatus[m.Status]++
	}

	var lastRec types.ScalingRecommendation
	if v.autoscaler != nil {
		lastRec = v.autoscaler.LastRecommendation()
	}

	return Overview{
		ClusterStatus:      status,
		MatchesByStatus:    byStatus,
		LastRecommendation: lastRec,
	}, nil
}

// ListNodesPage returns an offset+page-size slice of all nodes, sorted by
// ID for stable pagination across calls.
func (v *View) ListNodesPage(ctx context.Context, offset, pageSize int) (NodePage, error) {
	all, err := v.nodes.List(ctx)
	if err != nil {
		return NodePage{}, err
	}

	page, lo, hi := paginate(len(all), offset, pageSize)
	return NodePage{Page: page, Nodes: all[lo:hi]}, nil
}

// ListMatchesPage returns an offset+page-size slice of all matches, sorted
// by ID for stable pagination across calls. When status is non-empty, only
// matches in that status are included.
func (v *View) ListMatchesPage(ctx context.Context, status types.MatchStatus, offset, pageSize int) (MatchPage, error) {
	var all []*types.Match
	var err error
	if status == "" {
		all, err = v.matches.FindAll(ctx)
	} else {
		all, err = v.matches.FindByStatus(ctx, status)
	}
	if err != nil {
		return MatchPage{}, err
	}

	page, lo, hi := paginate(len(all), offset, pageSize)
	return MatchPage{Page: page, Matches: all[lo:hi]}, nil
}

func paginate(total, offset, pageSize int) (Page, int, int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if offset < 0 {
		offset = 0
	}
	lo := offset
	if lo > total {
		lo = total
	}
	hi := lo + pageSize
	if hi > total {
		hi = total
	}
	return Page{
		Offset:      offset,
		PageSize:    pageSize,
		Total:       total,
		HasNext:     hi < total,
		HasPrevious: offset > 0,
	}, lo, hi
}
