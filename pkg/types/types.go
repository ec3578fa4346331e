package types

import (
	"fmt"
	"strings"
	"time"
)

// Node represents a registered engine process.
type Node struct {
	ID            string
	Address       string // URL used to reach the engine
	Capacity      int    // max concurrent matches
	MatchCount    int    // active match count last reported by the node's heartbeat
	ContainerCount int
	CPUPercent    float64
	MemoryBytes   int64
	Status        NodeStatus // computed at read time, see DeriveNodeStatus
	Drained       bool       // persisted flag; DRAINING is derived from this + TTL
	LastHeartbeat time.Time
	CreatedAt     time.Time
}

// NodeStatus is the status derived from TTL + drain flag (§4.B).
type NodeStatus string

const (
	NodeStatusHealthy   NodeStatus = "HEALTHY"
	NodeStatusDraining  NodeStatus = "DRAINING"
	NodeStatusUnhealthy NodeStatus = "UNHEALTHY"
)

// DeriveNodeStatus implements the pure status derivation rule from §4.B:
// TTL expired → UNHEALTHY; TTL live and drained → DRAINING; otherwise HEALTHY.
func DeriveNodeStatus(ttlExpired, drained bool) NodeStatus {
	if ttlExpired {
		return NodeStatusUnhealthy
	}
	if drained {
		return NodeStatusDraining
	}
	return NodeStatusHealthy
}

// MatchStatus is the lifecycle state of a Match (§3).
type MatchStatus string

const (
	MatchStatusCreating MatchStatus = "CREATING"
	MatchStatusRunning  MatchStatus = "RUNNING"
	MatchStatusFinished MatchStatus = "FINISHED"
	MatchStatusError    MatchStatus = "ERROR"
)

// ClusterMatchId is the globally unique match identifier: the tuple
// (nodeId, containerId, localMatchId). Its wire format is
// "{nodeId}-{containerId}-{localMatchId}"; since nodeId may itself contain
// hyphens, parsing splits on the LAST two hyphens rather than the first two.
type ClusterMatchId struct {
	NodeID      string
	ContainerID string
	LocalID     string
}

// String renders the wire format described in §6.
func (c ClusterMatchId) String() string {
	return fmt.Sprintf("%s-%s-%s", c.NodeID, c.ContainerID, c.LocalID)
}

// ParseClusterMatchId parses the wire format produced by String. It splits
// on the last two hyphens so that node-ids containing hyphens still parse
// correctly, per §6's explicit instruction.
func ParseClusterMatchId(s string) (ClusterMatchId, error) {
	lastDash := strings.LastIndex(s, "-")
	if lastDash <= 0 || lastDash == len(s)-1 {
		return ClusterMatchId{}, fmt.Errorf("invalid cluster match id %q", s)
	}
	localID := s[lastDash+1:]
	rest := s[:lastDash]

	secondDash := strings.LastIndex(rest, "-")
	if secondDash <= 0 || secondDash == len(rest)-1 {
		return ClusterMatchId{}, fmt.Errorf("invalid cluster match id %q", s)
	}
	containerID := rest[secondDash+1:]
	nodeID := rest[:secondDash]

	if nodeID == "" || containerID == "" || localID == "" {
		return ClusterMatchId{}, fmt.Errorf("invalid cluster match id %q", s)
	}
	return ClusterMatchId{NodeID: nodeID, ContainerID: containerID, LocalID: localID}, nil
}

// MatchEndpoints are the addresses returned to callers once a match is RUNNING.
type MatchEndpoints struct {
	HTTPBase string
	WSBase   string
}

// Match represents a stateful workload instance running on a node (§3).
type Match struct {
	ID           ClusterMatchId
	Status       MatchStatus
	Modules      []string // module names referenced from the Module Registry
	CreatedAt    time.Time
	PlayerCount  int
	PlayerLimit  int
	OwnerNodeID  string
	Endpoints    *MatchEndpoints
	ErrorReason  string
	MatchToken   string    // opaque, set only if the auth broker succeeded
	TokenExpires time.Time // zero if no token was obtained
}

// ModuleMetadata describes a versioned module artifact, without its bytes (§3/§4.D).
type ModuleMetadata struct {
	Name         string
	Version      string
	Description  string
	FileName     string
	FileSize     int64
	ContentHash  string // hex-encoded sha256 of the artifact bytes
	Uploader     string
	UploadedAt   time.Time
}

// ScaleAction is the autoscaler's recommended action (§3/§4.I).
type ScaleAction string

const (
	ScaleActionNone  ScaleAction = "NONE"
	ScaleActionUp    ScaleAction = "SCALE_UP"
	ScaleActionDown  ScaleAction = "SCALE_DOWN"
)

// ScalingRecommendation is the autoscaler's periodic output (§3/§4.I).
type ScalingRecommendation struct {
	Action           ScaleAction
	CurrentFleetSize int
	TargetFleetSize  int
	Saturation       float64
	Reason           string
	ProducedAt       time.Time
}

// MatchTokenResult is the tagged-union result of an Auth Broker call (§4.H).
// Exactly one of Success/Failure is non-nil, mirroring the spec's
// `MatchTokenResult = Success | Failure` design note.
type MatchTokenResult struct {
	Success *MatchTokenSuccess
	Failure *MatchTokenFailure
}

// MatchTokenSuccess is the broker's successful response.
type MatchTokenSuccess struct {
	TokenID   string
	MatchID   string
	PlayerID  string
	Token     string
	ExpiresAt time.Time
}

// MatchTokenFailure is the broker's failure response; callers never retry
// indefinitely, they simply omit the token from the match response (§4.F).
type MatchTokenFailure struct {
	HTTPStatus int
	Message    string
}
