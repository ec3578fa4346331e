// Package autoscaler implements the periodic control loop (§4.I) that
// observes cluster saturation and emits fleet-size recommendations.
// Grounded on the teacher's pkg/reconciler ticker-driven background loop:
// a fixed-interval goroutine, a stop channel, and a per-cycle timer metric,
// generalized from node/container healing to a pure scaling decision.
package autoscaler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stormstack/control-plane/pkg/log"
	"github.com/stormstack/control-plane/pkg/metrics"
	"github.com/stormstack/control-plane/pkg/nodes"
	"github.com/stormstack/control-plane/pkg/scheduler"
	"github.com/stormstack/control-plane/pkg/types"
)

// Config holds the autoscaler's thresholds and bounds (§4.I), all with the
// spec's documented defaults.
type Config struct {
	Interval          time.Duration
	ScaleUpThreshold  float64
	ScaleDownThreshold float64
	MinNodes          int
	MaxNodes          int
	CooldownSeconds   int
}

// DefaultConfig returns §4.I's documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:           30 * time.Second,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		MinNodes:           1,
		MaxNodes:           10,
		CooldownSeconds:    300,
	}
}

// Autoscaler runs the periodic loop and exposes the latest recommendation.
// It never applies its own recommendations; per §4.I that is out of scope.
type Autoscaler struct {
	cfg       Config
	nodes     *nodes.Registry
	scheduler *scheduler.Scheduler

	mu             sync.RWMutex
	last           types.ScalingRecommendation
	lastNonNoneAt  time.Time

	stopCh chan struct{}
}

// New constructs an Autoscaler.
func New(cfg Config, nodeRegistry *nodes.Registry, sched *scheduler.Scheduler) *Autoscaler {
	return &Autoscaler{
		cfg:       cfg,
		nodes:     nodeRegistry,
		scheduler: sched,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the autoscaler's background loop.
func (a *Autoscaler) Start(ctx context.Context) {
	go a.run(ctx)
}

// Stop stops the background loop.
func (a *Autoscaler) Stop() {
	close(a.stopCh)
}

func (a *Autoscaler) run(ctx context.Context) {
	logger := log.WithComponent("autoscaler")
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", a.cfg.Interval).Msg("autoscaler started")

	for {
		select {
		case <-ticker.C:
			rec, err := a.Tick(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("autoscaler tick failed")
				continue
			}
			metrics.AutoscalerRecommendationsTotal.WithLabelValues(string(rec.Action)).Inc()
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		}
	}
}

// Tick runs a single decision cycle and returns the recommendation, also
// storing it as the autoscaler's latest state for LastRecommendation.
func (a *Autoscaler) Tick(ctx context.Context) (types.ScalingRecommendation, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingDuration)

	allNodes, err := a.nodes.List(ctx)
	if err != nil {
		return types.ScalingRecommendation{}, err
	}

	healthy := 0
	for _, n := range allNodes {
		if n.Status == types.NodeStatusHealthy {
			healthy++
		}
	}

	saturation, err := a.scheduler.ClusterSaturation(ctx)
	if err != nil {
		return types.ScalingRecommendation{}, err
	}

	rec := a.decide(healthy, saturation)

	a.mu.Lock()
	if rec.Action != types.ScaleActionNone {
		a.lastNonNoneAt = rec.ProducedAt
	}
	a.last = rec
	a.mu.Unlock()

	return rec, nil
}

// decide implements §4.I's decision table against the current fleet size
// and saturation, applying the below-minimum override and the cooldown gate.
func (a *Autoscaler) decide(current int, saturation float64) types.ScalingRecommendation {
	now := time.Now()
	rec := types.ScalingRecommendation{
		Action:           types.ScaleActionNone,
		CurrentFleetSize: current,
		TargetFleetSize:  current,
		Saturation:       saturation,
		ProducedAt:       now,
	}

	switch {
	case current < a.cfg.MinNodes:
		rec.Action = types.ScaleActionUp
		rec.TargetFleetSize = a.cfg.MinNodes
		rec.Reason = "below minimum"
	case saturation >= a.cfg.ScaleUpThreshold:
		target := clamp(int(math.Ceil(float64(current)*1.5)), a.cfg.MinNodes, a.cfg.MaxNodes)
		rec.TargetFleetSize = target
		if target > current {
			rec.Action = types.ScaleActionUp
			rec.Reason = "saturation above scale-up threshold"
		} else {
			rec.Reason = "at maximum fleet size"
		}
	case saturation <= a.cfg.ScaleDownThreshold:
		target := clamp(int(math.Ceil(float64(current)*0.75)), a.cfg.MinNodes, a.cfg.MaxNodes)
		rec.TargetFleetSize = target
		if target < current {
			rec.Action = types.ScaleActionDown
			rec.Reason = "saturation below scale-down threshold"
		} else {
			rec.Reason = "at minimum fleet size"
		}
	default:
		rec.Reason = "saturation within target range"
	}

	if rec.Action != types.ScaleActionNone {
		a.mu.RLock()
		lastNonNoneAt := a.lastNonNoneAt
		a.mu.RUnlock()

		if !lastNonNoneAt.IsZero() && now.Sub(lastNonNoneAt) < time.Duration(a.cfg.CooldownSeconds)*time.Second {
			rec.Action = types.ScaleActionNone
			rec.TargetFleetSize = current
			rec.Reason = "cooldown"
		}
	}

	return rec
}

// LastRecommendation returns the most recently produced recommendation, the
// zero value if Tick has never run.
func (a *Autoscaler) LastRecommendation() types.ScalingRecommendation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
