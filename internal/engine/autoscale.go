package engine

import (
	"math"

	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// stepAutoscale advances the scaling state of one node by a tick.
//
//	stable -> scaling_up -> cold_starting -> stable
//	stable -> scaling_down -> stable
//
// Instances added by a scale-up count towards Target immediately but only
// towards Ready once the warm-up has elapsed.
func stepAutoscale(n *topology.Node, s telemetry.AutoscaleState, utilization float64, p Params, tick int64) telemetry.AutoscaleState {
	c := n.Config
	if !c.AutoScale {
		inst := max(c.Instances, 1)
		return telemetry.AutoscaleState{Phase: telemetry.PhaseStable, Target: inst, Ready: inst}
	}
	if s.Ready <= 0 {
		inst := initialInstances(n)
		s = telemetry.AutoscaleState{Phase: telemetry.PhaseStable, Target: inst, Ready: inst}
	}
	lo := max(c.MinInstances, 1)
	hi := max(c.MaxInstances, lo)

	set := func(phase telemetry.AutoscalePhase) {
		if s.Phase != phase {
			s.Phase = phase
			s.LastChange = tick
		}
		s.Scaling = phase != telemetry.PhaseStable
	}

	switch s.Phase {
	case telemetry.PhaseScalingUp, telemetry.PhaseColdStarting:
		s.WarmupLeft--
		if s.WarmupLeft <= 0 {
			s.Ready += s.ColdStarting
			s.ColdStarting = 0
			s.WarmupLeft = 0
			set(telemetry.PhaseStable)
		} else {
			set(telemetry.PhaseColdStarting)
		}
		s.HighTicks, s.LowTicks = 0, 0
		return s
	case telemetry.PhaseScalingDown:
		set(telemetry.PhaseStable)
	}

	scaleUp := func(target int) telemetry.AutoscaleState {
		s.Target = target
		s.ColdStarting = target - s.Ready
		s.WarmupLeft = p.ColdStartTicks
		s.HighTicks = 0
		set(telemetry.PhaseScalingUp)
		if s.WarmupLeft <= 0 {
			s.Ready = target
			s.ColdStarting = 0
		}
		return s
	}

	// A raised floor is provisioned regardless of load.
	if s.Ready < lo {
		return scaleUp(lo)
	}

	switch {
	case utilization >= p.ScaleUpUtilization:
		s.HighTicks++
		s.LowTicks = 0
	case utilization <= p.ScaleDownUtilization:
		s.LowTicks++
		s.HighTicks = 0
	default:
		s.HighTicks, s.LowTicks = 0, 0
	}

	if s.HighTicks >= p.ScaleUpTicks && s.Ready < hi {
		want := int(math.Ceil(float64(s.Ready) * utilization / p.ScaleUpUtilization))
		return scaleUp(min(max(want, s.Ready+1), hi))
	}

	if s.LowTicks >= p.ScaleDownTicks && s.Ready > lo {
		want := int(math.Ceil(float64(s.Ready) * utilization / p.ScaleUpUtilization))
		target := max(min(want, s.Ready-1), lo)
		s.Target = target
		s.Ready = target
		s.LowTicks = 0
		set(telemetry.PhaseScalingDown)
		return s
	}

	s.Target = s.Ready
	return s
}
