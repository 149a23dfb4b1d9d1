package chaos

// Multipliers is the folded effect of the active chaos events.
//
// Scalar multipliers compose multiplicatively, node sets by union, the cache
// hit override by minimum and per-node slowness by maximum.
type Multipliers struct {
	Traffic     float64 `json:"traffic"`
	Latency     float64 `json:"latency"`
	FailureRate float64 `json:"failure_rate"`
	DBLatency   float64 `json:"db_latency"`

	HasCacheHitOverride bool    `json:"has_cache_hit_override"`
	CacheHitOverride    float64 `json:"cache_hit_override"`

	Disconnected map[string]bool    `json:"disconnected,omitempty"`
	Crashed      map[string]bool    `json:"crashed,omitempty"`
	Slow         map[string]float64 `json:"slow,omitempty"`
	// NodeDBLatency holds targeted database slowdowns on top of DBLatency.
	NodeDBLatency map[string]float64 `json:"node_db_latency,omitempty"`
	// Causes records the operator supplied cause for targeted crashes and slowdowns.
	Causes  map[string]string `json:"causes,omitempty"`
	DBCause string            `json:"db_cause,omitempty"`
}

// Neutral returns the multiplier set with no active events.
func Neutral() Multipliers {
	return Multipliers{
		Traffic:       1,
		Latency:       1,
		FailureRate:   1,
		DBLatency:     1,
		Disconnected:  map[string]bool{},
		Crashed:       map[string]bool{},
		Slow:          map[string]float64{},
		NodeDBLatency: map[string]float64{},
		Causes:        map[string]string{},
	}
}

// Fold composes events into one multiplier set. Callers pass only active events.
func Fold(events []Event) Multipliers {
	m := Neutral()
	for _, e := range events {
		switch e.Type {
		case TrafficSpike:
			m.Traffic *= positive(e.param(ParamMultiplier))
		case NetworkLatency:
			lat := positive(e.param(ParamMultiplier))
			if len(e.Targets) == 0 {
				m.Latency *= lat
				m.FailureRate *= positive(e.param(ParamFailureRate))
				continue
			}
			for _, id := range e.Targets {
				if lat > m.Slow[id] {
					m.Slow[id] = lat
				}
				m.setCause(id, e.Cause)
			}
		case NetworkPartition:
			for _, id := range e.Targets {
				m.Disconnected[id] = true
			}
		case DatabaseSlowdown:
			f := positive(e.param(ParamMultiplier))
			if len(e.Targets) == 0 {
				m.DBLatency *= f
				if e.Cause != "" {
					m.DBCause = e.Cause
				}
				continue
			}
			for _, id := range e.Targets {
				cur, ok := m.NodeDBLatency[id]
				if !ok {
					cur = 1
				}
				m.NodeDBLatency[id] = cur * f
				m.setCause(id, e.Cause)
			}
		case CacheInvalidation:
			hr := clamp01(e.param(ParamHitRate))
			if !m.HasCacheHitOverride || hr < m.CacheHitOverride {
				m.CacheHitOverride = hr
			}
			m.HasCacheHitOverride = true
		case ComponentCrash:
			for _, id := range e.Targets {
				m.Crashed[id] = true
				m.setCause(id, e.Cause)
			}
		}
	}
	return m
}

func (m *Multipliers) setCause(id, cause string) {
	if cause != "" {
		m.Causes[id] = cause
	}
}

// DBLatencyFor returns the database latency multiplier for node id.
func (m Multipliers) DBLatencyFor(id string) float64 {
	f := m.DBLatency
	if f <= 0 {
		f = 1
	}
	if n, ok := m.NodeDBLatency[id]; ok {
		f *= n
	}
	return f
}

// DBCauseFor returns the cause attached to a database slowdown hitting id.
func (m Multipliers) DBCauseFor(id string) string {
	if _, ok := m.NodeDBLatency[id]; ok {
		if c := m.Causes[id]; c != "" {
			return c
		}
	}
	return m.DBCause
}

// SlowFactor returns the slowness factor for id, 1 when the node is not slow.
func (m Multipliers) SlowFactor(id string) float64 {
	if f, ok := m.Slow[id]; ok && f > 1 {
		return f
	}
	return 1
}

// Quiet reports whether the set has no effect.
func (m Multipliers) Quiet() bool {
	return m.Traffic == 1 && m.Latency == 1 && m.FailureRate == 1 && m.DBLatency == 1 &&
		!m.HasCacheHitOverride && len(m.Disconnected) == 0 && len(m.Crashed) == 0 &&
		len(m.Slow) == 0 && len(m.NodeDBLatency) == 0
}

func positive(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
