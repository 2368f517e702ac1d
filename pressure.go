package atlasdb

import "sync"

// pressureSeries is a decayed rolling estimate of this endpoint's
// checkout-timeout rate, reported to the metrics sink only — it never
// gates acquisition (gating is the controller's CAS state machine). It is
// directly grounded on the teacher library's host.go, which computed a
// weighted moving average across a ring of time slots to score a remote
// host for bandit selection. That multi-host selection has no analog
// here (Non-goal: replication/failover across endpoints), so the ring/
// decay primitive is kept but the unit it scores is collapsed from "one
// host among many" to "the single configured endpoint", and its output
// feeds observability instead of a Selecter.
type pressureSeries struct {
	mu      sync.Mutex
	slots   []float64
	slot    int
	filled  bool
}

const pressureSlots = 60

func newPressureSeries() *pressureSeries {
	return &pressureSeries{slots: make([]float64, pressureSlots)}
}

// record logs one outcome: 1 for a checkout timeout, 0 for a successful
// acquire.
func (p *pressureSeries) record(timedOut bool) {
	v := 0.0
	if timedOut {
		v = 1.0
	}
	p.mu.Lock()
	p.slots[p.slot] = v
	p.slot = (p.slot + 1) % len(p.slots)
	if p.slot == 0 {
		p.filled = true
	}
	p.mu.Unlock()
}

// score computes the decayed weighted average over the series, weighting
// recent outcomes more heavily (arithmetic decay, same weighting scheme as
// the teacher library's Host.computeScore).
func (p *pressureSeries) score() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.slots)
	if !p.filled {
		n = p.slot
	}
	if n == 0 {
		return 0
	}

	m := float64(n * (n + 1) / 2)
	var total float64
	for age := 0; age < n; age++ {
		idx := (p.slot - 1 - age + len(p.slots)*2) % len(p.slots)
		weight := float64(n-age) / m
		total += p.slots[idx] * weight
	}
	return total
}
