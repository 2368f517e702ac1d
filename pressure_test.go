package atlasdb

import "testing"

func TestPressureSeriesEmptyIsZero(t *testing.T) {
	p := newPressureSeries()
	if got := p.score(); got != 0 {
		t.Fatalf("score of empty series = %v, want 0", got)
	}
}

func TestPressureSeriesAllTimeoutsIsOne(t *testing.T) {
	p := newPressureSeries()
	for i := 0; i < pressureSlots; i++ {
		p.record(true)
	}
	if got := p.score(); got < 0.999 {
		t.Fatalf("score of all-timeout series = %v, want ~1.0", got)
	}
}

func TestPressureSeriesRecentOutcomesWeightMore(t *testing.T) {
	p := newPressureSeries()
	for i := 0; i < pressureSlots-1; i++ {
		p.record(false)
	}
	p.record(true)
	recentHigh := p.score()

	p2 := newPressureSeries()
	p2.record(true)
	for i := 0; i < pressureSlots-1; i++ {
		p2.record(false)
	}
	recentLow := p2.score()

	if recentHigh <= recentLow {
		t.Fatalf("a timeout in the most recent slot (%v) should score higher than one decayed out (%v)", recentHigh, recentLow)
	}
}
