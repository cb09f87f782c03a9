package pkmodel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcentrationAt_SingleInfusion(t *testing.T) {
	ev := []Event{{DoseMg: 1000, StartHours: 0, InfusionHours: 1}}
	cl, v := 4.0, 50.0

	t.Run("Zero before infusion starts", func(t *testing.T) {
		late := []Event{{DoseMg: 1000, StartHours: 5, InfusionHours: 1}}
		assert.Zero(t, ConcentrationAt(2, late, cl, v))
	})

	t.Run("Rises during infusion", func(t *testing.T) {
		c1 := ConcentrationAt(0.25, ev, cl, v)
		c2 := ConcentrationAt(0.75, ev, cl, v)
		assert.Greater(t, c2, c1)
	})

	t.Run("Decays after infusion ends", func(t *testing.T) {
		peak := ConcentrationAt(1, ev, cl, v)
		later := ConcentrationAt(6, ev, cl, v)
		assert.Greater(t, peak, later)
		assert.Greater(t, later, 0.0)
	})

	t.Run("End of infusion matches closed form", func(t *testing.T) {
		k := cl / v
		r := 1000.0 // mg over 1 h
		want := (r / cl) * (1 - math.Exp(-k*1))
		assert.InDelta(t, want, ConcentrationAt(1, ev, cl, v), 1e-9)
	})
}

func TestConcentrationAt_Superposition(t *testing.T) {
	first := Event{DoseMg: 1000, StartHours: 0, InfusionHours: 1}
	second := Event{DoseMg: 1000, StartHours: 12, InfusionHours: 1}
	cl, v := 4.0, 50.0

	single := ConcentrationAt(13, []Event{second}, cl, v)
	carried := ConcentrationAt(13, []Event{first}, cl, v)
	both := ConcentrationAt(13, []Event{first, second}, cl, v)

	assert.InDelta(t, single+carried, both, 1e-9)
}

func TestTrapezoidAUC(t *testing.T) {
	t.Run("Constant curve integrates exactly", func(t *testing.T) {
		times := []float64{0, 1, 2, 3, 4}
		concs := []float64{2, 2, 2, 2, 2}
		assert.InDelta(t, 8.0, TrapezoidAUC(times, concs, 0, 4), 1e-9)
	})

	t.Run("Empty window returns zero", func(t *testing.T) {
		assert.Zero(t, TrapezoidAUC([]float64{0, 1}, []float64{1, 1}, 5, 4))
	})

	t.Run("Mismatched slices return zero", func(t *testing.T) {
		assert.Zero(t, TrapezoidAUC([]float64{0, 1, 2}, []float64{1, 1}, 0, 2))
	})
}

func TestRepeatedEvents(t *testing.T) {
	events := RepeatedEvents(1000, 12, 1, 48, 0)
	require.Len(t, events, 5) // 0, 12, 24, 36, 48
	assert.Equal(t, 0.0, events[0].StartHours)
	assert.Equal(t, 48.0, events[4].StartHours)

	assert.Empty(t, RepeatedEvents(1000, 0, 1, 48, 0))
}

func TestSimulateRegimen_AUCApproachesSteadyState(t *testing.T) {
	cl, v := 4.0, 50.0
	times, concs := SimulateRegimen(cl, v, 1000, 12, 1, 48, 10)
	require.NotEmpty(t, times)
	require.Len(t, concs, len(times))

	// The 24-48h window is near steady state; its trapezoid AUC should be
	// close to the analytic Dose*(24/tau)/CL.
	simulated := TrapezoidAUC(times, concs, 24, 48)
	analytic := SteadyStateAUC24(1000, 12, cl)
	assert.InEpsilon(t, analytic, simulated, 0.08)
}

func TestSteadyStateAUC24_Monotonicity(t *testing.T) {
	cl := 3.5

	t.Run("Increasing in dose", func(t *testing.T) {
		prev := 0.0
		for dose := 250.0; dose <= 2000; dose += 250 {
			auc := SteadyStateAUC24(dose, 12, cl)
			assert.Greater(t, auc, prev)
			prev = auc
		}
	})

	t.Run("Decreasing in interval", func(t *testing.T) {
		prev := math.Inf(1)
		for _, tau := range []float64{8, 12, 18, 24, 36, 48} {
			auc := SteadyStateAUC24(1000, tau, cl)
			assert.Less(t, auc, prev)
			prev = auc
		}
	})
}

func TestSteadyStatePeakTrough(t *testing.T) {
	cl, v := 4.0, 50.0
	peak := SteadyStatePeak(1000, 12, 1, cl, v)
	trough := SteadyStateTrough(1000, 12, 1, cl, v)

	assert.Greater(t, peak, trough)
	assert.Greater(t, trough, 0.0)

	// Trough is the peak decayed over tau - Tin.
	k := cl / v
	assert.InDelta(t, peak*math.Exp(-k*11), trough, 1e-9)
}

func TestEliminationConstant(t *testing.T) {
	assert.InDelta(t, 0.0044, EliminationConstant(0), 1e-12)
	assert.InDelta(t, 0.00083*100+0.0044, EliminationConstant(100), 1e-12)
	// Negative clearance is floored at zero.
	assert.InDelta(t, 0.0044, EliminationConstant(-10), 1e-12)
}

func TestVolumeOfDistribution(t *testing.T) {
	assert.InDelta(t, 49.0, VolumeOfDistribution(70), 1e-9)
	assert.Zero(t, VolumeOfDistribution(-5))
}

func TestRoundToIncrement(t *testing.T) {
	tests := []struct {
		name      string
		mg        float64
		increment float64
		want      float64
	}{
		{"Rounds up to nearest", 1210, 250, 1250},
		{"Rounds down to nearest", 1370, 250, 1250},
		{"Rounds up past midpoint", 1380, 250, 1500},
		{"Exact multiple unchanged", 1500, 250, 1500},
		{"Zero increment passthrough", 1234, 0, 1234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundToIncrement(tt.mg, tt.increment))
		})
	}
}
