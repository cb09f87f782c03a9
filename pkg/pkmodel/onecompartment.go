// Package pkmodel implements the one-compartment vancomycin model with
// zero-order infusion and first-order elimination. Concentration-time curves
// for multi-dose regimens are built by superposition of single-infusion
// contributions.
package pkmodel

import (
	"math"
)

const (
	clearanceFloor = 1e-6
	volumeFloor    = 1e-6
	infusionFloor  = 1e-6
)

// Event is a single administered infusion. Times are hours from an arbitrary
// reference point (typically the first dose).
type Event struct {
	DoseMg        float64
	StartHours    float64
	InfusionHours float64
}

// concentrationOneEvent returns the contribution (mg/L) of one infusion at
// time t.
//
//	k = CL / V
//	during infusion (0 <= u <= Tin):  C(u) = (R/CL) * (1 - exp(-k*u))
//	after infusion  (u > Tin):        C(u) = (R/CL) * (1 - exp(-k*Tin)) * exp(-k*(u-Tin))
//
// where R is the infusion rate in mg/h.
func concentrationOneEvent(t float64, ev Event, clLPerHr, vL float64) float64 {
	cl := math.Max(clLPerHr, clearanceFloor)
	v := math.Max(vL, volumeFloor)
	k := cl / v

	tin := math.Max(ev.InfusionHours, infusionFloor)
	r := ev.DoseMg / tin

	u := t - ev.StartHours
	switch {
	case u < 0:
		return 0
	case u <= tin:
		return (r / cl) * (1 - math.Exp(-k*u))
	default:
		return (r / cl) * (1 - math.Exp(-k*tin)) * math.Exp(-k*(u-tin))
	}
}

// ConcentrationAt returns the total concentration (mg/L) at time t under the
// given dose events.
func ConcentrationAt(t float64, events []Event, clLPerHr, vL float64) float64 {
	var total float64
	for _, ev := range events {
		total += concentrationOneEvent(t, ev, clLPerHr, vL)
	}
	return total
}

// ConcentrationSeries evaluates the superposed curve at each time point.
func ConcentrationSeries(times []float64, events []Event, clLPerHr, vL float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = ConcentrationAt(t, events, clLPerHr, vL)
	}
	return out
}

// TrapezoidAUC integrates the curve between startHr and endHr using the
// trapezoid rule over the sampled points inside the window.
func TrapezoidAUC(times, concs []float64, startHr, endHr float64) float64 {
	if endHr <= startHr || len(times) != len(concs) {
		return 0
	}
	var auc float64
	var prevT, prevC float64
	have := false
	for i, t := range times {
		if t < startHr || t > endHr {
			continue
		}
		if have {
			auc += (concs[i] + prevC) / 2 * (t - prevT)
		}
		prevT, prevC = t, concs[i]
		have = true
	}
	return auc
}

// RepeatedEvents builds the event series for a fixed regimen dosed from
// startHr up to horizonHr.
func RepeatedEvents(doseMg, intervalHr, infusionHr, horizonHr, startHr float64) []Event {
	if intervalHr <= 0 {
		return nil
	}
	n := int(math.Floor((horizonHr-startHr)/intervalHr)) + 1
	if n < 0 {
		n = 0
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event{
			DoseMg:        doseMg,
			StartHours:    startHr + float64(i)*intervalHr,
			InfusionHours: infusionHr,
		})
	}
	return events
}

// SimulateRegimen samples the 0..horizonHr concentration curve of a repeated
// regimen at dtMinutes resolution. Returns parallel time and concentration
// slices.
func SimulateRegimen(clLPerHr, vL, doseMg, intervalHr, infusionHr, horizonHr, dtMinutes float64) ([]float64, []float64) {
	dt := dtMinutes / 60
	if dt <= 0 {
		dt = 10.0 / 60
	}
	n := int(horizonHr/dt) + 1
	times := make([]float64, 0, n)
	for t := 0.0; t <= horizonHr+1e-9; t += dt {
		times = append(times, t)
	}
	events := RepeatedEvents(doseMg, intervalHr, infusionHr, horizonHr, 0)
	return times, ConcentrationSeries(times, events, clLPerHr, vL)
}

// SteadyStateAUC24 returns the exact steady-state 24-hour AUC for intermittent
// dosing. At steady state the AUC over one interval is Dose/CL by mass
// balance, independent of infusion duration, so AUC24 = Dose * (24/tau) / CL.
func SteadyStateAUC24(doseMg, intervalHr, clLPerHr float64) float64 {
	tau := math.Max(intervalHr, 0.1)
	cl := math.Max(clLPerHr, clearanceFloor)
	return doseMg * (24 / tau) / cl
}

// SteadyStatePeak returns the end-of-infusion concentration at steady state.
//
//	Cmax = (Dose / (Tin * CL)) * (1 - exp(-k*Tin)) / (1 - exp(-k*tau))
func SteadyStatePeak(doseMg, intervalHr, infusionHr, clLPerHr, vL float64) float64 {
	cl := math.Max(clLPerHr, clearanceFloor)
	v := math.Max(vL, volumeFloor)
	k := cl / v
	tin := math.Max(infusionHr, infusionFloor)
	tau := math.Max(intervalHr, tin)

	accumulation := 1 - math.Exp(-k*tau)
	if accumulation < 1e-9 {
		accumulation = 1e-9
	}
	return (doseMg / (tin * cl)) * (1 - math.Exp(-k*tin)) / accumulation
}

// SteadyStateTrough returns the pre-dose concentration at steady state,
// obtained by decaying the peak over the post-infusion portion of the
// interval.
func SteadyStateTrough(doseMg, intervalHr, infusionHr, clLPerHr, vL float64) float64 {
	cl := math.Max(clLPerHr, clearanceFloor)
	v := math.Max(vL, volumeFloor)
	k := cl / v
	tin := math.Max(infusionHr, infusionFloor)
	tau := math.Max(intervalHr, tin)

	peak := SteadyStatePeak(doseMg, intervalHr, infusionHr, clLPerHr, vL)
	return peak * math.Exp(-k*(tau-tin))
}

// EliminationConstant returns ke (1/h) from creatinine clearance using the
// Matzke relationship: ke = 0.00083*CrCl + 0.0044.
func EliminationConstant(crClMlMin float64) float64 {
	return 0.00083*math.Max(crClMlMin, 0) + 0.0044
}

// VolumeOfDistribution returns the population volume estimate: 0.7 L/kg.
func VolumeOfDistribution(weightKg float64) float64 {
	return 0.7 * math.Max(weightKg, 0)
}

// RoundToIncrement rounds a dose to the nearest practical increment.
func RoundToIncrement(mg, incrementMg float64) float64 {
	if incrementMg <= 0 {
		return mg
	}
	return math.Round(mg/incrementMg) * incrementMg
}
