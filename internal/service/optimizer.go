package service

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/pkg/pkmodel"
)

// Dosing interval choices in hours, longest-sparing order applied by the
// tie-break rule rather than the scan order.
var intervalChoices = []float64{8, 12, 18, 24, 36, 48}

const (
	loadingDoseMgPerKg = 25.0
	dailyDoseMgPerKg   = 100.0

	distanceTieEpsilon = 1e-9
)

// RegimenSelection is the outcome of a dose search: the chosen regimen, its
// AUC24 interval under the posterior clearance, and any advisories raised
// during the search.
type RegimenSelection struct {
	Regimen domain.CandidateRegimen
	AUC24   domain.ConfidenceInterval
	Status  domain.OptimizationStatus
	Safety  []domain.SafetyMessage
}

// DoseOptimizer searches the discrete regimen grid for the maintenance dose
// whose predicted steady-state AUC24 falls inside the therapeutic window,
// closest to its midpoint. When no candidate reaches the window the nearest
// feasible regimen is returned flagged OUT_OF_RANGE rather than failing.
type DoseOptimizer struct {
	logger       *logrus.Logger
	targets      *TargetService
	incrementMg  float64
	maxSingleMg  float64
	maxDailyMg   float64
	maxLoadingMg float64
}

// NewDoseOptimizer creates an optimizer with the configured dose grid and
// safety caps.
func NewDoseOptimizer(logger *logrus.Logger, targets *TargetService, cfg *domain.EngineConfig) *DoseOptimizer {
	increment := cfg.DoseIncrementMg
	if increment <= 0 {
		increment = 250
	}
	maxSingle := cfg.MaxSingleDoseMg
	if maxSingle <= 0 {
		maxSingle = 2000
	}
	maxDaily := cfg.MaxDailyDoseMg
	if maxDaily <= 0 {
		maxDaily = 4500
	}
	maxLoading := cfg.MaxLoadingDoseMg
	if maxLoading <= 0 {
		maxLoading = 3000
	}
	return &DoseOptimizer{
		logger:       logger,
		targets:      targets,
		incrementMg:  increment,
		maxSingleMg:  maxSingle,
		maxDailyMg:   maxDaily,
		maxLoadingMg: maxLoading,
	}
}

// Optimize scans every dose/interval combination that respects the per-dose
// and per-day caps and selects the regimen closest to the target midpoint.
// Ties prefer the renally preferred interval, then the longer interval, then
// the smaller dose; preferredIntervalHours <= 0 skips the renal preference.
// The context is checked between interval passes so a cancelled request
// aborts promptly.
func (o *DoseOptimizer) Optimize(
	ctx context.Context,
	clearance domain.ConfidenceInterval,
	volume domain.ConfidenceInterval,
	target domain.TargetRange,
	weightKg float64,
	preferredIntervalHours float64,
) (*RegimenSelection, error) {
	if clearance.Median <= 0 {
		return nil, fmt.Errorf("optimize: clearance must be positive")
	}
	if volume.Median <= 0 {
		return nil, fmt.Errorf("optimize: volume must be positive")
	}
	if weightKg <= 0 {
		return nil, fmt.Errorf("optimize: weight must be positive, got %.1f", weightKg)
	}

	dailyCap := math.Min(o.maxDailyMg, dailyDoseMgPerKg*weightKg)

	var (
		bestInRange  *domain.CandidateRegimen
		bestInDist   float64
		bestAny      *domain.CandidateRegimen
		bestAnyDist  float64
		bestInAUC    domain.ConfidenceInterval
		bestAnyAUC   domain.ConfidenceInterval
		candidateCnt int
	)

	for _, interval := range intervalChoices {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		for dose := o.incrementMg; dose <= o.maxSingleMg; dose += o.incrementMg {
			dailyDose := dose * (24.0 / interval)
			if dailyDose > dailyCap {
				continue
			}
			candidateCnt++

			auc, err := o.targets.EvaluateAUC24(dose, interval, clearance)
			if err != nil {
				return nil, fmt.Errorf("optimize: %w", err)
			}
			infusion := infusionDuration(dose)
			cand := domain.CandidateRegimen{
				DoseMg:          dose,
				IntervalHours:   interval,
				InfusionHours:   infusion,
				DailyDoseMg:     dailyDose,
				AUC24Median:     auc.Median,
				PredictedPeak:   pkmodel.SteadyStatePeak(dose, interval, infusion, clearance.Median, volume.Median),
				PredictedTrough: pkmodel.SteadyStateTrough(dose, interval, infusion, clearance.Median, volume.Median),
			}
			dist := o.targets.DistanceToMidpoint(auc.Median, target)

			if bestAny == nil || betterCandidate(dist, bestAnyDist, &cand, bestAny, preferredIntervalHours) {
				c := cand
				bestAny, bestAnyDist, bestAnyAUC = &c, dist, auc
			}
			if target.Contains(auc.Median) {
				if bestInRange == nil || betterCandidate(dist, bestInDist, &cand, bestInRange, preferredIntervalHours) {
					c := cand
					bestInRange, bestInDist, bestInAUC = &c, dist, auc
				}
			}
		}
	}

	if bestAny == nil {
		// The caps excluded every combination (extreme weights). Fall
		// back to the most conservative regimen on the grid.
		return o.fallbackSelection(clearance, volume.Median, target)
	}

	selection := &RegimenSelection{}
	if bestInRange != nil {
		selection.Regimen = *bestInRange
		selection.AUC24 = bestInAUC
		selection.Status = domain.REGIMEN_ON_TARGET
	} else {
		selection.Regimen = *bestAny
		selection.AUC24 = bestAnyAUC
		selection.Status = domain.REGIMEN_OUT_OF_RANGE
		selection.Safety = append(selection.Safety, domain.SafetyMessage{
			Kind: domain.SAFETY_WARNING,
			Code: "AUC_OUT_OF_RANGE",
			Message: fmt.Sprintf("no regimen reaches the %.0f-%.0f mg·h/L window within dosing caps; nearest is %.0f mg q%.0fh (AUC24 %.0f)",
				target.Lower, target.Upper, bestAny.DoseMg, bestAny.IntervalHours, bestAny.AUC24Median),
		})
	}
	selection.Safety = append(selection.Safety, troughAdvisories(selection.Regimen)...)

	o.logger.WithFields(logrus.Fields{
		"candidates":   candidateCnt,
		"dose_mg":      selection.Regimen.DoseMg,
		"interval_hr":  selection.Regimen.IntervalHours,
		"auc24_median": selection.AUC24.Median,
		"status":       selection.Status.String(),
	}).Info("Selected maintenance regimen")

	return selection, nil
}

// LoadingDose returns the weight-based loading dose for serious infections,
// rounded to the dosing increment and capped. Non-serious severity gets no
// loading dose.
func (o *DoseOptimizer) LoadingDose(weightKg float64, severity domain.InfectionSeverity) float64 {
	if !severity.IsSerious() || weightKg <= 0 {
		return 0
	}
	dose := math.Min(loadingDoseMgPerKg*weightKg, o.maxLoadingMg)
	return pkmodel.RoundToIncrement(dose, o.incrementMg)
}

// PreferredInterval suggests the empiric dosing interval from renal function
// alone: brisk clearance needs more frequent dosing. Optimize breaks exact
// AUC ties toward this interval.
func PreferredInterval(crClMlMin float64) float64 {
	switch {
	case crClMlMin >= 100:
		return 8
	case crClMlMin >= 60:
		return 12
	default:
		return 24
	}
}

// fallbackSelection handles the degenerate case where the caps admit no
// candidate at all: the smallest dose at the longest interval, flagged out of
// range with an explicit warning.
func (o *DoseOptimizer) fallbackSelection(clearance domain.ConfidenceInterval, volumeL float64, target domain.TargetRange) (*RegimenSelection, error) {
	interval := intervalChoices[len(intervalChoices)-1]
	dose := o.incrementMg
	auc, err := o.targets.EvaluateAUC24(dose, interval, clearance)
	if err != nil {
		return nil, fmt.Errorf("optimize fallback: %w", err)
	}
	infusion := infusionDuration(dose)

	o.logger.WithFields(logrus.Fields{
		"dose_mg":     dose,
		"interval_hr": interval,
	}).Warn("Dosing caps excluded all regimen candidates, using minimal fallback")

	return &RegimenSelection{
		Regimen: domain.CandidateRegimen{
			DoseMg:          dose,
			IntervalHours:   interval,
			InfusionHours:   infusion,
			DailyDoseMg:     dose * (24.0 / interval),
			AUC24Median:     auc.Median,
			PredictedPeak:   pkmodel.SteadyStatePeak(dose, interval, infusion, clearance.Median, volumeL),
			PredictedTrough: pkmodel.SteadyStateTrough(dose, interval, infusion, clearance.Median, volumeL),
		},
		AUC24:  auc,
		Status: domain.REGIMEN_OUT_OF_RANGE,
		Safety: []domain.SafetyMessage{{
			Kind:    domain.SAFETY_WARNING,
			Code:    "NO_FEASIBLE_REGIMEN",
			Message: "dosing caps exclude every regimen candidate; minimal regimen returned, individualize manually",
		}},
	}, nil
}

// betterCandidate reports whether the candidate beats the incumbent: smaller
// distance to the target midpoint wins, with exact ties broken toward the
// renally preferred interval, then the longer interval, then the smaller
// dose.
func betterCandidate(dist, bestDist float64, cand, best *domain.CandidateRegimen, preferredInterval float64) bool {
	if dist < bestDist-distanceTieEpsilon {
		return true
	}
	if dist > bestDist+distanceTieEpsilon {
		return false
	}
	if preferredInterval > 0 && (cand.IntervalHours == preferredInterval) != (best.IntervalHours == preferredInterval) {
		return cand.IntervalHours == preferredInterval
	}
	if cand.IntervalHours != best.IntervalHours {
		return cand.IntervalHours > best.IntervalHours
	}
	return cand.DoseMg < best.DoseMg
}

// infusionDuration maps the dose size to an infusion time that keeps the rate
// at or below roughly 1 g/h.
func infusionDuration(doseMg float64) float64 {
	switch {
	case doseMg <= 1000:
		return 1.0
	case doseMg <= 1500:
		return 1.5
	default:
		return 2.0
	}
}

// troughAdvisories raises nephrotoxicity advisories for sustained high
// predicted troughs.
func troughAdvisories(regimen domain.CandidateRegimen) []domain.SafetyMessage {
	if regimen.PredictedTrough <= 20 {
		return nil
	}
	return []domain.SafetyMessage{{
		Kind:    domain.SAFETY_WARNING,
		Code:    "TROUGH_ABOVE_20",
		Message: fmt.Sprintf("predicted steady-state trough %.1f mg/L exceeds 20 mg/L; monitor renal function closely", regimen.PredictedTrough),
	}}
}
