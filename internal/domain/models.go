package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ConcentrationObservation is a measured drug level at a time point, in hours
// relative to the first dose in the accompanying dose history.
type ConcentrationObservation struct {
	TimeHours          float64 `json:"time_hr" validate:"min=0"`
	ConcentrationMgPerL float64 `json:"concentration_mg_l" validate:"gt=0"`
}

// Validate ensures the observation is usable as likelihood data.
func (o *ConcentrationObservation) Validate() error {
	if o.TimeHours < 0 {
		return fmt.Errorf("observation validation: %w", NewValidationError("time_hr", "must be non-negative", o.TimeHours))
	}
	if o.ConcentrationMgPerL <= 0 {
		return fmt.Errorf("observation validation: %w", NewValidationError("concentration_mg_l", "must be positive", o.ConcentrationMgPerL))
	}
	return nil
}

// DoseEvent is a single administered infusion in the patient's dose history.
// Times are hours from the first dose.
type DoseEvent struct {
	DoseMg        float64 `json:"dose_mg" validate:"gt=0"`
	StartHours    float64 `json:"start_time_hr" validate:"min=0"`
	InfusionHours float64 `json:"infusion_hr" validate:"gt=0"`
}

// Validate ensures the dose event describes a physically possible infusion.
func (d *DoseEvent) Validate() error {
	if d.DoseMg <= 0 {
		return fmt.Errorf("dose event validation: %w", NewValidationError("dose_mg", "must be positive", d.DoseMg))
	}
	if d.StartHours < 0 {
		return fmt.Errorf("dose event validation: %w", NewValidationError("start_time_hr", "must be non-negative", d.StartHours))
	}
	if d.InfusionHours <= 0 || d.InfusionHours > 12 {
		return fmt.Errorf("dose event validation: %w", NewValidationError("infusion_hr", "must be in (0, 12] hours", d.InfusionHours))
	}
	return nil
}

// PatientInput is the immutable calculation request. The engine is a pure
// function of this value plus the static domain tables: identical inputs
// with no observations produce identical results.
type PatientInput struct {
	WeightKg        float64        `json:"weight_kg" validate:"gt=0"`
	HeightCm        *float64       `json:"height_cm,omitempty" validate:"omitempty,gt=0"`
	AgeYears        float64        `json:"age_yr" validate:"min=0,max=120"`
	Gender          Gender         `json:"gender" validate:"required"`
	Population      PopulationType `json:"population_type" validate:"required"`
	SerumCreatinine float64        `json:"serum_creatinine_mg_dl" validate:"gt=0"`
	Indication      Indication     `json:"indication" validate:"required"`
	Severity        InfectionSeverity `json:"severity" validate:"required"`
	CrClMethod      CrClMethod     `json:"crcl_method" validate:"required"`

	// CustomCrCl carries the clinician-measured clearance when
	// CrClMethod == CUSTOM_CRCL; required in that case only.
	CustomCrCl *float64 `json:"custom_crcl_ml_min,omitempty" validate:"omitempty,gt=0"`

	// Observed levels with the dose history that produced them. Both are
	// optional; observations without a dose history cannot be fitted.
	Observations []ConcentrationObservation `json:"observations,omitempty"`
	DoseHistory  []DoseEvent                `json:"dose_history,omitempty"`
}

// Validate checks the invariants the PK pipeline relies on. Computation never
// proceeds on invalid input.
func (p *PatientInput) Validate() error {
	if p.WeightKg <= 0 {
		return fmt.Errorf("patient input validation: %w", NewValidationError("weight_kg", "must be positive", p.WeightKg))
	}
	if p.HeightCm != nil && *p.HeightCm <= 0 {
		return fmt.Errorf("patient input validation: %w", NewValidationError("height_cm", "must be positive when supplied", *p.HeightCm))
	}
	if p.AgeYears < 0 || p.AgeYears > 120 {
		return fmt.Errorf("patient input validation: %w", NewValidationError("age_yr", "must be in [0, 120] years", p.AgeYears))
	}
	if !p.Gender.IsValid() {
		return fmt.Errorf("patient input validation: %w", ErrInvalidGender)
	}
	if !p.Population.IsValid() {
		return fmt.Errorf("patient input validation: %w", ErrInvalidPopulation)
	}
	if p.SerumCreatinine <= 0 {
		return fmt.Errorf("patient input validation: %w", NewValidationError("serum_creatinine_mg_dl", "must be positive", p.SerumCreatinine))
	}
	if !p.Indication.IsValid() {
		return fmt.Errorf("patient input validation: %w", ErrInvalidIndication)
	}
	if !p.Severity.IsValid() {
		return fmt.Errorf("patient input validation: %w", ErrInvalidSeverity)
	}
	if !p.CrClMethod.IsValid() {
		return fmt.Errorf("patient input validation: %w", ErrInvalidCrClMethod)
	}
	if p.CrClMethod == CUSTOM_CRCL && p.CustomCrCl == nil {
		return fmt.Errorf("patient input validation: %w", ErrMissingCustomCrCl)
	}
	if p.CustomCrCl != nil && *p.CustomCrCl <= 0 {
		return fmt.Errorf("patient input validation: %w", NewValidationError("custom_crcl_ml_min", "must be positive", *p.CustomCrCl))
	}
	if len(p.Observations) > 0 && len(p.DoseHistory) == 0 {
		return fmt.Errorf("patient input validation: %w", ErrMissingDoseHistory)
	}
	for i := range p.Observations {
		if err := p.Observations[i].Validate(); err != nil {
			return err
		}
	}
	for i := range p.DoseHistory {
		if err := p.DoseHistory[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BodyMetrics holds the body-size derivations used by dosing formulas.
// BMI is nil when height is absent; IBW/ABW fall back to total body weight in
// that case so downstream estimation still produces a result.
type BodyMetrics struct {
	IdealKg    float64     `json:"ideal_body_weight_kg"`
	AdjustedKg float64     `json:"adjusted_body_weight_kg"`
	BMI        *float64    `json:"bmi,omitempty"`
	Category   BMICategory `json:"bmi_category"`
}

// TargetRange is a closed AUC24 interval in mg·h/L.
type TargetRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Midpoint returns the center of the band.
func (t TargetRange) Midpoint() float64 {
	return (t.Lower + t.Upper) / 2
}

// Width returns the band width.
func (t TargetRange) Width() float64 {
	return t.Upper - t.Lower
}

// Contains reports inclusive membership: a value on either bound is on target.
func (t TargetRange) Contains(v float64) bool {
	return v >= t.Lower && v <= t.Upper
}

// ScaledBy shifts the band so its midpoint is multiplied by factor while the
// band width is preserved. This is the fixed severity-scaling rule.
func (t TargetRange) ScaledBy(factor float64) TargetRange {
	mid := t.Midpoint() * factor
	half := t.Width() / 2
	return TargetRange{Lower: mid - half, Upper: mid + half}
}

// ConfidenceInterval is the shared uncertainty representation used by every
// engine output. Invariant: Lower <= Median <= Upper, Confidence in (0, 1].
type ConfidenceInterval struct {
	Lower      float64 `json:"lower"`
	Median     float64 `json:"median"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// NewConfidenceInterval builds an interval from explicit bounds.
func NewConfidenceInterval(lower, median, upper, confidence float64) (ConfidenceInterval, error) {
	ci := ConfidenceInterval{Lower: lower, Median: median, Upper: upper, Confidence: confidence}
	if err := ci.Validate(); err != nil {
		return ConfidenceInterval{}, err
	}
	return ci, nil
}

// NewConfidenceIntervalFromWidth builds an interval from a point estimate and
// a total width, split symmetrically around the estimate.
func NewConfidenceIntervalFromWidth(estimate, width, confidence float64) (ConfidenceInterval, error) {
	if width < 0 {
		return ConfidenceInterval{}, fmt.Errorf("confidence interval validation: %w", NewValidationError("width", "must be non-negative", width))
	}
	half := width / 2
	return NewConfidenceInterval(estimate-half, estimate, estimate+half, confidence)
}

// Validate enforces the interval invariants.
func (ci *ConfidenceInterval) Validate() error {
	if math.IsNaN(ci.Lower) || math.IsNaN(ci.Median) || math.IsNaN(ci.Upper) {
		return fmt.Errorf("confidence interval validation: %w", errors.New("bounds must not be NaN"))
	}
	if ci.Lower > ci.Median || ci.Median > ci.Upper {
		return fmt.Errorf("confidence interval validation: %w", ErrInvalidInterval)
	}
	if ci.Confidence <= 0 || ci.Confidence > 1 {
		return fmt.Errorf("confidence interval validation: %w", errors.New("confidence must be in (0, 1]"))
	}
	return nil
}

// Width returns upper minus lower.
func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// Contains reports inclusive membership.
func (ci ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

// PopulationPrior is the population-level distribution for the individual PK
// parameters, as supplied by a PopulationModel. Dispersion is expressed as
// log-space standard deviations (lognormal parameters stay positive).
type PopulationPrior struct {
	Population       PopulationType `json:"population_type"`
	ClearanceLPerHr  float64        `json:"clearance_l_hr"`
	VolumeL          float64        `json:"volume_l"`
	SigmaLogCL       float64        `json:"sigma_log_cl"`
	SigmaLogV        float64        `json:"sigma_log_v"`

	// Residual observation error model: sd = sqrt(add^2 + (prop*pred)^2).
	SigmaAdditive     float64 `json:"sigma_add"`
	SigmaProportional float64 `json:"sigma_prop"`
}

// PredictedLevel is a model-predicted concentration at an observation time.
type PredictedLevel struct {
	TimeHours           float64 `json:"time_hr"`
	ConcentrationMgPerL float64 `json:"conc_mg_l"`
}

// BayesianOptimizationResult reports the posterior PK parameter estimates and
// fit diagnostics. With zero observations the posterior equals the prior and
// Status is FIT_PRIOR_ONLY.
type BayesianOptimizationResult struct {
	Clearance ConfidenceInterval `json:"clearance_l_hr"`
	Volume    ConfidenceInterval `json:"volume_l"`
	AUC24     ConfidenceInterval `json:"auc24_mg_h_l"`

	ObservationCount int             `json:"observation_count"`
	Iterations       int             `json:"iterations"`
	Status           FitStatus       `json:"status"`
	Confidence       ConfidenceLevel `json:"confidence"`
	RMSEMgPerL       float64         `json:"rmse_mg_l"`
	PredictedLevels  []PredictedLevel `json:"predicted_levels,omitempty"`
}

// SafetyMessage is a structured advisory attached to a dosing result. Code is
// a stable machine-readable identifier; the presentation layer localizes it.
type SafetyMessage struct {
	Kind    SafetyKind `json:"kind"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// CandidateRegimen is a dose/interval pair evaluated by the optimizer.
type CandidateRegimen struct {
	DoseMg          float64 `json:"dose_mg"`
	IntervalHours   float64 `json:"interval_hr"`
	InfusionHours   float64 `json:"infusion_hr"`
	DailyDoseMg     float64 `json:"daily_dose_mg"`
	AUC24Median     float64 `json:"auc24_median"`
	PredictedPeak   float64 `json:"predicted_peak_mg_l"`
	PredictedTrough float64 `json:"predicted_trough_mg_l"`
}

// DosingResult is the recommendation handed to the presentation layer. It is
// always renderable: when no candidate satisfied the safety bounds, Status is
// REGIMEN_OUT_OF_RANGE and the nearest feasible regimen is still populated.
type DosingResult struct {
	DoseMg        float64 `json:"dose_mg"`
	IntervalHours float64 `json:"interval_hr"`
	InfusionHours float64 `json:"infusion_hr"`
	LoadingDoseMg float64 `json:"loading_dose_mg,omitempty"`

	AUC24  ConfidenceInterval `json:"auc24_mg_h_l"`
	Target TargetRange        `json:"target_range"`

	PredictedPeak   float64 `json:"predicted_peak_mg_l"`
	PredictedTrough float64 `json:"predicted_trough_mg_l"`

	CreatinineClearance float64    `json:"crcl_ml_min"`
	CrClMethod          CrClMethod `json:"crcl_method"`
	Bayesian            bool       `json:"bayesian"`

	Status OptimizationStatus `json:"status"`
	Safety []SafetyMessage    `json:"safety,omitempty"`

	CalculatedAt time.Time `json:"calculated_at"`
}

// OnTarget reports whether the predicted AUC24 median falls inside the target
// band, inclusive on both bounds.
func (r *DosingResult) OnTarget() bool {
	return r.Target.Contains(r.AUC24.Median)
}

// DailyDose returns the total maintenance dose per 24 hours.
func (r *DosingResult) DailyDose() float64 {
	if r.IntervalHours <= 0 {
		return 0
	}
	return r.DoseMg * (24 / r.IntervalHours)
}
