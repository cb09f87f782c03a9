package service

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
)

// RenalService estimates creatinine clearance. Estimators are registered per
// population type so a maturation-aware pediatric or neonatal model replaces
// the adult formula without changing callers.
type RenalService struct {
	logger     *logrus.Logger
	estimators map[domain.PopulationType]domain.RenalEstimator
}

// NewRenalService creates a renal service with the default per-population
// estimator registry.
func NewRenalService(logger *logrus.Logger) *RenalService {
	s := &RenalService{
		logger:     logger,
		estimators: make(map[domain.PopulationType]domain.RenalEstimator),
	}

	s.Register(domain.ADULT, &CockcroftGaultEstimator{})
	s.Register(domain.PEDIATRIC, &BedsideSchwartzEstimator{})
	s.Register(domain.NEONATE, &BedsideSchwartzEstimator{})

	return s
}

// Register installs an estimator for a population type, replacing any
// existing one.
func (s *RenalService) Register(population domain.PopulationType, estimator domain.RenalEstimator) {
	s.estimators[population] = estimator
}

// EstimateCrCl returns the creatinine clearance in mL/min for the patient.
// The custom method bypasses every formula and passes the supplied value
// through; custom without a value is a configuration error, never a silent
// default.
func (s *RenalService) EstimateCrCl(input *domain.PatientInput, metrics *domain.BodyMetrics) (float64, error) {
	if input.CrClMethod == domain.CUSTOM_CRCL {
		if input.CustomCrCl == nil {
			return 0, fmt.Errorf("renal estimation: %w", domain.ErrMissingCustomCrCl)
		}
		s.logger.WithField("crcl_ml_min", *input.CustomCrCl).Debug("Using clinician-supplied creatinine clearance")
		return *input.CustomCrCl, nil
	}

	estimator, ok := s.estimators[input.Population]
	if !ok {
		return 0, fmt.Errorf("renal estimation: no estimator registered for population %s", input.Population)
	}

	crcl, err := estimator.EstimateCrCl(input, metrics)
	if err != nil {
		return 0, fmt.Errorf("renal estimation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"population":  input.Population.String(),
		"crcl_method": input.CrClMethod.String(),
		"crcl_ml_min": crcl,
	}).Debug("Estimated creatinine clearance")

	return crcl, nil
}

// CockcroftGaultEstimator implements the adult Cockcroft-Gault formula:
//
//	CrCl = ((140 - age) * weight * sexFactor) / (72 * SCr)
//
// with the weight term selected by the configured CrClMethod.
type CockcroftGaultEstimator struct{}

// EstimateCrCl implements domain.RenalEstimator.
func (e *CockcroftGaultEstimator) EstimateCrCl(input *domain.PatientInput, metrics *domain.BodyMetrics) (float64, error) {
	weight := weightTermFor(input.CrClMethod, input.WeightKg, metrics)

	scr := math.Max(input.SerumCreatinine, 0.1)
	crcl := ((140 - input.AgeYears) * weight * input.Gender.SexFactor()) / (72 * scr)
	return math.Max(crcl, 0), nil
}

// BedsideSchwartzEstimator is the registered extension point for pediatric
// and neonatal renal function. It applies the bedside Schwartz estimate
// (k * height / SCr) when height is available and otherwise falls back to a
// weight-proportional approximation. Results for these populations are
// treated as low-confidence by the dosing pipeline.
type BedsideSchwartzEstimator struct{}

const schwartzK = 0.413

// EstimateCrCl implements domain.RenalEstimator.
func (e *BedsideSchwartzEstimator) EstimateCrCl(input *domain.PatientInput, metrics *domain.BodyMetrics) (float64, error) {
	scr := math.Max(input.SerumCreatinine, 0.1)

	if input.HeightCm != nil {
		return math.Max(schwartzK*(*input.HeightCm)/scr, 0), nil
	}

	// Without height the bedside formula cannot apply; approximate from
	// weight using the same k against an estimated stature of 2.5 cm/kg.
	return math.Max(schwartzK*(2.5*input.WeightKg)/scr, 0), nil
}

// weightTermFor selects the Cockcroft-Gault weight input per method. Custom is
// handled before the formula is reached.
func weightTermFor(method domain.CrClMethod, totalKg float64, metrics *domain.BodyMetrics) float64 {
	switch method {
	case domain.IDEAL_BODY_WEIGHT:
		return metrics.IdealKg
	case domain.ADJUSTED_BODY_WEIGHT:
		return metrics.AdjustedKg
	default:
		return totalKg
	}
}
