package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
)

// DoseAssessment bundles the dosing recommendation with the intermediate
// results the presentation layer reports alongside it.
type DoseAssessment struct {
	Result    *domain.DosingResult             `json:"result"`
	Fit       *domain.BayesianOptimizationResult `json:"fit"`
	Metrics   *domain.BodyMetrics              `json:"body_metrics"`
	CrClMlMin float64                          `json:"crcl_ml_min"`
}

// DosingService orchestrates a full dose calculation: anthropometrics, renal
// function, population prior, Bayesian individualization, target resolution,
// and regimen optimization. Calculations are pure with respect to the audit
// store; a store failure degrades to a log entry, never a failed request.
type DosingService struct {
	logger    *logrus.Logger
	anthro    *AnthropometricsService
	renal     *RenalService
	priors    domain.PopulationModel
	estimator domain.ParameterEstimator
	targets   *TargetService
	optimizer *DoseOptimizer
	store     domain.CalculationStore
}

// NewDosingService wires the calculation pipeline. The store may be nil when
// auditing is disabled.
func NewDosingService(logger *logrus.Logger, cfg *domain.EngineConfig, store domain.CalculationStore) *DosingService {
	targets := NewTargetService(logger, cfg)
	return &DosingService{
		logger:    logger,
		anthro:    NewAnthropometricsService(logger),
		renal:     NewRenalService(logger),
		priors:    NewPopulationPKModel(logger),
		estimator: NewBayesianEstimator(logger, cfg),
		targets:   targets,
		optimizer: NewDoseOptimizer(logger, targets, cfg),
		store:     store,
	}
}

// CalculateDose runs the full pipeline for one patient. The same input always
// produces the same recommendation; only the timestamp differs between calls.
func (s *DosingService) CalculateDose(ctx context.Context, input *domain.PatientInput, requestID string) (*DoseAssessment, error) {
	started := time.Now()

	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("calculate dose: %w", err)
	}

	metrics := s.anthro.Derive(input)

	crCl, err := s.renal.EstimateCrCl(input, metrics)
	if err != nil {
		return nil, fmt.Errorf("calculate dose: %w", err)
	}

	prior, err := s.priors.Prior(input.Population, input.WeightKg, crCl)
	if err != nil {
		return nil, fmt.Errorf("calculate dose: %w", err)
	}

	fit, err := s.estimator.Fit(ctx, prior, input.DoseHistory, input.Observations)
	if err != nil {
		return nil, fmt.Errorf("calculate dose: %w", err)
	}

	target, err := s.targets.ResolveTarget(input.Indication, input.Severity)
	if err != nil {
		return nil, fmt.Errorf("calculate dose: %w", err)
	}

	preferredInterval := PreferredInterval(crCl)
	selection, err := s.optimizer.Optimize(ctx, fit.Clearance, fit.Volume, target, input.WeightKg, preferredInterval)
	if err != nil {
		return nil, fmt.Errorf("calculate dose: %w", err)
	}

	result := &domain.DosingResult{
		DoseMg:              selection.Regimen.DoseMg,
		IntervalHours:       selection.Regimen.IntervalHours,
		InfusionHours:       selection.Regimen.InfusionHours,
		LoadingDoseMg:       s.optimizer.LoadingDose(input.WeightKg, input.Severity),
		AUC24:               selection.AUC24,
		Target:              target,
		PredictedPeak:       selection.Regimen.PredictedPeak,
		PredictedTrough:     selection.Regimen.PredictedTrough,
		CreatinineClearance: crCl,
		CrClMethod:          input.CrClMethod,
		Bayesian:            len(input.Observations) > 0,
		Status:              selection.Status,
		Safety:              append(selection.Safety, s.patientAdvisories(crCl, fit)...),
		CalculatedAt:        time.Now().UTC(),
	}

	assessment := &DoseAssessment{
		Result:    result,
		Fit:       fit,
		Metrics:   metrics,
		CrClMlMin: crCl,
	}

	s.audit(ctx, input, requestID, result, fit, time.Since(started))

	s.logger.WithFields(logrus.Fields{
		"request_id":         requestID,
		"population":         input.Population.String(),
		"indication":         input.Indication.String(),
		"crcl_ml_min":        crCl,
		"preferred_interval": preferredInterval,
		"dose_mg":            result.DoseMg,
		"interval_hr":        result.IntervalHours,
		"auc24_median":       result.AUC24.Median,
		"status":             result.Status.String(),
		"fit_status":         fit.Status.String(),
		"processing_ms":      time.Since(started).Milliseconds(),
	}).Info("Completed dose calculation")

	return assessment, nil
}

// FitParameters runs the pipeline up to the Bayesian fit, for callers that
// want individualized PK parameters without a regimen recommendation.
func (s *DosingService) FitParameters(ctx context.Context, input *domain.PatientInput) (*domain.BayesianOptimizationResult, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("fit parameters: %w", err)
	}

	metrics := s.anthro.Derive(input)
	crCl, err := s.renal.EstimateCrCl(input, metrics)
	if err != nil {
		return nil, fmt.Errorf("fit parameters: %w", err)
	}
	prior, err := s.priors.Prior(input.Population, input.WeightKg, crCl)
	if err != nil {
		return nil, fmt.Errorf("fit parameters: %w", err)
	}
	fit, err := s.estimator.Fit(ctx, prior, input.DoseHistory, input.Observations)
	if err != nil {
		return nil, fmt.Errorf("fit parameters: %w", err)
	}
	return fit, nil
}

// patientAdvisories raises advisories driven by patient state rather than the
// selected regimen.
func (s *DosingService) patientAdvisories(crCl float64, fit *domain.BayesianOptimizationResult) []domain.SafetyMessage {
	var msgs []domain.SafetyMessage
	if crCl < 30 {
		msgs = append(msgs, domain.SafetyMessage{
			Kind:    domain.SAFETY_INFO,
			Code:    "REDUCED_RENAL_FUNCTION",
			Message: fmt.Sprintf("creatinine clearance %.0f mL/min; recheck levels before the third dose", crCl),
		})
	}
	if fit.Confidence == domain.LOW {
		msgs = append(msgs, domain.SafetyMessage{
			Kind:    domain.SAFETY_INFO,
			Code:    "LOW_CONFIDENCE_FIT",
			Message: "parameter estimate has low confidence; obtain an additional level before adjusting further",
		})
	}
	return msgs
}

// audit persists the calculation record when a store is configured. Failures
// are logged and otherwise ignored.
func (s *DosingService) audit(ctx context.Context, input *domain.PatientInput, requestID string, result *domain.DosingResult, fit *domain.BayesianOptimizationResult, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	record := &domain.CalculationRecord{
		ID:               uuid.New().String(),
		RequestID:        requestID,
		Population:       input.Population,
		Indication:       input.Indication,
		Severity:         input.Severity,
		CrClMethod:       input.CrClMethod,
		Bayesian:         result.Bayesian,
		ObservationCount: fit.ObservationCount,
		DoseMg:           result.DoseMg,
		IntervalHours:    result.IntervalHours,
		AUC24Median:      result.AUC24.Median,
		Status:           result.Status,
		ProcessingTimeMs: int(elapsed.Milliseconds()),
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.Save(ctx, record); err != nil {
		s.logger.WithError(err).WithField("request_id", requestID).Warn("Failed to persist calculation record")
	}
}
