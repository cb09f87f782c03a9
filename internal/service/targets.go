package service

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/pkg/pkmodel"
)

// TargetService resolves the therapeutic AUC24 window for a patient and
// evaluates candidate regimens against it. The base window comes from the
// indication; infection severity scales the midpoint upward while preserving
// the width of the band.
type TargetService struct {
	logger     *logrus.Logger
	confidence float64
}

// NewTargetService creates a target evaluator at the configured confidence
// level.
func NewTargetService(logger *logrus.Logger, cfg *domain.EngineConfig) *TargetService {
	confidence := cfg.ConfidenceLevel
	if confidence <= 0 || confidence > 1 {
		confidence = 0.95
	}
	return &TargetService{logger: logger, confidence: confidence}
}

// ResolveTarget returns the AUC24 window for the indication and severity.
func (s *TargetService) ResolveTarget(indication domain.Indication, severity domain.InfectionSeverity) (domain.TargetRange, error) {
	if !indication.IsValid() {
		return domain.TargetRange{}, fmt.Errorf("resolve target: %w: %s", domain.ErrInvalidIndication, indication)
	}
	if !severity.IsValid() {
		return domain.TargetRange{}, fmt.Errorf("resolve target: %w: %s", domain.ErrInvalidSeverity, severity)
	}
	target := indication.TargetRange().ScaledBy(severity.Multiplier())

	s.logger.WithFields(logrus.Fields{
		"indication":  indication.String(),
		"severity":    severity.String(),
		"auc24_lower": target.Lower,
		"auc24_upper": target.Upper,
	}).Debug("Resolved therapeutic AUC24 window")

	return target, nil
}

// EvaluateAUC24 computes the steady-state AUC24 of a regimen under the
// posterior clearance estimate, with a confidence interval propagated from
// the clearance dispersion. AUC is inversely proportional to clearance, so
// the upper clearance quantile yields the lower AUC quantile.
func (s *TargetService) EvaluateAUC24(doseMg, intervalHours float64, clearance domain.ConfidenceInterval) (domain.ConfidenceInterval, error) {
	if doseMg <= 0 {
		return domain.ConfidenceInterval{}, fmt.Errorf("evaluate auc24: dose must be positive, got %.1f", doseMg)
	}
	if intervalHours <= 0 {
		return domain.ConfidenceInterval{}, fmt.Errorf("evaluate auc24: %w: %.1f", domain.ErrInvalidInterval, intervalHours)
	}
	if clearance.Median <= 0 || clearance.Lower <= 0 || clearance.Upper <= 0 {
		return domain.ConfidenceInterval{}, fmt.Errorf("evaluate auc24: clearance bounds must be positive")
	}

	return domain.NewConfidenceInterval(
		pkmodel.SteadyStateAUC24(doseMg, intervalHours, clearance.Upper),
		pkmodel.SteadyStateAUC24(doseMg, intervalHours, clearance.Median),
		pkmodel.SteadyStateAUC24(doseMg, intervalHours, clearance.Lower),
		clearance.Confidence,
	)
}

// DistanceToMidpoint scores a regimen by how far its median AUC24 lies from
// the center of the target window. Lower is better.
func (s *TargetService) DistanceToMidpoint(auc24Median float64, target domain.TargetRange) float64 {
	return math.Abs(auc24Median - target.Midpoint())
}
