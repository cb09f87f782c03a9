// Package service implements the vancomycin dosing engine: anthropometrics,
// renal function estimation, population PK priors, Bayesian parameter
// fitting, AUC target evaluation, and regimen optimization.
package service

import (
	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
)

// Devine ideal-body-weight constants (kg) and the shared height term
// coefficient (kg per inch over 5 feet).
const (
	ibwBaseMaleKg   = 50.0
	ibwBaseFemaleKg = 45.5
	ibwPerInchKg    = 2.3
	cmPerInch       = 2.54
	baseHeightIn    = 60.0

	// ABW correction factor applied to the excess over ideal weight.
	abwCorrectionFactor = 0.4
)

// AnthropometricsService derives the body-size terms used by the renal
// estimator and the dose optimizer. All paths are total functions over
// validated positive inputs.
type AnthropometricsService struct {
	logger *logrus.Logger
}

// NewAnthropometricsService creates a new anthropometrics service.
func NewAnthropometricsService(logger *logrus.Logger) *AnthropometricsService {
	return &AnthropometricsService{logger: logger}
}

// Derive computes ideal body weight, adjusted body weight, BMI and BMI
// category for the patient. When height is absent, IBW and ABW fall back to
// total body weight and BMI is not computed.
func (s *AnthropometricsService) Derive(input *domain.PatientInput) *domain.BodyMetrics {
	metrics := &domain.BodyMetrics{
		IdealKg:    input.WeightKg,
		AdjustedKg: input.WeightKg,
		Category:   domain.BMI_NOT_APPLICABLE,
	}

	if input.HeightCm == nil {
		s.logger.WithFields(logrus.Fields{
			"weight_kg": input.WeightKg,
		}).Debug("Height absent, falling back to total body weight")
		return metrics
	}

	heightCm := *input.HeightCm
	metrics.IdealKg = idealBodyWeight(heightCm, input.Gender)
	metrics.AdjustedKg = adjustedBodyWeight(input.WeightKg, metrics.IdealKg)

	heightM := heightCm / 100
	bmi := input.WeightKg / (heightM * heightM)
	metrics.BMI = &bmi

	if input.Population == domain.ADULT {
		metrics.Category = adultBMICategory(bmi)
	}

	return metrics
}

// idealBodyWeight applies the Devine formula. The height term can go negative
// for very short patients; the result is floored at the base constant.
func idealBodyWeight(heightCm float64, gender domain.Gender) float64 {
	heightTerm := ibwPerInchKg * (heightCm/cmPerInch - baseHeightIn)
	if heightTerm < 0 {
		heightTerm = 0
	}

	switch gender {
	case domain.MALE:
		return ibwBaseMaleKg + heightTerm
	case domain.FEMALE:
		return ibwBaseFemaleKg + heightTerm
	default:
		return (ibwBaseMaleKg+ibwBaseFemaleKg)/2 + heightTerm
	}
}

// adjustedBodyWeight corrects for obesity: when actual weight exceeds ideal,
// 40% of the excess counts toward the dosing weight; otherwise actual weight
// is used unchanged.
func adjustedBodyWeight(actualKg, idealKg float64) float64 {
	if actualKg > idealKg {
		return idealKg + abwCorrectionFactor*(actualKg-idealKg)
	}
	return actualKg
}

// adultBMICategory maps BMI to the WHO adult bands.
func adultBMICategory(bmi float64) domain.BMICategory {
	switch {
	case bmi < 18.5:
		return domain.UNDERWEIGHT
	case bmi < 25:
		return domain.NORMAL_WEIGHT
	case bmi < 30:
		return domain.OVERWEIGHT
	default:
		return domain.OBESE
	}
}
