package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/pkg/pkmodel"
)

// Population prior dispersion and residual-error defaults. Dispersion is the
// between-subject variability of the literature models; residual error is the
// additive + proportional assay model.
const (
	defaultSigmaLogCL = 0.25
	defaultSigmaLogV  = 0.25
	defaultSigmaAdd   = 1.5  // mg/L
	defaultSigmaProp  = 0.15 // fraction of prediction

	// Neonatal clearance maturation: immature tubular secretion reduces
	// vancomycin clearance relative to the ke relationship fit in adults.
	neonateClearanceFraction = 0.6
	neonateVolumeLPerKg      = 0.8
)

// PopulationPKModel supplies the population PK prior tables. This is the one
// place literature constants enter the engine; the tables can be replaced per
// population type without touching the Bayesian estimator.
type PopulationPKModel struct {
	logger *logrus.Logger
}

// NewPopulationPKModel creates the default population model.
func NewPopulationPKModel(logger *logrus.Logger) *PopulationPKModel {
	return &PopulationPKModel{logger: logger}
}

// Prior implements domain.PopulationModel.
//
// Adult and pediatric clearance follows the renal relationship
// ke = 0.00083*CrCl + 0.0044 with V = 0.7 L/kg, so CL = ke * V scales
// allometrically through the weight term and linearly through ke. Neonates
// use a larger volume per kilogram and a maturation-reduced clearance.
func (m *PopulationPKModel) Prior(population domain.PopulationType, weightKg, crClMlMin float64) (*domain.PopulationPrior, error) {
	if weightKg <= 0 {
		return nil, fmt.Errorf("population prior: weight must be positive, got %v", weightKg)
	}
	if !population.IsValid() {
		return nil, fmt.Errorf("population prior: %w", domain.ErrInvalidPopulation)
	}

	ke := pkmodel.EliminationConstant(crClMlMin)

	var volume, clearance float64
	switch population {
	case domain.NEONATE:
		volume = neonateVolumeLPerKg * weightKg
		clearance = ke * volume * neonateClearanceFraction
	default:
		volume = pkmodel.VolumeOfDistribution(weightKg)
		clearance = ke * volume
	}

	prior := &domain.PopulationPrior{
		Population:        population,
		ClearanceLPerHr:   clearance,
		VolumeL:           volume,
		SigmaLogCL:        defaultSigmaLogCL,
		SigmaLogV:         defaultSigmaLogV,
		SigmaAdditive:     defaultSigmaAdd,
		SigmaProportional: defaultSigmaProp,
	}

	m.logger.WithFields(logrus.Fields{
		"population":      population.String(),
		"weight_kg":       weightKg,
		"crcl_ml_min":     crClMlMin,
		"clearance_l_hr":  clearance,
		"volume_l":        volume,
	}).Debug("Built population PK prior")

	return prior, nil
}
