package domain

import (
	"context"
	"time"
)

// RenalEstimator computes creatinine clearance for one population type.
// Implementations are registered per PopulationType so a maturation-aware
// pediatric or neonatal model can replace the adult Cockcroft-Gault estimator
// without changing any caller.
type RenalEstimator interface {
	EstimateCrCl(input *PatientInput, metrics *BodyMetrics) (float64, error)
}

// PopulationModel supplies the population PK prior for one population type.
// This is the single injection point for literature constants; swapping the
// table never alters the Bayesian estimator's interface.
type PopulationModel interface {
	Prior(population PopulationType, weightKg, crClMlMin float64) (*PopulationPrior, error)
}

// ParameterEstimator produces a posterior PK parameter estimate from a prior
// and observed levels. With no observations the posterior equals the prior.
type ParameterEstimator interface {
	Fit(ctx context.Context, prior *PopulationPrior, history []DoseEvent, observations []ConcentrationObservation) (*BayesianOptimizationResult, error)
}

// CalculationStore persists calculation audit records. Collaborators read the
// count and timestamps; records never influence engine computation.
type CalculationStore interface {
	Save(ctx context.Context, record *CalculationRecord) error
	Get(ctx context.Context, id string) (*CalculationRecord, error)
	List(ctx context.Context, limit, offset int) ([]*CalculationRecord, error)
	Count(ctx context.Context) (int64, error)
	Latest(ctx context.Context) (*CalculationRecord, error)
	Close() error
}

// CalculationRecord is the audit row written once per completed calculation.
type CalculationRecord struct {
	ID               string             `json:"id"`
	RequestID        string             `json:"request_id,omitempty"`
	Population       PopulationType     `json:"population_type"`
	Indication       Indication         `json:"indication"`
	Severity         InfectionSeverity  `json:"severity"`
	CrClMethod       CrClMethod         `json:"crcl_method"`
	Bayesian         bool               `json:"bayesian"`
	ObservationCount int                `json:"observation_count"`
	DoseMg           float64            `json:"dose_mg"`
	IntervalHours    float64            `json:"interval_hr"`
	AUC24Median      float64            `json:"auc24_median"`
	Status           OptimizationStatus `json:"status"`
	ProcessingTimeMs int                `json:"processing_time_ms"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetEngineConfig() *EngineConfig
	Validate() error
}
