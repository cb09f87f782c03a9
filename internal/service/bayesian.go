package service

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/pkg/pkmodel"
)

// Physical floors for the posterior estimates. A fit that lands below these is
// clipped and reported as degraded rather than propagating non-physical
// parameters.
const (
	clearanceFloorLPerHr = 0.05
	volumeFloorL         = 1.0

	hessianEps = 1e-3

	stepToleranceCL = 0.05
	stepToleranceV  = 0.5
	stepShrink      = 0.6
)

// BayesianEstimator performs maximum-a-posteriori estimation of individual
// clearance and volume. The one-compartment infusion model is the likelihood
// (additive + proportional residual error) and the population prior is a
// lognormal prior on both parameters. The posterior covariance comes from a
// Laplace approximation in log space.
type BayesianEstimator struct {
	logger        *logrus.Logger
	maxIterations int
	gridPoints    int
	confidence    float64
}

// NewBayesianEstimator creates an estimator with the configured iteration cap
// and search resolution.
func NewBayesianEstimator(logger *logrus.Logger, cfg *domain.EngineConfig) *BayesianEstimator {
	maxIter := cfg.MaxFitIterations
	if maxIter <= 0 {
		maxIter = 30
	}
	grid := cfg.GridPoints
	if grid <= 0 {
		grid = 48
	}
	confidence := cfg.ConfidenceLevel
	if confidence <= 0 || confidence > 1 {
		confidence = 0.95
	}
	return &BayesianEstimator{
		logger:        logger,
		maxIterations: maxIter,
		gridPoints:    grid,
		confidence:    confidence,
	}
}

// Fit implements domain.ParameterEstimator.
//
// With zero observations the posterior equals the prior exactly (population
// dosing). With observations, a coarse grid seed around the prior mean is
// refined by coordinate descent with shrinking steps; the loop is capped at
// the configured iteration count and checks the context between iterations,
// returning the best candidate found so far on cancellation.
func (e *BayesianEstimator) Fit(
	ctx context.Context,
	prior *domain.PopulationPrior,
	history []domain.DoseEvent,
	observations []domain.ConcentrationObservation,
) (*domain.BayesianOptimizationResult, error) {
	if prior == nil {
		return nil, fmt.Errorf("bayesian fit: prior is required")
	}

	if len(observations) == 0 {
		return e.priorOnlyResult(prior, history), nil
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("bayesian fit: %w", domain.ErrMissingDoseHistory)
	}

	events := toEvents(history)

	// Grid seed around the prior mean.
	cl, v := e.gridSeed(prior, events, observations)

	// Coordinate descent refinement.
	cl, v, iterations, converged := e.refine(ctx, prior, events, observations, cl, v)

	status := domain.FIT_CONVERGED
	if !converged {
		status = domain.FIT_MAX_ITERATIONS
	}

	clipped := false
	if cl < clearanceFloorLPerHr {
		cl = clearanceFloorLPerHr
		clipped = true
	}
	if v < volumeFloorL {
		v = volumeFloorL
		clipped = true
	}
	if clipped {
		status = domain.FIT_CLIPPED
	}

	// Laplace approximation for the posterior dispersion. An
	// ill-conditioned Hessian falls back to the prior dispersion and the
	// result is reported as low confidence instead of failing hard.
	sigmaCL, sigmaV, wellConditioned := e.laplaceSigmas(prior, events, observations, cl, v)

	clCI, err := lognormalInterval(cl, sigmaCL, e.confidence)
	if err != nil {
		return nil, fmt.Errorf("bayesian fit: clearance interval: %w", err)
	}
	vCI, err := lognormalInterval(v, sigmaV, e.confidence)
	if err != nil {
		return nil, fmt.Errorf("bayesian fit: volume interval: %w", err)
	}

	predicted, rmse := e.predictLevels(events, observations, cl, v)

	result := &domain.BayesianOptimizationResult{
		Clearance:        clCI,
		Volume:           vCI,
		AUC24:            e.historyAUC24(history, cl, sigmaCL),
		ObservationCount: len(observations),
		Iterations:       iterations,
		Status:           status,
		Confidence:       e.determineConfidence(status, len(observations), wellConditioned),
		RMSEMgPerL:       rmse,
		PredictedLevels:  predicted,
	}

	e.logger.WithFields(logrus.Fields{
		"observations":   len(observations),
		"iterations":     iterations,
		"fit_status":     status.String(),
		"clearance_l_hr": cl,
		"volume_l":       v,
		"rmse_mg_l":      rmse,
	}).Info("Completed Bayesian parameter fit")

	return result, nil
}

// priorOnlyResult returns the population prior unchanged as the posterior.
func (e *BayesianEstimator) priorOnlyResult(prior *domain.PopulationPrior, history []domain.DoseEvent) *domain.BayesianOptimizationResult {
	clCI, _ := lognormalInterval(prior.ClearanceLPerHr, prior.SigmaLogCL, e.confidence)
	vCI, _ := lognormalInterval(prior.VolumeL, prior.SigmaLogV, e.confidence)

	return &domain.BayesianOptimizationResult{
		Clearance:        clCI,
		Volume:           vCI,
		AUC24:            e.historyAUC24(history, prior.ClearanceLPerHr, prior.SigmaLogCL),
		ObservationCount: 0,
		Iterations:       0,
		Status:           domain.FIT_PRIOR_ONLY,
		Confidence:       domain.MEDIUM,
	}
}

// gridSeed scans a coarse grid around the prior mean and returns the best
// starting point for refinement.
func (e *BayesianEstimator) gridSeed(prior *domain.PopulationPrior, events []pkmodel.Event, obs []domain.ConcentrationObservation) (float64, float64) {
	clLo := math.Max(clearanceFloorLPerHr, prior.ClearanceLPerHr*0.3)
	clHi := prior.ClearanceLPerHr * 2.5
	vLo := math.Max(volumeFloorL, prior.VolumeL*0.3)
	vHi := prior.VolumeL * 2.5

	bestCL, bestV := prior.ClearanceLPerHr, prior.VolumeL
	bestNLP := e.negLogPosterior(bestCL, bestV, prior, events, obs)

	n := e.gridPoints
	for i := 0; i < n; i++ {
		cl := clLo + (clHi-clLo)*float64(i)/float64(n-1)
		for j := 0; j < n; j++ {
			v := vLo + (vHi-vLo)*float64(j)/float64(n-1)
			nlp := e.negLogPosterior(cl, v, prior, events, obs)
			if nlp < bestNLP {
				bestNLP, bestCL, bestV = nlp, cl, v
			}
		}
	}
	return bestCL, bestV
}

// refine runs coordinate descent with shrinking steps from the grid seed.
// Returns the refined estimate, the iteration count, and whether the step
// tolerance was met within the cap.
func (e *BayesianEstimator) refine(
	ctx context.Context,
	prior *domain.PopulationPrior,
	events []pkmodel.Event,
	obs []domain.ConcentrationObservation,
	cl, v float64,
) (float64, float64, int, bool) {
	stepCL := math.Max(prior.ClearanceLPerHr*0.05, 0.2)
	stepV := math.Max(prior.VolumeL*0.05, 2.0)

	iterations := 0
	for iterations < e.maxIterations {
		if ctx.Err() != nil {
			e.logger.WithField("iterations", iterations).Warn("Fit cancelled, returning best-so-far estimate")
			return cl, v, iterations, false
		}
		iterations++

		base := e.negLogPosterior(cl, v, prior, events, obs)
		improved := false
		for _, cand := range [][2]float64{
			{cl + stepCL, v},
			{math.Max(clearanceFloorLPerHr, cl - stepCL), v},
			{cl, v + stepV},
			{cl, math.Max(volumeFloorL, v - stepV)},
		} {
			nlp := e.negLogPosterior(cand[0], cand[1], prior, events, obs)
			if nlp < base {
				cl, v, base = cand[0], cand[1], nlp
				improved = true
			}
		}

		if !improved {
			stepCL *= stepShrink
			stepV *= stepShrink
			if stepCL < stepToleranceCL && stepV < stepToleranceV {
				return cl, v, iterations, true
			}
		}
	}
	return cl, v, iterations, false
}

// negLogPosterior is the objective minimized by the MAP search.
func (e *BayesianEstimator) negLogPosterior(cl, v float64, prior *domain.PopulationPrior, events []pkmodel.Event, obs []domain.ConcentrationObservation) float64 {
	lp := lognormalLogPDF(cl, prior.ClearanceLPerHr, prior.SigmaLogCL) +
		lognormalLogPDF(v, prior.VolumeL, prior.SigmaLogV)
	return -(lp + e.logLikelihood(cl, v, prior, events, obs))
}

// logLikelihood evaluates the observation likelihood under the residual error
// model sd = sqrt(add^2 + (prop*pred)^2).
func (e *BayesianEstimator) logLikelihood(cl, v float64, prior *domain.PopulationPrior, events []pkmodel.Event, obs []domain.ConcentrationObservation) float64 {
	var ll float64
	for _, o := range obs {
		pred := pkmodel.ConcentrationAt(o.TimeHours, events, cl, v)
		sigma := math.Sqrt(prior.SigmaAdditive*prior.SigmaAdditive + (prior.SigmaProportional*pred)*(prior.SigmaProportional*pred))
		if sigma < 1e-6 {
			sigma = 1e-6
		}
		resid := o.ConcentrationMgPerL - pred
		ll += -0.5 * ((resid/sigma)*(resid/sigma) + math.Log(2*math.Pi*sigma*sigma))
	}
	return ll
}

// laplaceSigmas computes the posterior log-space standard deviations from a
// finite-difference Hessian of the objective at the MAP point, parameterized
// in log space so the curvature is scale-free. Reports whether the Hessian
// was well conditioned; otherwise the prior dispersion is returned.
func (e *BayesianEstimator) laplaceSigmas(prior *domain.PopulationPrior, events []pkmodel.Event, obs []domain.ConcentrationObservation, cl, v float64) (float64, float64, bool) {
	nlp := func(logCL, logV float64) float64 {
		return e.negLogPosterior(math.Exp(logCL), math.Exp(logV), prior, events, obs)
	}

	x0, x1 := math.Log(cl), math.Log(v)
	f0 := nlp(x0, x1)

	h00 := (nlp(x0+hessianEps, x1) - 2*f0 + nlp(x0-hessianEps, x1)) / (hessianEps * hessianEps)
	h11 := (nlp(x0, x1+hessianEps) - 2*f0 + nlp(x0, x1-hessianEps)) / (hessianEps * hessianEps)
	h01 := (nlp(x0+hessianEps, x1+hessianEps) - nlp(x0+hessianEps, x1-hessianEps) -
		nlp(x0-hessianEps, x1+hessianEps) + nlp(x0-hessianEps, x1-hessianEps)) / (4 * hessianEps * hessianEps)

	det := h00*h11 - h01*h01
	if det <= 0 || h00 <= 0 || h11 <= 0 {
		e.logger.Warn("Ill-conditioned Hessian, falling back to prior dispersion")
		return prior.SigmaLogCL, prior.SigmaLogV, false
	}

	// Covariance is the inverse Hessian; 2x2 inverse in closed form.
	varCL := h11 / det
	varV := h00 / det
	if varCL <= 0 || varV <= 0 {
		return prior.SigmaLogCL, prior.SigmaLogV, false
	}
	return math.Sqrt(varCL), math.Sqrt(varV), true
}

// predictLevels evaluates the fitted model at each observation time and
// returns the predictions with the root-mean-square error of the fit.
func (e *BayesianEstimator) predictLevels(events []pkmodel.Event, obs []domain.ConcentrationObservation, cl, v float64) ([]domain.PredictedLevel, float64) {
	predicted := make([]domain.PredictedLevel, len(obs))
	var sumSq float64
	for i, o := range obs {
		pred := pkmodel.ConcentrationAt(o.TimeHours, events, cl, v)
		predicted[i] = domain.PredictedLevel{TimeHours: o.TimeHours, ConcentrationMgPerL: pred}
		diff := o.ConcentrationMgPerL - pred
		sumSq += diff * diff
	}
	rmse := math.Sqrt(sumSq / float64(len(obs)))
	return predicted, rmse
}

// historyAUC24 estimates the steady-state AUC24 of the regimen implied by the
// dose history (first dose amount, spacing of the first two doses, defaulting
// to q12h for a single recorded dose), as a confidence interval over the
// clearance dispersion.
func (e *BayesianEstimator) historyAUC24(history []domain.DoseEvent, cl, sigmaLogCL float64) domain.ConfidenceInterval {
	if len(history) == 0 {
		return domain.ConfidenceInterval{}
	}
	interval := 12.0
	if len(history) > 1 {
		interval = history[1].StartHours - history[0].StartHours
	}
	if interval <= 0 {
		interval = 12.0
	}

	median := pkmodel.SteadyStateAUC24(history[0].DoseMg, interval, cl)
	z := zScore(e.confidence)
	// AUC is inversely proportional to clearance, so the clearance
	// quantiles map to swapped AUC quantiles.
	ci := domain.ConfidenceInterval{
		Lower:      median * math.Exp(-z*sigmaLogCL),
		Median:     median,
		Upper:      median * math.Exp(z*sigmaLogCL),
		Confidence: e.confidence,
	}
	return ci
}

// determineConfidence assigns the qualitative confidence for the fit.
func (e *BayesianEstimator) determineConfidence(status domain.FitStatus, observations int, wellConditioned bool) domain.ConfidenceLevel {
	if !wellConditioned {
		return domain.LOW
	}
	switch status {
	case domain.FIT_CONVERGED:
		if observations >= 2 {
			return domain.HIGH
		}
		return domain.MEDIUM
	case domain.FIT_PRIOR_ONLY:
		return domain.MEDIUM
	default:
		return domain.LOW
	}
}

// lognormalLogPDF evaluates the log density of a lognormal with the given
// median and log-space sigma.
func lognormalLogPDF(x, median, sigmaLog float64) float64 {
	x = math.Max(x, 1e-9)
	mu := math.Log(math.Max(median, 1e-9))
	s := math.Max(sigmaLog, 1e-6)
	d := math.Log(x) - mu
	return -math.Log(x*s*math.Sqrt(2*math.Pi)) - d*d/(2*s*s)
}

// lognormalInterval builds a confidence interval for a lognormally
// distributed parameter from its median and log-space sigma.
func lognormalInterval(median, sigmaLog, confidence float64) (domain.ConfidenceInterval, error) {
	z := zScore(confidence)
	return domain.NewConfidenceInterval(
		median*math.Exp(-z*sigmaLog),
		median,
		median*math.Exp(z*sigmaLog),
		confidence,
	)
}

// zScore returns the two-sided normal quantile for the supported confidence
// levels. Unlisted levels use the 95% quantile.
func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.5758
	case confidence >= 0.95:
		return 1.9600
	case confidence >= 0.90:
		return 1.6449
	case confidence >= 0.80:
		return 1.2816
	default:
		return 1.9600
	}
}

// toEvents converts the domain dose history to model events.
func toEvents(history []domain.DoseEvent) []pkmodel.Event {
	events := make([]pkmodel.Event, len(history))
	for i, d := range history {
		events[i] = pkmodel.Event{
			DoseMg:        d.DoseMg,
			StartHours:    d.StartHours,
			InfusionHours: d.InfusionHours,
		}
	}
	return events
}
