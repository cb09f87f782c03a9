package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/pkg/pkmodel"
)

func adultPrior() *domain.PopulationPrior {
	return &domain.PopulationPrior{
		Population:        domain.ADULT,
		ClearanceLPerHr:   3.5,
		VolumeL:           49,
		SigmaLogCL:        0.25,
		SigmaLogV:         0.25,
		SigmaAdditive:     1.5,
		SigmaProportional: 0.15,
	}
}

// q12h 1000 mg history over 36 hours.
func standardHistory() []domain.DoseEvent {
	return []domain.DoseEvent{
		{DoseMg: 1000, StartHours: 0, InfusionHours: 1},
		{DoseMg: 1000, StartHours: 12, InfusionHours: 1},
		{DoseMg: 1000, StartHours: 24, InfusionHours: 1},
	}
}

// observationsAt simulates levels under the given parameters at the given
// times, so the fit has a known ground truth.
func observationsAt(history []domain.DoseEvent, cl, v float64, times ...float64) []domain.ConcentrationObservation {
	events := toEvents(history)
	obs := make([]domain.ConcentrationObservation, len(times))
	for i, tm := range times {
		obs[i] = domain.ConcentrationObservation{
			TimeHours:           tm,
			ConcentrationMgPerL: pkmodel.ConcentrationAt(tm, events, cl, v),
		}
	}
	return obs
}

func TestBayesianEstimator_Fit_NoObservations(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	prior := adultPrior()

	result, err := estimator.Fit(context.Background(), prior, standardHistory(), nil)
	require.NoError(t, err)

	// Posterior equals the prior exactly: population dosing.
	assert.Equal(t, domain.FIT_PRIOR_ONLY, result.Status)
	assert.Equal(t, prior.ClearanceLPerHr, result.Clearance.Median)
	assert.Equal(t, prior.VolumeL, result.Volume.Median)
	assert.Zero(t, result.ObservationCount)
	assert.Zero(t, result.Iterations)
	assert.Equal(t, domain.MEDIUM, result.Confidence)

	// Bounds follow the lognormal prior dispersion.
	assert.InDelta(t, 3.5*0.6128, result.Clearance.Lower, 0.01) // exp(-1.96*0.25)
	assert.InDelta(t, 3.5*1.6323, result.Clearance.Upper, 0.01)
}

func TestBayesianEstimator_Fit_RecoversSimulatedParameters(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	prior := adultPrior()
	history := standardHistory()

	// Peak and trough around the third dose, simulated at the prior mean
	// so the likelihood and the prior agree on the optimum.
	obs := observationsAt(history, prior.ClearanceLPerHr, prior.VolumeL, 26, 35.5)

	result, err := estimator.Fit(context.Background(), prior, history, obs)
	require.NoError(t, err)

	assert.Equal(t, domain.FIT_CONVERGED, result.Status)
	assert.Equal(t, 2, result.ObservationCount)
	assert.Equal(t, domain.HIGH, result.Confidence)
	assert.InEpsilon(t, prior.ClearanceLPerHr, result.Clearance.Median, 0.10)
	assert.InEpsilon(t, prior.VolumeL, result.Volume.Median, 0.15)
	assert.Less(t, result.RMSEMgPerL, 1.0)

	require.Len(t, result.PredictedLevels, 2)
	assert.Equal(t, 26.0, result.PredictedLevels[0].TimeHours)
}

func TestBayesianEstimator_Fit_PullsTowardObservations(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	prior := adultPrior()
	history := standardHistory()

	// Simulate a fast clearer: levels well below the prior prediction.
	obs := observationsAt(history, 5.5, 49, 26, 35.5)

	result, err := estimator.Fit(context.Background(), prior, history, obs)
	require.NoError(t, err)

	assert.Greater(t, result.Clearance.Median, prior.ClearanceLPerHr,
		"low measured levels must raise the clearance estimate")
	assert.Less(t, result.Clearance.Median, 5.5*1.2,
		"prior must still temper the estimate")
}

func TestBayesianEstimator_Fit_ObservationsNarrowTheInterval(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	prior := adultPrior()
	history := standardHistory()

	priorOnly, err := estimator.Fit(context.Background(), prior, history, nil)
	require.NoError(t, err)

	obs := observationsAt(history, prior.ClearanceLPerHr, prior.VolumeL, 26, 35.5)
	fitted, err := estimator.Fit(context.Background(), prior, history, obs)
	require.NoError(t, err)

	if fitted.Confidence != domain.LOW {
		assert.Less(t, fitted.Clearance.Width(), priorOnly.Clearance.Width(),
			"informative levels must narrow the clearance interval")
	}
}

func TestBayesianEstimator_Fit_SingleObservationIsMediumConfidence(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	prior := adultPrior()
	history := standardHistory()

	obs := observationsAt(history, prior.ClearanceLPerHr, prior.VolumeL, 35.5)

	result, err := estimator.Fit(context.Background(), prior, history, obs)
	require.NoError(t, err)
	if result.Status == domain.FIT_CONVERGED && result.Confidence != domain.LOW {
		assert.Equal(t, domain.MEDIUM, result.Confidence)
	}
}

func TestBayesianEstimator_Fit_CancelledContextReturnsBestSoFar(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	prior := adultPrior()
	history := standardHistory()
	obs := observationsAt(history, prior.ClearanceLPerHr, prior.VolumeL, 26, 35.5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := estimator.Fit(ctx, prior, history, obs)
	require.NoError(t, err, "cancellation degrades the fit, it does not fail it")
	assert.Equal(t, domain.FIT_MAX_ITERATIONS, result.Status)
	assert.Positive(t, result.Clearance.Median, "grid seed still produced an estimate")
}

func TestBayesianEstimator_Fit_ObservationsWithoutHistory(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())

	_, err := estimator.Fit(context.Background(), adultPrior(), nil, []domain.ConcentrationObservation{
		{TimeHours: 11.5, ConcentrationMgPerL: 12},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingDoseHistory))
}

func TestBayesianEstimator_Fit_NilPrior(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())
	_, err := estimator.Fit(context.Background(), nil, standardHistory(), nil)
	assert.Error(t, err)
}

func TestBayesianEstimator_HistoryAUC24(t *testing.T) {
	estimator := NewBayesianEstimator(testLogger(), testEngineConfig())

	t.Run("Interval inferred from dose spacing", func(t *testing.T) {
		ci := estimator.historyAUC24(standardHistory(), 3.5, 0.25)
		assert.InDelta(t, 571.43, ci.Median, 0.1) // 1000*(24/12)/3.5
		assert.Less(t, ci.Lower, ci.Median)
		assert.Greater(t, ci.Upper, ci.Median)
	})

	t.Run("Single dose defaults to q12h", func(t *testing.T) {
		ci := estimator.historyAUC24([]domain.DoseEvent{{DoseMg: 1500, StartHours: 0, InfusionHours: 1.5}}, 3.0, 0.25)
		assert.InDelta(t, 1000.0, ci.Median, 0.1)
	})

	t.Run("Empty history yields a zero interval", func(t *testing.T) {
		ci := estimator.historyAUC24(nil, 3.5, 0.25)
		assert.Zero(t, ci.Median)
	})
}

func TestLognormalInterval(t *testing.T) {
	ci, err := lognormalInterval(10, 0.25, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 6.128, ci.Lower, 0.005)
	assert.Equal(t, 10.0, ci.Median)
	assert.InDelta(t, 16.323, ci.Upper, 0.005)
	assert.Equal(t, 0.95, ci.Confidence)
}
