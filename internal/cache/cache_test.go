package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanco-dosing-server/internal/domain"
)

func newTestCache(t *testing.T) *ResultCache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cache, err := NewResultCache(&domain.CacheConfig{
		DefaultTTL: time.Hour,
		LRUSize:    8,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestKey_Deterministic(t *testing.T) {
	height := 175.0
	input := &domain.PatientInput{
		WeightKg: 70, HeightCm: &height, AgeYears: 45,
		Gender: domain.MALE, Population: domain.ADULT,
		SerumCreatinine: 1.0, Indication: domain.BACTEREMIA,
		Severity: domain.MODERATE, CrClMethod: domain.TOTAL_BODY_WEIGHT,
	}

	k1, err := Key(input)
	require.NoError(t, err)
	k2, err := Key(input)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "equal inputs must produce equal keys")

	other := *input
	other.WeightKg = 71
	k3, err := Key(&other)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestResultCache_RoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		DoseMg   float64 `json:"dose_mg"`
		Interval float64 `json:"interval_hr"`
	}

	cache.Set(ctx, "dose:v1:abc", payload{DoseMg: 1250, Interval: 12})

	var got payload
	require.True(t, cache.Get(ctx, "dose:v1:abc", &got))
	assert.Equal(t, 1250.0, got.DoseMg)
	assert.Equal(t, 12.0, got.Interval)
}

func TestResultCache_Miss(t *testing.T) {
	cache := newTestCache(t)

	var got map[string]any
	assert.False(t, cache.Get(context.Background(), "dose:v1:missing", &got))
}

func TestResultCache_LRUEviction(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		cache.Set(ctx, string(rune('a'+i)), i)
	}
	assert.LessOrEqual(t, cache.Len(), 8, "LRU must bound the entry count")
}
