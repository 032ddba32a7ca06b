package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "Verdict API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 30*time.Second, cfg.AgentTimeout)
	require.Equal(t, 2, cfg.QuorumMinimum)
	require.Equal(t, 10, cfg.HistoryCap)
	require.Equal(t, 10*time.Minute, cfg.ResultCacheTTL)
	require.InDelta(t, 0.8, cfg.FuzzyThreshold, 0.0001)

	thresholds := cfg.ThresholdsFor("general_validation")
	require.InDelta(t, 0.5, thresholds.Satisfactory, 0.0001)
	require.InDelta(t, 0.7, thresholds.Good, 0.0001)
	require.InDelta(t, 0.85, thresholds.VeryGood, 0.0001)

	rng := cfg.FallbackRangeFor("security_testing")
	require.InDelta(t, 0.45, rng.Min, 0.0001)
	require.InDelta(t, 0.75, rng.Max, 0.0001)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("VERDICT_APP_PORT", "9090")
	t.Setenv("VERDICT_AGENT_TIMEOUT", "5s")
	t.Setenv("VERDICT_QUORUM_MIN_AGENTS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 5*time.Second, cfg.AgentTimeout)
	require.Equal(t, 3, cfg.QuorumMinimum)
}

func TestLoadPerTypeThresholdOverride(t *testing.T) {
	t.Setenv("VERDICT_RATING_CRYPTO_AUDIT_VERY_GOOD", "0.95")

	cfg, err := Load()
	require.NoError(t, err)

	crypto := cfg.ThresholdsFor("crypto_audit")
	require.InDelta(t, 0.95, crypto.VeryGood, 0.0001)

	general := cfg.ThresholdsFor("general_validation")
	require.InDelta(t, 0.85, general.VeryGood, 0.0001)
}

func TestLoadRejectsUnorderedThresholds(t *testing.T) {
	t.Setenv("VERDICT_RATING_SATISFACTORY", "0.9")
	t.Setenv("VERDICT_RATING_GOOD", "0.7")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvertedFallbackRange(t *testing.T) {
	t.Setenv("VERDICT_FALLBACK_MIN", "0.8")
	t.Setenv("VERDICT_FALLBACK_MAX", "0.5")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadAgentTimeout(t *testing.T) {
	t.Setenv("VERDICT_AGENT_TIMEOUT", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
}

func TestHTTPAddressKeepsLeadingColon(t *testing.T) {
	cfg := Config{AppPort: ":3000"}
	require.Equal(t, ":3000", cfg.HTTPAddress())
}
