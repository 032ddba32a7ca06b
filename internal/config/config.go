package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RatingThresholds maps weighted confidence onto the ordinal rating scale.
// A confidence below Satisfactory rates NEEDS_IMPROVEMENT; at or above
// VeryGood rates VERY_GOOD.
type RatingThresholds struct {
	Satisfactory float64
	Good         float64
	VeryGood     float64
}

// FallbackRange bounds the confidence an offline fallback result may report.
type FallbackRange struct {
	Min float64
	Max float64
}

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	RedisURL string
	NATSURL  string

	AgentTimeout   time.Duration
	QuorumMinimum  int
	HistoryCap     int
	ResultCacheTTL time.Duration

	DefaultThresholds RatingThresholds
	TypeThresholds    map[string]RatingThresholds
	FallbackRanges    map[string]FallbackRange
	FuzzyThreshold    float64

	OpenAIAPIKey    string
	OpenAIModel     string
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string

	ReportSender string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ThresholdsFor returns the rating thresholds for a validation type, falling
// back to the defaults when the type has no override.
func (c Config) ThresholdsFor(validationType string) RatingThresholds {
	if t, ok := c.TypeThresholds[validationType]; ok {
		return t
	}
	return c.DefaultThresholds
}

// FallbackRangeFor returns the offline confidence range for a validation type.
func (c Config) FallbackRangeFor(validationType string) FallbackRange {
	if r, ok := c.FallbackRanges[validationType]; ok {
		return r
	}
	return FallbackRange{Min: 0.45, Max: 0.75}
}

var validationTypes = []string{
	"general_validation",
	"crypto_audit",
	"betting_algorithm",
	"security_testing",
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VERDICT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Verdict API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("agent.timeout", "30s")
	v.SetDefault("quorum.min_agents", 2)
	v.SetDefault("history.cap", 10)
	v.SetDefault("cache.result_ttl", "10m")
	v.SetDefault("classifier.fuzzy_threshold", 0.8)
	v.SetDefault("rating.satisfactory", 0.5)
	v.SetDefault("rating.good", 0.7)
	v.SetDefault("rating.very_good", 0.85)
	v.SetDefault("fallback.min", 0.45)
	v.SetDefault("fallback.max", 0.75)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("report.sender", "validation@verdict.dev")

	timeout, err := time.ParseDuration(v.GetString("agent.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid agent timeout: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("cache.result_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid result cache ttl: %w", err)
	}

	defaults := RatingThresholds{
		Satisfactory: v.GetFloat64("rating.satisfactory"),
		Good:         v.GetFloat64("rating.good"),
		VeryGood:     v.GetFloat64("rating.very_good"),
	}
	if defaults.Satisfactory > defaults.Good || defaults.Good > defaults.VeryGood {
		return Config{}, fmt.Errorf("rating thresholds must be ordered: satisfactory <= good <= very_good")
	}

	typeThresholds := make(map[string]RatingThresholds)
	fallbackRanges := make(map[string]FallbackRange)
	for _, vt := range validationTypes {
		override := defaults
		overridden := false
		for _, field := range []struct {
			key string
			dst *float64
		}{
			{fmt.Sprintf("rating.%s.satisfactory", vt), &override.Satisfactory},
			{fmt.Sprintf("rating.%s.good", vt), &override.Good},
			{fmt.Sprintf("rating.%s.very_good", vt), &override.VeryGood},
		} {
			if v.IsSet(field.key) {
				*field.dst = v.GetFloat64(field.key)
				overridden = true
			}
		}
		if overridden {
			typeThresholds[vt] = override
		}

		rng := FallbackRange{Min: v.GetFloat64("fallback.min"), Max: v.GetFloat64("fallback.max")}
		if v.IsSet(fmt.Sprintf("fallback.%s.min", vt)) {
			rng.Min = v.GetFloat64(fmt.Sprintf("fallback.%s.min", vt))
		}
		if v.IsSet(fmt.Sprintf("fallback.%s.max", vt)) {
			rng.Max = v.GetFloat64(fmt.Sprintf("fallback.%s.max", vt))
		}
		if rng.Min > rng.Max {
			return Config{}, fmt.Errorf("fallback range for %s is inverted", vt)
		}
		fallbackRanges[vt] = rng
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		AgentTimeout:      timeout,
		QuorumMinimum:     v.GetInt("quorum.min_agents"),
		HistoryCap:        v.GetInt("history.cap"),
		ResultCacheTTL:    cacheTTL,
		DefaultThresholds: defaults,
		TypeThresholds:    typeThresholds,
		FallbackRanges:    fallbackRanges,
		FuzzyThreshold:    v.GetFloat64("classifier.fuzzy_threshold"),
		OpenAIAPIKey:      v.GetString("openai.api_key"),
		OpenAIModel:       v.GetString("openai.model"),
		DeepSeekAPIKey:    v.GetString("deepseek.api_key"),
		DeepSeekBaseURL:   v.GetString("deepseek.base_url"),
		DeepSeekModel:     v.GetString("deepseek.model"),
		ReportSender:      v.GetString("report.sender"),
	}

	if cfg.QuorumMinimum < 1 {
		cfg.QuorumMinimum = 2
	}

	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 10
	}

	return cfg, nil
}
