package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/verdictlabs/verdict-api/internal/config"
	"github.com/verdictlabs/verdict-api/internal/models"
	"github.com/verdictlabs/verdict-api/pkg/agent"
)

// ErrQuorumNotMet signals that too few agents succeeded to synthesize a live
// consensus. It is handled internally by falling back and never surfaces to
// clients.
var ErrQuorumNotMet = errors.New("quorum not met")

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verdict",
		Subsystem: "consensus",
		Name:      "validations_total",
		Help:      "Total number of consensus validations by type and mode",
	}, []string{"validation_type", "mode"})

	consensusConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verdict",
		Subsystem: "consensus",
		Name:      "confidence",
		Help:      "Distribution of weighted consensus confidence",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"validation_type"})
)

// Orchestrator dispatches a submission to every configured agent concurrently
// and aggregates the surviving results into one consensus verdict. It holds
// no per-call state; concurrent submissions produce independent invocations.
type Orchestrator struct {
	agents     []agent.Agent
	classifier Classifier
	fallback   *FallbackCache
	redis      *redis.Client
	cfg        config.Config
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewOrchestrator creates a consensus orchestrator. The redis client is
// optional; without it completed results are simply not cached.
func NewOrchestrator(agents []agent.Agent, classifier Classifier, fallback *FallbackCache, redisClient *redis.Client, cfg config.Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		agents:     agents,
		classifier: classifier,
		fallback:   fallback,
		redis:      redisClient,
		cfg:        cfg,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		tracer:     otel.Tracer("github.com/verdictlabs/verdict-api/internal/consensus"),
	}
}

type invocation struct {
	descriptor agent.Descriptor
	result     agent.Result
	err        error
}

// Validate runs the full consensus pipeline for one submission. Individual
// agent failures are absorbed; when fewer than the configured quorum succeed
// the fallback cache supplies an offline result instead of an error.
func (o *Orchestrator) Validate(ctx context.Context, submission models.Submission) (models.ConsensusResult, error) {
	ctx, span := o.tracer.Start(ctx, "consensus.validate", trace.WithAttributes(
		attribute.String("submission_id", submission.ID),
		attribute.String("validation_type", string(submission.ValidationType)),
		attribute.Int("agents", len(o.agents)),
	))
	defer span.End()

	if cached, ok := o.cachedResult(ctx, submission); ok {
		validationsTotal.WithLabelValues(string(submission.ValidationType), "cached").Inc()
		return cached, nil
	}

	invocations := o.dispatch(ctx, submission)

	succeeded := make([]invocation, 0, len(invocations))
	snapshot := make([]models.AgentResult, 0, len(invocations))
	for _, inv := range invocations {
		if inv.err != nil {
			o.logger.Warn().
				Err(inv.err).
				Str("submission_id", submission.ID).
				Str("agent", inv.descriptor.Name).
				Str("kind", string(agent.KindOf(inv.err))).
				Msg("agent dropped from aggregation")
			snapshot = append(snapshot, models.AgentResult{Agent: inv.descriptor.Name, Succeeded: false})
			continue
		}
		succeeded = append(succeeded, inv)
		snapshot = append(snapshot, models.AgentResult{
			Agent:       inv.result.Agent,
			Confidence:  inv.result.Confidence,
			Issues:      inv.result.Issues,
			Suggestions: inv.result.Suggestions,
			Rationale:   inv.result.Rationale,
			Duration:    inv.result.Duration,
			Succeeded:   true,
		})
	}

	if len(succeeded) < o.cfg.QuorumMinimum {
		o.logger.Warn().
			Str("submission_id", submission.ID).
			Int("succeeded", len(succeeded)).
			Int("quorum", o.cfg.QuorumMinimum).
			Msg("quorum not met, serving fallback result")
		validationsTotal.WithLabelValues(string(submission.ValidationType), "offline").Inc()
		return o.fallback.Build(submission), nil
	}

	result := o.aggregate(submission, succeeded, snapshot)
	validationsTotal.WithLabelValues(string(submission.ValidationType), "live").Inc()
	consensusConfidence.WithLabelValues(string(submission.ValidationType)).Observe(result.Confidence)
	o.cacheResult(ctx, submission, result)

	return result, nil
}

// dispatch fans out to every agent concurrently and joins the results. Each
// invocation carries its own timeout inside the adapter, so the join is
// bounded by the slowest configured agent timeout.
func (o *Orchestrator) dispatch(ctx context.Context, submission models.Submission) []invocation {
	req := agent.Request{
		Code:               submission.Code,
		ValidationType:     string(submission.ValidationType),
		Language:           submission.Language,
		HeightenedScrutiny: submission.HeightenedScrutiny,
	}

	out := make(chan invocation, len(o.agents))
	var wg sync.WaitGroup
	for _, a := range o.agents {
		wg.Add(1)
		go func(a agent.Agent) {
			defer wg.Done()
			result, err := a.Invoke(ctx, req)
			out <- invocation{descriptor: a.Descriptor(), result: result, err: err}
		}(a)
	}
	wg.Wait()
	close(out)

	invocations := make([]invocation, 0, len(o.agents))
	for inv := range out {
		invocations = append(invocations, inv)
	}
	sort.Slice(invocations, func(i, j int) bool {
		return invocations[i].descriptor.Name < invocations[j].descriptor.Name
	})
	return invocations
}

func (o *Orchestrator) aggregate(submission models.Submission, succeeded []invocation, snapshot []models.AgentResult) models.ConsensusResult {
	var weightedSum, weightTotal float64
	minConfidence, maxConfidence := 1.0, 0.0
	agentsUsed := make([]string, 0, len(succeeded))
	agentResults := make([]models.AgentResult, 0, len(succeeded))

	for _, inv := range succeeded {
		weight := inv.descriptor.Weight
		if weight <= 0 {
			weight = 1
		}
		weightedSum += inv.result.Confidence * weight
		weightTotal += weight
		if inv.result.Confidence < minConfidence {
			minConfidence = inv.result.Confidence
		}
		if inv.result.Confidence > maxConfidence {
			maxConfidence = inv.result.Confidence
		}
		agentsUsed = append(agentsUsed, inv.result.Agent)
		agentResults = append(agentResults, models.AgentResult{
			Agent:       inv.result.Agent,
			Confidence:  inv.result.Confidence,
			Issues:      inv.result.Issues,
			Suggestions: inv.result.Suggestions,
			Rationale:   inv.result.Rationale,
			Duration:    inv.result.Duration,
			Succeeded:   true,
		})
	}

	confidence := weightedSum / weightTotal
	// Guard the aggregation invariant against float drift.
	if confidence < minConfidence {
		confidence = minConfidence
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	issues := o.classifier.Classify(submission.ValidationType, agentResults)
	priority := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.Severity == models.SeverityPriority {
			priority = append(priority, issue.Text)
		}
	}

	return models.ConsensusResult{
		SubmissionID:   submission.ID,
		Rating:         RatingFor(confidence, o.cfg.ThresholdsFor(string(submission.ValidationType))),
		Confidence:     confidence,
		Issues:         issues,
		PriorityIssues: priority,
		Suggestions:    mergeSuggestions(agentResults),
		AgentResults:   snapshot,
		AgentsUsed:     agentsUsed,
		Metrics:        DeriveMetrics(submission.Code, issues, confidence),
		Offline:        false,
		CreatedAt:      time.Now().UTC(),
	}
}

// RatingFor maps a weighted confidence to its ordinal rating category.
func RatingFor(confidence float64, thresholds config.RatingThresholds) models.Rating {
	switch {
	case confidence >= thresholds.VeryGood:
		return models.RatingVeryGood
	case confidence >= thresholds.Good:
		return models.RatingGood
	case confidence >= thresholds.Satisfactory:
		return models.RatingSatisfactory
	default:
		return models.RatingNeedsImprovement
	}
}

func mergeSuggestions(results []models.AgentResult) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0)
	for _, result := range results {
		for _, suggestion := range result.Suggestions {
			key := normalizeText(suggestion)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, suggestion)
		}
	}
	return merged
}

func cacheKey(submission models.Submission) string {
	sum := sha256.Sum256([]byte(string(submission.ValidationType) + "\x00" + submission.Code))
	return fmt.Sprintf("verdict:consensus:%s", hex.EncodeToString(sum[:]))
}

func (o *Orchestrator) cachedResult(ctx context.Context, submission models.Submission) (models.ConsensusResult, bool) {
	if o.redis == nil {
		return models.ConsensusResult{}, false
	}

	raw, err := o.redis.Get(ctx, cacheKey(submission)).Result()
	if err != nil {
		return models.ConsensusResult{}, false
	}

	var result models.ConsensusResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		o.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to unmarshal cached consensus result")
		return models.ConsensusResult{}, false
	}

	result.SubmissionID = submission.ID
	result.CreatedAt = time.Now().UTC()
	return result, true
}

func (o *Orchestrator) cacheResult(ctx context.Context, submission models.Submission, result models.ConsensusResult) {
	if o.redis == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to marshal consensus result for cache")
		return
	}

	if err := o.redis.Set(ctx, cacheKey(submission), payload, o.cfg.ResultCacheTTL).Err(); err != nil {
		o.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to cache consensus result")
	}
}
