package consensus

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/verdictlabs/verdict-api/internal/config"
	"github.com/verdictlabs/verdict-api/internal/models"
)

// cannedPool holds the offline findings available for one validation type.
type cannedPool struct {
	issues      []string
	suggestions []string
}

var fallbackPools = map[models.ValidationType]cannedPool{
	models.ValidationGeneral: {
		issues: []string{
			"Missing input validation on user-supplied values",
			"Function lacks error handling for edge cases",
			"Variable naming obscures intent",
			"Long function mixes multiple responsibilities",
			"No tests cover the failure paths",
		},
		suggestions: []string{
			"Validate inputs at the boundary before processing",
			"Split the function into smaller, single-purpose units",
			"Add unit tests for the error branches",
			"Document expected preconditions",
		},
	},
	models.ValidationCrypto: {
		issues: []string{
			"Weak hash algorithm used for key material",
			"Random seed is predictable",
			"Key material stored alongside code",
			"No constant-time comparison for signatures",
			"Nonce reuse possible under concurrent calls",
		},
		suggestions: []string{
			"Use a vetted cryptography library instead of hand-rolled primitives",
			"Source randomness from a CSPRNG",
			"Move key material to a secret store",
			"Compare secrets in constant time",
		},
	},
	models.ValidationBetting: {
		issues: []string{
			"Floating point arithmetic used for monetary amounts",
			"Odds calculation ignores the draw case",
			"Rounding strategy is inconsistent across payout paths",
			"Stake limits are not enforced",
			"House edge drifts with repeated rounding",
		},
		suggestions: []string{
			"Represent money in integer minor units",
			"Handle every outcome branch explicitly",
			"Centralize rounding in one audited helper",
			"Enforce stake limits before calculating payouts",
		},
	},
	models.ValidationSecurity: {
		issues: []string{
			"Potential command injection through unsanitized input",
			"Hardcoded credentials detected in source",
			"Dynamic code execution on user-controlled data",
			"SQL query built by string concatenation",
			"Sensitive values written to logs",
		},
		suggestions: []string{
			"Pass untrusted input through parameterized APIs only",
			"Load credentials from the environment",
			"Remove dynamic execution of user data",
			"Use prepared statements for all queries",
		},
	},
}

// FallbackCache produces a consensus-shaped result when live aggregation is
// unavailable. Selection is a pure function of (validation type, code):
// repeated offline validation of the same submission is idempotent.
type FallbackCache struct {
	cfg        config.Config
	classifier Classifier
}

// NewFallbackCache builds the fallback source.
func NewFallbackCache(cfg config.Config, classifier Classifier) *FallbackCache {
	return &FallbackCache{cfg: cfg, classifier: classifier}
}

// Build synthesizes an offline result for the submission. The result never
// claims agent identities and always carries Offline = true.
func (f *FallbackCache) Build(submission models.Submission) models.ConsensusResult {
	pool, ok := fallbackPools[submission.ValidationType]
	if !ok {
		pool = fallbackPools[models.ValidationGeneral]
	}

	rng := rand.New(rand.NewSource(seed(submission)))

	issueCount := 1 + rng.Intn(3)
	if issueCount > len(pool.issues) {
		issueCount = len(pool.issues)
	}
	order := rng.Perm(len(pool.issues))

	issues := make([]models.Issue, 0, issueCount)
	priority := make([]string, 0)
	for _, idx := range order[:issueCount] {
		text := pool.issues[idx]
		severity := f.classifier.Severity(submission.ValidationType, text, 0)
		issues = append(issues, models.Issue{Text: text, Severity: severity, Agents: []string{}})
		if severity == models.SeverityPriority {
			priority = append(priority, text)
		}
	}

	suggestionCount := 1 + rng.Intn(2)
	if suggestionCount > len(pool.suggestions) {
		suggestionCount = len(pool.suggestions)
	}
	suggestionOrder := rng.Perm(len(pool.suggestions))
	suggestions := make([]string, 0, suggestionCount)
	for _, idx := range suggestionOrder[:suggestionCount] {
		suggestions = append(suggestions, pool.suggestions[idx])
	}

	bounds := f.cfg.FallbackRangeFor(string(submission.ValidationType))
	confidence := bounds.Min + rng.Float64()*(bounds.Max-bounds.Min)

	return models.ConsensusResult{
		SubmissionID:   submission.ID,
		Rating:         RatingFor(confidence, f.cfg.ThresholdsFor(string(submission.ValidationType))),
		Confidence:     confidence,
		Issues:         issues,
		PriorityIssues: priority,
		Suggestions:    suggestions,
		AgentResults:   []models.AgentResult{},
		AgentsUsed:     []string{},
		Metrics:        DeriveMetrics(submission.Code, issues, confidence),
		Offline:        true,
		CreatedAt:      time.Now().UTC(),
	}
}

func seed(submission models.Submission) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(submission.ValidationType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(submission.Code))
	return int64(h.Sum64())
}
