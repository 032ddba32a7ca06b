package models

import "time"

// ValidationType selects the analysis profile applied to a submission.
type ValidationType string

// Supported validation types.
const (
	ValidationGeneral  ValidationType = "general_validation"
	ValidationCrypto   ValidationType = "crypto_audit"
	ValidationBetting  ValidationType = "betting_algorithm"
	ValidationSecurity ValidationType = "security_testing"
)

// Valid reports whether the validation type is one of the supported profiles.
func (v ValidationType) Valid() bool {
	switch v {
	case ValidationGeneral, ValidationCrypto, ValidationBetting, ValidationSecurity:
		return true
	}
	return false
}

// SubmissionStatus tracks the lifecycle of a submission.
type SubmissionStatus string

// Submission lifecycle states. Status transitions are the only mutation a
// submission undergoes after creation.
const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionValidating SubmissionStatus = "validating"
	SubmissionComplete   SubmissionStatus = "complete"
	SubmissionFailed     SubmissionStatus = "failed"
)

// Submission is one piece of code handed in for consensus validation.
type Submission struct {
	ID                 string           `json:"id"`
	SessionID          string           `json:"session_id"`
	UserID             string           `json:"user_id"`
	Code               string           `json:"code"`
	ValidationType     ValidationType   `json:"validation_type"`
	Language           string           `json:"language"`
	HeightenedScrutiny bool             `json:"heightened_scrutiny"`
	RequestReport      bool             `json:"request_report_delivery"`
	SubmittedAt        time.Time        `json:"submitted_at"`
	Status             SubmissionStatus `json:"status"`
}

// AgentResult is the normalized judgment of a single agent for one
// submission. Immutable once produced.
type AgentResult struct {
	Agent       string        `json:"agent"`
	Confidence  float64       `json:"confidence"`
	Issues      []string      `json:"issues"`
	Suggestions []string      `json:"suggestions"`
	Rationale   string        `json:"rationale"`
	Duration    time.Duration `json:"duration"`
	Succeeded   bool          `json:"succeeded"`
}

// Rating is the ordinal consensus category derived from weighted confidence.
type Rating string

// Consensus ratings, ordered worst to best.
const (
	RatingNeedsImprovement Rating = "NEEDS_IMPROVEMENT"
	RatingSatisfactory     Rating = "SATISFACTORY"
	RatingGood             Rating = "GOOD"
	RatingVeryGood         Rating = "VERY_GOOD"
)

// IssueSeverity splits findings into the two display tiers.
type IssueSeverity string

// Issue severities.
const (
	SeverityPriority IssueSeverity = "priority"
	SeverityRegular  IssueSeverity = "regular"
)

// Issue is a deduplicated finding with the set of agents that raised it.
type Issue struct {
	Text     string        `json:"text"`
	Severity IssueSeverity `json:"severity"`
	Agents   []string      `json:"agents"`
}

// ConsensusMetrics carries the derived quality scores for one result.
type ConsensusMetrics struct {
	ComplexityScore      float64 `json:"complexity_score"`
	SecurityScore        float64 `json:"security_score"`
	MaintainabilityScore float64 `json:"maintainability_score"`
	WeightedConfidence   float64 `json:"weighted_confidence"`
}

// ConsensusResult is the aggregate verdict for one submission. Created
// exactly once by the orchestrator and immutable thereafter.
type ConsensusResult struct {
	SubmissionID   string           `json:"submission_id"`
	Rating         Rating           `json:"overall_rating"`
	Confidence     float64          `json:"consensus_confidence"`
	Issues         []Issue          `json:"issues"`
	PriorityIssues []string         `json:"priority_issues"`
	Suggestions    []string         `json:"suggestions"`
	AgentResults   []AgentResult    `json:"agent_details"`
	AgentsUsed     []string         `json:"agents_used"`
	Metrics        ConsensusMetrics `json:"enhanced_metrics"`
	Offline        bool             `json:"offline"`
	CreatedAt      time.Time        `json:"created_at"`
}
