package dto

import (
	"time"

	"github.com/verdictlabs/verdict-api/internal/models"
)

// SubmitCodeRequest is the payload clients send to start a validation.
type SubmitCodeRequest struct {
	Code               string `json:"code" validate:"required,min=1,max=65536"`
	ValidationType     string `json:"validation_type" validate:"required,oneof=general_validation crypto_audit betting_algorithm security_testing"`
	Language           string `json:"language" validate:"omitempty,max=64"`
	HeightenedScrutiny bool   `json:"heightened_scrutiny"`
	RequestReport      bool   `json:"request_report_delivery"`
}

// AgentDetailResponse is one agent's snapshot inside a validation result.
type AgentDetailResponse struct {
	Agent       string   `json:"agent"`
	Confidence  float64  `json:"confidence"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Rationale   string   `json:"rationale"`
}

// EnhancedMetricsResponse carries the derived quality scores.
type EnhancedMetricsResponse struct {
	ComplexityScore      float64 `json:"complexity_score"`
	SecurityScore        float64 `json:"security_score"`
	MaintainabilityScore float64 `json:"maintainability_score"`
	WeightedConfidence   float64 `json:"weighted_confidence"`
}

// ValidationResultResponse is the consensus verdict serialized for clients
// and downstream report delivery.
type ValidationResultResponse struct {
	SubmissionID        string                  `json:"submission_id"`
	OverallRating       string                  `json:"overall_rating"`
	AgentsUsed          []string                `json:"agents_used"`
	ConsensusConfidence float64                 `json:"consensus_confidence"`
	IssuesFound         []string                `json:"issues_found"`
	PriorityIssues      []string                `json:"priority_issues"`
	Suggestions         []string                `json:"suggestions"`
	AgentDetails        []AgentDetailResponse   `json:"agent_details"`
	EnhancedMetrics     EnhancedMetricsResponse `json:"enhanced_metrics"`
	Offline             bool                    `json:"offline"`
	CreatedAt           time.Time               `json:"created_at"`
}

// NewValidationResultResponse converts a consensus result into its DTO.
func NewValidationResultResponse(result models.ConsensusResult) ValidationResultResponse {
	issues := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		issues = append(issues, issue.Text)
	}

	details := make([]AgentDetailResponse, 0, len(result.AgentResults))
	for _, agent := range result.AgentResults {
		details = append(details, AgentDetailResponse{
			Agent:       agent.Agent,
			Confidence:  agent.Confidence,
			Issues:      agent.Issues,
			Suggestions: agent.Suggestions,
			Rationale:   agent.Rationale,
		})
	}

	return ValidationResultResponse{
		SubmissionID:        result.SubmissionID,
		OverallRating:       string(result.Rating),
		AgentsUsed:          result.AgentsUsed,
		ConsensusConfidence: result.Confidence,
		IssuesFound:         issues,
		PriorityIssues:      result.PriorityIssues,
		Suggestions:         result.Suggestions,
		AgentDetails:        details,
		EnhancedMetrics: EnhancedMetricsResponse{
			ComplexityScore:      result.Metrics.ComplexityScore,
			SecurityScore:        result.Metrics.SecurityScore,
			MaintainabilityScore: result.Metrics.MaintainabilityScore,
			WeightedConfidence:   result.Metrics.WeightedConfidence,
		},
		Offline:   result.Offline,
		CreatedAt: result.CreatedAt,
	}
}

// SubmissionResponse is the serialized representation of a submission.
type SubmissionResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ValidationType string    `json:"validation_type"`
	Language       string    `json:"language,omitempty"`
	Status         string    `json:"status"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// NewSubmissionResponse converts a submission model into a DTO.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:             submission.ID,
		UserID:         submission.UserID,
		ValidationType: string(submission.ValidationType),
		Language:       submission.Language,
		Status:         string(submission.Status),
		SubmittedAt:    submission.SubmittedAt,
	}
}
