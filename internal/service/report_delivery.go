package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/verdictlabs/verdict-api/internal/dto"
)

// ReportDelivery hands a finished validation report to an outbound channel
// such as email. Delivery failures never invalidate the computed result.
type ReportDelivery interface {
	Deliver(ctx context.Context, report dto.ValidationResultResponse) error
}

// LogReportDelivery is a basic provider that logs reports.
type LogReportDelivery struct {
	sender string
	logger zerolog.Logger
}

// NewLogReportDelivery constructs a logging provider.
func NewLogReportDelivery(sender string, logger zerolog.Logger) *LogReportDelivery {
	return &LogReportDelivery{
		sender: sender,
		logger: logger.With().Str("component", "report_delivery").Logger(),
	}
}

// Deliver logs the report and returns nil to indicate success.
func (l *LogReportDelivery) Deliver(ctx context.Context, report dto.ValidationResultResponse) error {
	l.logger.Info().
		Str("sender", l.sender).
		Str("submission_id", report.SubmissionID).
		Str("rating", report.OverallRating).
		Float64("confidence", report.ConsensusConfidence).
		Int("priority_issues", len(report.PriorityIssues)).
		Bool("offline", report.Offline).
		Msg("validation report delivered")
	return nil
}
