package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/models"
)

// ConsensusValidator runs the multi-agent consensus pipeline for one
// submission. Satisfied by consensus.Orchestrator.
type ConsensusValidator interface {
	Validate(ctx context.Context, submission models.Submission) (models.ConsensusResult, error)
}

// ValidationService drives the submission lifecycle: record, broadcast
// started, orchestrate, classify, record and broadcast the outcome.
type ValidationService interface {
	Submit(ctx context.Context, sessionID, userID string, req dto.SubmitCodeRequest) (models.Submission, error)
}

type validationService struct {
	sessions  SessionService
	validator ConsensusValidator
	delivery  ReportDelivery
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewValidationService creates the submission lifecycle service.
func NewValidationService(sessions SessionService, consensusValidator ConsensusValidator, delivery ReportDelivery, validate *validator.Validate, logger zerolog.Logger) ValidationService {
	return &validationService{
		sessions:  sessions,
		validator: consensusValidator,
		delivery:  delivery,
		validate:  validate,
		logger:    logger.With().Str("component", "validation_service").Logger(),
	}
}

// Submit validates the payload, records the submission into its session, and
// launches the consensus pipeline. The returned submission is already marked
// validating and its validation-started event broadcast.
func (s *validationService) Submit(ctx context.Context, sessionID, userID string, req dto.SubmitCodeRequest) (models.Submission, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Submission{}, fmt.Errorf("invalid submission payload: %w", err)
	}

	validationType := models.ValidationType(req.ValidationType)
	if !validationType.Valid() {
		return models.Submission{}, fmt.Errorf("unsupported validation type %q", req.ValidationType)
	}

	submission := models.Submission{
		ID:                 uuid.NewString(),
		SessionID:          sessionID,
		UserID:             userID,
		Code:               req.Code,
		ValidationType:     validationType,
		Language:           req.Language,
		HeightenedScrutiny: req.HeightenedScrutiny,
		RequestReport:      req.RequestReport,
		SubmittedAt:        time.Now().UTC(),
		Status:             models.SubmissionPending,
	}

	if err := s.sessions.RecordSubmission(sessionID, submission); err != nil {
		return models.Submission{}, err
	}
	submission.Status = models.SubmissionValidating

	go s.run(submission)

	return submission, nil
}

// run executes the consensus pipeline detached from the submitting
// connection: a disconnect lets in-flight agent calls finish naturally, and
// the registry drops results whose session is gone.
func (s *validationService) run(submission models.Submission) {
	log := s.logger.With().
		Str("session_id", submission.SessionID).
		Str("submission_id", submission.ID).
		Logger()

	result, err := s.validator.Validate(context.Background(), submission)
	if err != nil {
		log.Error().Err(err).Msg("consensus validation failed")
		if recordErr := s.sessions.RecordFailure(submission.SessionID, submission.ID, "validation failed"); recordErr != nil {
			log.Warn().Err(recordErr).Msg("failure not recorded, session gone")
		}
		return
	}

	if err := s.sessions.RecordResult(submission.SessionID, result); err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSubmissionNotFound) {
			log.Info().Err(err).Msg("discarding result, session or submission no longer present")
			return
		}
		log.Warn().Err(err).Msg("failed to record consensus result")
		return
	}

	if submission.RequestReport && s.delivery != nil {
		report := dto.NewValidationResultResponse(result)
		if err := s.delivery.Deliver(context.Background(), report); err != nil {
			log.Warn().Err(err).Msg("report delivery failed")
		}
	}
}
