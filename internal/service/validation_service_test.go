package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/verdict-api/internal/dto"
	"github.com/verdictlabs/verdict-api/internal/models"
)

type stubConsensusValidator struct {
	err     error
	release chan struct{}
}

func (s *stubConsensusValidator) Validate(ctx context.Context, submission models.Submission) (models.ConsensusResult, error) {
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return models.ConsensusResult{}, s.err
	}
	return models.ConsensusResult{
		SubmissionID: submission.ID,
		Rating:       models.RatingGood,
		Confidence:   0.8,
		AgentsUsed:   []string{"alpha", "beta"},
		CreatedAt:    time.Now().UTC(),
	}, nil
}

type recordingDelivery struct {
	reports chan dto.ValidationResultResponse
}

func (r *recordingDelivery) Deliver(ctx context.Context, report dto.ValidationResultResponse) error {
	r.reports <- report
	return nil
}

func newValidationFixture(t *testing.T, consensus ConsensusValidator, delivery ReportDelivery) (ValidationService, SessionService, *Client) {
	t.Helper()

	sessions := newTestSessionService()
	client, _ := join(t, sessions, "room-1", "Ada")
	t.Cleanup(client.Close)

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewValidationService(sessions, consensus, delivery, validate, zerolog.Nop())
	return svc, sessions, client
}

func TestSubmitRunsConsensusAndRecordsResult(t *testing.T) {
	svc, sessions, client := newValidationFixture(t, &stubConsensusValidator{}, nil)

	submission, err := svc.Submit(context.Background(), "room-1", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "print('hello')",
		ValidationType: "general_validation",
	})
	require.NoError(t, err)
	require.NotEmpty(t, submission.ID)
	require.Equal(t, models.SubmissionValidating, submission.Status)

	require.Eventually(t, func() bool {
		snapshot, err := sessions.Snapshot("room-1")
		if err != nil {
			return false
		}
		return len(snapshot.Results) == 1 &&
			snapshot.Submissions[0].Status == models.SubmissionComplete
	}, 2*time.Second, 10*time.Millisecond)

	started := nextEvent(t, client)
	require.Equal(t, dto.EventValidationStarted, started.Event)
	complete := nextEvent(t, client)
	require.Equal(t, dto.EventValidationComplete, complete.Event)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	svc, _, client := newValidationFixture(t, &stubConsensusValidator{}, nil)

	_, err := svc.Submit(context.Background(), "room-1", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "",
		ValidationType: "general_validation",
	})
	require.Error(t, err)

	_, err = svc.Submit(context.Background(), "room-1", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "x = 1",
		ValidationType: "palm_reading",
	})
	require.Error(t, err)
}

func TestSubmitUnknownSession(t *testing.T) {
	svc, _, client := newValidationFixture(t, &stubConsensusValidator{}, nil)

	_, err := svc.Submit(context.Background(), "no-such-room", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "x = 1",
		ValidationType: "general_validation",
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitFailureMarksSubmissionFailed(t *testing.T) {
	stub := &stubConsensusValidator{err: errors.New("all agents down")}
	svc, sessions, client := newValidationFixture(t, stub, nil)

	_, err := svc.Submit(context.Background(), "room-1", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "x = 1",
		ValidationType: "general_validation",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, err := sessions.Snapshot("room-1")
		if err != nil {
			return false
		}
		return len(snapshot.Submissions) == 1 &&
			snapshot.Submissions[0].Status == models.SubmissionFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResultDiscardedAfterSessionTeardown(t *testing.T) {
	stub := &stubConsensusValidator{release: make(chan struct{})}
	svc, sessions, client := newValidationFixture(t, stub, nil)

	_, err := svc.Submit(context.Background(), "room-1", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "x = 1",
		ValidationType: "general_validation",
	})
	require.NoError(t, err)

	// Last member leaves while the pipeline is in flight.
	client.Close()
	close(stub.release)

	require.Eventually(t, func() bool {
		active, _ := sessions.Counts()
		return active == 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err = sessions.Snapshot("room-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitDeliversReportWhenRequested(t *testing.T) {
	delivery := &recordingDelivery{reports: make(chan dto.ValidationResultResponse, 1)}
	svc, _, client := newValidationFixture(t, &stubConsensusValidator{}, delivery)

	submission, err := svc.Submit(context.Background(), "room-1", client.ConnID(), dto.SubmitCodeRequest{
		Code:           "x = 1",
		ValidationType: "general_validation",
		RequestReport:  true,
	})
	require.NoError(t, err)

	select {
	case report := <-delivery.reports:
		require.Equal(t, submission.ID, report.SubmissionID)
		require.Equal(t, string(models.RatingGood), report.OverallRating)
	case <-time.After(2 * time.Second):
		t.Fatal("report was not delivered")
	}
}
