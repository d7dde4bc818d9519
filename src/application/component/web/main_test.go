package web

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/rs/zerolog"
	"github.com/steinfletcher/apitest"

	"github.com/ringgate/ringgate/src/application/service"
	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

func buildWeb(t *testing.T) (pgxmock.PgxConnIface, *Web) {
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = mock.Close(context.Background()) })

	logger := zerolog.Nop()
	metrics := config.NewMetrics()
	events := service.NewEventService(mock, metrics, &logger)
	evidence := service.NewEvidenceService(mock, events, &logger)

	return mock, &Web{
		Config:           config.NewWebConfig(":0", ""),
		Logger:           logger,
		EvidenceService:  evidence,
		RiskService:      service.NewRiskService(mock, evidence, events, &logger),
		ApprovalService:  service.NewApprovalService(mock, events, &logger),
		ExceptionService: service.NewExceptionService(mock, events, &logger),
		EventService:     events,
		TaskService:      service.NewTaskService(mock, events, metrics, &logger),
		Metrics:          metrics,
	}
}

func TestShouldAnswerNotFoundForUnknownEvidencePack(t *testing.T) {
	t.Parallel()
	id := uuid.New()

	// given
	mock, web := buildWeb(t)
	mock.ExpectQuery("SELECT(.*)FROM evidence_pack").
		WithArgs(id).
		WillReturnRows(mock.NewRows([]string{"id"}))

	// when / then
	apitest.New().
		Handler(web.Router()).
		Get("/api/evidence-pack/" + id.String()).
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestShouldRejectIncompleteEvidencePackSubmission(t *testing.T) {
	t.Parallel()

	// given a payload without scan, rollback and test evidence
	_, web := buildWeb(t)

	// when / then
	apitest.New().
		Handler(web.Router()).
		Post("/api/evidence-pack").
		JSON(`{"correlation_id": "` + uuid.NewString() + `", "artifact_digest": "sha256-abc", "sbom": {"packages": []}}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func TestShouldAnswerConflictForDecisionOnDecidedApproval(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	id := uuid.New()

	// given an approval already rejected
	mock, web := buildWeb(t)
	rows := mock.NewRows([]string{"id", "deployment_intent_id", "evidence_pack_id", "risk_assessment_id", "correlation_id", "status", "approver", "rationale", "conditions", "created_at", "decided_at"}).
		AddRow(id, uuid.New(), uuid.New(), uuid.New(), uuid.New(), "rejected", "casey", "risk too high", []domain.ApprovalCondition{}, now, &now)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)FROM cab_approval(.*)FOR UPDATE").WithArgs(id).WillReturnRows(rows)
	mock.ExpectRollback()
	// pgx.BeginFunc always issues a deferred Rollback after the explicit one
	mock.ExpectRollback()

	// when / then
	apitest.New().
		Handler(web.Router()).
		Post("/api/cab/" + id.String() + "/decision").
		JSON(`{"status": "approved", "approver": "alex", "rationale": "second look"}`).
		Expect(t).
		Status(http.StatusConflict).
		End()
}

func TestShouldRejectSelfReviewedExceptionRequest(t *testing.T) {
	t.Parallel()

	// given
	_, web := buildWeb(t)

	// when / then
	apitest.New().
		Handler(web.Router()).
		Post("/api/exception").
		JSON(`{
			"correlation_id": "` + uuid.NewString() + `",
			"violation": "rollback_plan_incomplete",
			"expires_at": "` + time.Now().UTC().Add(24*time.Hour).Format(time.RFC3339) + `",
			"compensating_controls": ["manual rollback runbook"],
			"requester": "casey",
			"reviewer": "casey"
		}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}
