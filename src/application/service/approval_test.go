package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

func buildApprovalService(t *testing.T) (pgxmock.PgxConnIface, ApprovalService) {
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = mock.Close(context.Background()) })

	logger := zerolog.Nop()
	events := NewEventService(mock, config.NewMetrics(), &logger)
	return mock, NewApprovalService(mock, events, &logger)
}

func TestShouldRefuseSecondDecision(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	id := uuid.New()

	// given an approval already rejected by a concurrent decider
	mock, service := buildApprovalService(t)
	rows := mock.NewRows([]string{"id", "deployment_intent_id", "evidence_pack_id", "risk_assessment_id", "correlation_id", "status", "approver", "rationale", "conditions", "created_at", "decided_at"}).
		AddRow(id, uuid.New(), uuid.New(), uuid.New(), uuid.New(), "rejected", "casey", "risk too high", []domain.ApprovalCondition{}, now, &now)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)FROM cab_approval(.*)FOR UPDATE").WithArgs(id).WillReturnRows(rows)
	mock.ExpectRollback()
	// pgx.BeginFunc always issues a deferred Rollback after the explicit one
	mock.ExpectRollback()

	// when
	_, err := service.Decide(id, domain.ApprovalStatusApproved, "alex", "looks fine", nil)

	// then
	var invalidTransition domain.InvalidTransitionError
	if assert.ErrorAs(t, err, &invalidTransition) {
		assert.Equal(t, domain.ApprovalStatusRejected, invalidTransition.From)
		assert.Equal(t, domain.ApprovalStatusApproved, invalidTransition.To)
	}
}

func TestShouldReportReviewStatusWhenDecisionRaceIsLost(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	id := uuid.New()

	// given an approval under review whose row is decided between the
	// locked read and the guarded update
	mock, service := buildApprovalService(t)
	rows := mock.NewRows([]string{"id", "deployment_intent_id", "evidence_pack_id", "risk_assessment_id", "correlation_id", "status", "approver", "rationale", "conditions", "created_at", "decided_at"}).
		AddRow(id, uuid.New(), uuid.New(), uuid.New(), uuid.New(), "under_review", "casey", "", []domain.ApprovalCondition{}, now, nil)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT(.*)FROM cab_approval(.*)FOR UPDATE").WithArgs(id).WillReturnRows(rows)
	mock.ExpectExec("UPDATE cab_approval").
		WithArgs(id, "approved", "alex", "looks fine", []domain.ApprovalCondition(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()
	// pgx.BeginFunc always issues a deferred Rollback after the explicit one
	mock.ExpectRollback()

	// when
	_, err := service.Decide(id, domain.ApprovalStatusApproved, "alex", "looks fine", nil)

	// then the error names the status the decider actually saw
	var invalidTransition domain.InvalidTransitionError
	if assert.ErrorAs(t, err, &invalidTransition) {
		assert.Equal(t, domain.ApprovalStatusUnderReview, invalidTransition.From)
		assert.Equal(t, domain.ApprovalStatusApproved, invalidTransition.To)
	}
}

func TestShouldRefuseNonTerminalDecision(t *testing.T) {
	t.Parallel()

	// given
	_, service := buildApprovalService(t)

	// when
	_, err := service.Decide(uuid.New(), domain.ApprovalStatusPending, "alex", "", nil)

	// then
	var invalidTransition domain.InvalidTransitionError
	assert.ErrorAs(t, err, &invalidTransition)
}

func TestShouldRefuseSubmissionOfIncompleteEvidence(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	packId := uuid.New()
	coverage := 95.0

	// given a pack that never recorded a rollback plan
	mock, service := buildApprovalService(t)
	rows := mock.NewRows([]string{"id", "correlation_id", "artifact_digest", "signature", "sbom", "scan", "rollback", "tests", "scope", "created_at"}).
		AddRow(
			packId, uuid.New(), "sha256-abc", nil,
			map[string]interface{}{"packages": []interface{}{}},
			&domain.ScanResult{Decision: domain.ScanDecisionPass},
			nil,
			&domain.TestEvidence{Coverage: &coverage},
			nil, now,
		)
	mock.ExpectQuery("SELECT(.*)FROM evidence_pack").WithArgs(packId).WillReturnRows(rows)

	// when
	err := service.Submit(&domain.CABApproval{
		DeploymentIntentId: uuid.New(),
		EvidencePackId:     packId,
	})

	// then no approval record is created
	var incomplete domain.IncompleteEvidenceError
	if assert.ErrorAs(t, err, &incomplete) {
		assert.Contains(t, incomplete.Missing, "rollback")
	}
	assert.Nil(t, mock.ExpectationsWereMet())
}
