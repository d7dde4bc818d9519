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

func buildEvidenceService(t *testing.T) (pgxmock.PgxConnIface, EvidenceService) {
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = mock.Close(context.Background()) })

	logger := zerolog.Nop()
	events := NewEventService(mock, config.NewMetrics(), &logger)
	return mock, NewEvidenceService(mock, events, &logger)
}

func TestShouldRefuseIncompletePack(t *testing.T) {
	t.Parallel()

	// given
	mock, service := buildEvidenceService(t)

	// when a pack arrives carrying only the artifact digest
	err := service.Create(&domain.EvidencePack{
		CorrelationId:  uuid.New(),
		ArtifactDigest: "sha256-abc",
	})

	// then
	var incomplete domain.IncompleteEvidenceError
	if assert.ErrorAs(t, err, &incomplete) {
		assert.ElementsMatch(t, []string{"sbom", "scan", "rollback", "tests"}, incomplete.Missing)
	}
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestShouldReturnExistingPackForSameCorrelation(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	correlationId := uuid.New()
	existingId := uuid.New()
	coverage := 95.0

	pack := domain.EvidencePack{
		CorrelationId:  correlationId,
		ArtifactDigest: "sha256-abc",
		Sbom:           map[string]interface{}{"packages": []interface{}{}},
		Scan:           &domain.ScanResult{Decision: domain.ScanDecisionPass},
		Rollback:       &domain.RollbackPlan{State: domain.RollbackPlanComplete},
		Tests:          &domain.TestEvidence{Coverage: &coverage},
	}

	// given a pack already stored under the same correlation ID
	mock, service := buildEvidenceService(t)
	rows := mock.NewRows([]string{"id", "correlation_id", "artifact_digest", "signature", "sbom", "scan", "rollback", "tests", "scope", "created_at"}).
		AddRow(existingId, correlationId, pack.ArtifactDigest, nil, pack.Sbom, pack.Scan, pack.Rollback, pack.Tests, nil, now)
	mock.ExpectQuery("SELECT(.*)FROM evidence_pack").WithArgs(correlationId).WillReturnRows(rows)

	// when
	err := service.Create(&pack)

	// then the replay maps onto the existing record, no insert happens
	assert.Nil(t, err)
	assert.Equal(t, existingId, pack.ID)
	assert.Equal(t, now, pack.CreatedAt)
	assert.Nil(t, mock.ExpectationsWereMet())
}
