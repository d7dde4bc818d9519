package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"

	"github.com/ringgate/ringgate/src/config/mocks"
	"github.com/ringgate/ringgate/src/domain"
)

func TestShouldAssignNextSequenceOnSave(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	event := domain.Event{
		CorrelationId: uuid.New(),
		Type:          domain.EventEvidencePackCreated,
		SubjectId:     uuid.New(),
		Payload:       map[string]interface{}{"digest": "sha256-abc"},
	}

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	rows := mock.NewRows([]string{"seq", "created_at"}).AddRow(uint64(3), now)
	mock.ExpectQuery("INSERT INTO event").
		WithArgs(event.CorrelationId, "evidence_pack.created", event.SubjectId, event.Payload, "none").
		WillReturnRows(rows)
	repository := NewEventRepository(mock)

	// when
	err = repository.Save(&event)

	// then
	assert.Nil(t, err)
	assert.Equal(t, uint64(3), event.Seq)
	assert.Equal(t, now, event.CreatedAt)
}

func TestShouldAppendEventWithinCallerTransaction(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	event := domain.Event{
		CorrelationId: uuid.New(),
		Type:          domain.EventExceptionGranted,
		SubjectId:     uuid.New(),
	}

	// given
	mock, tx := mocks.BuildTransaction(context.Background(), t)
	rows := mock.NewRows([]string{"seq", "created_at"}).AddRow(uint64(1), now)
	mock.ExpectQuery("INSERT INTO event").
		WithArgs(event.CorrelationId, "exception.granted", event.SubjectId, event.Payload, "none").
		WillReturnRows(rows)
	repository := NewEventRepository(mock).WithQuerier(tx)

	// when
	err := repository.Save(&event)

	// then
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), event.Seq)
}

func TestShouldReportSequenceCollisionAsTransient(t *testing.T) {
	t.Parallel()

	event := domain.Event{
		CorrelationId: uuid.New(),
		Type:          domain.EventApprovalDecided,
		SubjectId:     uuid.New(),
	}

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	mock.ExpectQuery("INSERT INTO event").
		WithArgs(event.CorrelationId, "cab_approval.decided", event.SubjectId, event.Payload, "none").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	repository := NewEventRepository(mock)

	// when
	err = repository.Save(&event)

	// then
	assert.ErrorAs(t, err, &domain.StorageUnavailableError{})
}

func TestShouldReadEventsInSequenceOrder(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	correlationId := uuid.New()
	subjectId := uuid.New()

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	rows := mock.NewRows([]string{"correlation_id", "seq", "type", "subject_id", "payload", "error_class", "created_at"}).
		AddRow(correlationId, uint64(2), domain.EventRiskAssessed, subjectId, map[string]interface{}{}, "none", now).
		AddRow(correlationId, uint64(3), domain.EventPolicyEvaluated, subjectId, map[string]interface{}{}, "none", now)
	mock.ExpectQuery("SELECT(.*)FROM event").
		WithArgs(correlationId, uint64(1), 100).
		WillReturnRows(rows)
	repository := NewEventRepository(mock)

	// when
	events, err := repository.GetByCorrelationId(correlationId, 1, 100)

	// then
	assert.Nil(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)
	assert.Equal(t, domain.EventRiskAssessed, events[0].Type)
	assert.Equal(t, uint64(3), events[1].Seq)
}
