package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"

	"github.com/ringgate/ringgate/src/domain"
)

func TestShouldClaimOnePendingTask(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	id := uuid.New()
	correlationId := uuid.New()
	subjectId := uuid.New()

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	rows := mock.NewRows([]string{"id", "kind", "correlation_id", "subject_id", "status", "result_id", "error", "created_at", "finished_at"}).
		AddRow(id, "risk_assessment", correlationId, subjectId, "running", nil, nil, now, nil)
	mock.ExpectQuery("UPDATE task").
		WithArgs("risk_assessment").
		WillReturnRows(rows)
	repository := NewTaskRepository(mock)

	// when
	task, err := repository.Claim(domain.TaskKindRiskAssessment)

	// then
	assert.Nil(t, err)
	if assert.NotNil(t, task) {
		assert.Equal(t, id, task.ID)
		assert.Equal(t, domain.TaskStatusRunning, task.Status)
	}
}

func TestShouldClaimNothingWhenQueueIsEmpty(t *testing.T) {
	t.Parallel()

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	rows := mock.NewRows([]string{"id", "kind", "correlation_id", "subject_id", "status", "result_id", "error", "created_at", "finished_at"})
	mock.ExpectQuery("UPDATE task").
		WithArgs("risk_assessment").
		WillReturnRows(rows)
	repository := NewTaskRepository(mock)

	// when
	task, err := repository.Claim(domain.TaskKindRiskAssessment)

	// then
	assert.Nil(t, err)
	assert.Nil(t, task)
}
