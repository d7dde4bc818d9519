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

func TestShouldDecideApprovalUnderReview(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	approval := domain.CABApproval{
		ID:        uuid.New(),
		Status:    domain.ApprovalStatusApproved,
		Approver:  "alex",
		Rationale: "change window cleared",
	}

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	mock.ExpectExec("UPDATE cab_approval").
		WithArgs(approval.ID, "approved", approval.Approver, approval.Rationale, approval.Conditions, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	repository := NewApprovalRepository(mock)

	// when
	decided, err := repository.Decide(&approval, now)

	// then
	assert.Nil(t, err)
	assert.True(t, decided)
}

func TestShouldNotDecideApprovalAlreadyDecided(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	approval := domain.CABApproval{
		ID:       uuid.New(),
		Status:   domain.ApprovalStatusRejected,
		Approver: "alex",
	}

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	mock.ExpectExec("UPDATE cab_approval").
		WithArgs(approval.ID, "rejected", approval.Approver, approval.Rationale, approval.Conditions, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	repository := NewApprovalRepository(mock)

	// when
	decided, err := repository.Decide(&approval, now)

	// then
	assert.Nil(t, err)
	assert.False(t, decided)
}

func TestShouldMarkApprovalUnderReview(t *testing.T) {
	t.Parallel()
	id := uuid.New()

	// given
	mock, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("an error %q was not expected when opening a stub database connection", err)
	}
	defer mock.Close(context.Background())
	mock.ExpectExec("UPDATE cab_approval").
		WithArgs(id, "alex").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	repository := NewApprovalRepository(mock)

	// when
	marked, err := repository.MarkUnderReview(id, "alex")

	// then
	assert.Nil(t, err)
	assert.True(t, marked)
}
