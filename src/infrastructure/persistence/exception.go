package persistence

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type exceptionRepository struct {
	db config.PgxIface
}

func NewExceptionRepository(db config.PgxIface) repository.ExceptionRepository {
	return &exceptionRepository{db}
}

func (self *exceptionRepository) WithQuerier(querier config.PgxIface) repository.ExceptionRepository {
	return &exceptionRepository{querier}
}

const exceptionColumns = `id, correlation_id, violation, expires_at, compensating_controls, requester, reviewer, revoked, revoke_reason, created_at, revoked_at`

func (self *exceptionRepository) GetById(id uuid.UUID) (*domain.Exception, error) {
	exception := domain.Exception{}
	err := pgxscan.Get(
		context.Background(), self.db, &exception,
		`SELECT `+exceptionColumns+` FROM exception WHERE id = $1`,
		id,
	)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &exception, err
}

func (self *exceptionRepository) GetByViolation(violation string) ([]domain.Exception, error) {
	exceptions := []domain.Exception{}
	return exceptions, pgxscan.Select(
		context.Background(), self.db, &exceptions,
		`SELECT `+exceptionColumns+` FROM exception WHERE violation = $1 ORDER BY created_at`,
		violation,
	)
}

func (self *exceptionRepository) GetAll(page *repository.Page) ([]domain.Exception, error) {
	exceptions := []domain.Exception{}
	return exceptions, fetchPage(
		self.db, page, &exceptions,
		exceptionColumns, `exception`, `created_at DESC`,
	)
}

func (self *exceptionRepository) Save(exception *domain.Exception) error {
	return self.db.QueryRow(
		context.Background(),
		`INSERT INTO exception (id, correlation_id, violation, expires_at, compensating_controls, requester, reviewer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		exception.ID, exception.CorrelationId, exception.Violation, exception.ExpiresAt,
		exception.CompensatingControls, exception.Requester, exception.Reviewer,
	).Scan(&exception.CreatedAt)
}

func (self *exceptionRepository) Revoke(id uuid.UUID, reason string, revokedAt time.Time) (bool, error) {
	tag, err := self.db.Exec(
		context.Background(),
		`UPDATE exception SET revoked = TRUE, revoke_reason = $2, revoked_at = $3
		WHERE id = $1 AND NOT revoked`,
		id, reason, revokedAt,
	)
	return tag.RowsAffected() > 0, err
}
