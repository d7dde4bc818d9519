package persistence

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type eventRepository struct {
	db config.PgxIface
}

func NewEventRepository(db config.PgxIface) repository.EventRepository {
	return &eventRepository{db}
}

func (self *eventRepository) WithQuerier(querier config.PgxIface) repository.EventRepository {
	return &eventRepository{querier}
}

// The ledger has no Update or Delete; see also the REVOKEs in db/schema.sql.

func (self *eventRepository) Save(event *domain.Event) error {
	errorClass, err := event.ErrorClass.String()
	if err != nil {
		return err
	}

	err = self.db.QueryRow(
		context.Background(),
		`INSERT INTO event (correlation_id, seq, type, subject_id, payload, error_class)
		VALUES ($1, (SELECT coalesce(max(seq), 0) + 1 FROM event WHERE correlation_id = $1), $2, $3, $4, $5)
		RETURNING seq, created_at`,
		event.CorrelationId, string(event.Type), event.SubjectId, event.Payload, errorClass,
	).Scan(&event.Seq, &event.CreatedAt)

	// A concurrent append to the same correlation ID collides on the
	// (correlation_id, seq) primary key. That is transient: appends are
	// idempotent per correlation ID and safe to retry.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.StorageUnavailableError{Cause: err}
	}

	return err
}

func (self *eventRepository) GetByCorrelationId(id uuid.UUID, afterSeq uint64, limit int) ([]domain.Event, error) {
	events := []domain.Event{}
	return events, pgxscan.Select(
		context.Background(), self.db, &events,
		`SELECT correlation_id, seq, type, subject_id, payload, error_class, created_at
		FROM event
		WHERE correlation_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`,
		id, afterSeq, limit,
	)
}
