package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
	"github.com/ringgate/ringgate/src/infrastructure/persistence"
)

type ExceptionService interface {
	WithQuerier(config.PgxIface) ExceptionService

	GetById(uuid.UUID) (*domain.Exception, error)
	GetAll(*repository.Page) ([]domain.Exception, error)
	// Grant enforces segregation of duty and a future expiry before any
	// storage is touched.
	Grant(*domain.Exception) error
	// Revoke is one-way; granting again requires a new exception.
	// Revoking an already revoked exception is a no-op.
	Revoke(uuid.UUID, string) error
}

type exceptionService struct {
	logger              zerolog.Logger
	db                  config.PgxIface
	exceptionRepository repository.ExceptionRepository
	events              EventService
}

func NewExceptionService(db config.PgxIface, events EventService, logger *zerolog.Logger) ExceptionService {
	return &exceptionService{
		logger:              logger.With().Str("component", "ExceptionService").Logger(),
		db:                  db,
		exceptionRepository: persistence.NewExceptionRepository(db),
		events:              events,
	}
}

func (self *exceptionService) WithQuerier(querier config.PgxIface) ExceptionService {
	return &exceptionService{
		logger:              self.logger,
		db:                  querier,
		exceptionRepository: self.exceptionRepository.WithQuerier(querier),
		events:              self.events.WithQuerier(querier),
	}
}

func (self *exceptionService) GetById(id uuid.UUID) (*domain.Exception, error) {
	self.logger.Trace().Str("id", id.String()).Msg("Getting Exception by ID")
	exception, err := self.exceptionRepository.GetById(id)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not select existing Exception for ID %q", id)
	}
	if exception == nil {
		return nil, domain.NotFoundError{Kind: "exception", ID: id}
	}
	return exception, nil
}

func (self *exceptionService) GetAll(page *repository.Page) (exceptions []domain.Exception, err error) {
	self.logger.Trace().Int("offset", page.Offset).Int("limit", page.Limit).Msg("Getting all Exceptions")
	exceptions, err = self.exceptionRepository.GetAll(page)
	err = errors.WithMessagef(err, "Could not select existing Exceptions with offset %d and limit %d", page.Offset, page.Limit)
	return
}

func (self *exceptionService) Grant(exception *domain.Exception) error {
	self.logger.Trace().Str("violation", exception.Violation).Msg("Granting Exception")

	if exception.Reviewer == exception.Requester {
		return domain.SegregationOfDutyError{Identity: exception.Reviewer}
	}
	if !exception.ExpiresAt.After(time.Now().UTC()) {
		return domain.InvalidExpiryError{Expiry: exception.ExpiresAt}
	}

	exception.ID = uuid.New()

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		if err := self.exceptionRepository.WithQuerier(tx).Save(exception); err != nil {
			return errors.WithMessage(err, "Could not insert Exception")
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: exception.CorrelationId,
			Type:          domain.EventExceptionGranted,
			SubjectId:     exception.ID,
			Payload: map[string]interface{}{
				"violation":  exception.Violation,
				"expires_at": exception.ExpiresAt,
				"requester":  exception.Requester,
				"reviewer":   exception.Reviewer,
			},
		})
	}); err != nil {
		return err
	}

	self.logger.Debug().Str("id", exception.ID.String()).Str("violation", exception.Violation).Msg("Granted Exception")
	return nil
}

func (self *exceptionService) Revoke(id uuid.UUID, reason string) error {
	self.logger.Trace().Str("id", id.String()).Msg("Revoking Exception")

	exception, err := self.GetById(id)
	if err != nil {
		return err
	}

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		revoked, err := self.exceptionRepository.WithQuerier(tx).Revoke(id, reason, time.Now().UTC())
		if err != nil {
			return errors.WithMessage(err, "Could not revoke Exception")
		}
		if !revoked {
			return nil
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: exception.CorrelationId,
			Type:          domain.EventExceptionRevoked,
			SubjectId:     exception.ID,
			Payload:       map[string]interface{}{"reason": reason},
		})
	}); err != nil {
		return err
	}

	self.logger.Debug().Str("id", id.String()).Msg("Revoked Exception")
	return nil
}
