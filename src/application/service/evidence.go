package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
	"github.com/ringgate/ringgate/src/infrastructure/persistence"
)

type EvidenceService interface {
	WithQuerier(config.PgxIface) EvidenceService

	GetById(uuid.UUID) (*domain.EvidencePack, error)
	GetByCorrelationId(uuid.UUID) (*domain.EvidencePack, error)
	// Create inserts the pack and its ledger entry in one transaction.
	// Idempotent per correlation ID: a replay gets the existing pack
	// copied into the argument instead of a duplicate.
	Create(*domain.EvidencePack) error
}

type evidenceService struct {
	logger                 zerolog.Logger
	db                     config.PgxIface
	evidencePackRepository repository.EvidencePackRepository
	events                 EventService
}

func NewEvidenceService(db config.PgxIface, events EventService, logger *zerolog.Logger) EvidenceService {
	return &evidenceService{
		logger:                 logger.With().Str("component", "EvidenceService").Logger(),
		db:                     db,
		evidencePackRepository: persistence.NewEvidencePackRepository(db),
		events:                 events,
	}
}

func (self *evidenceService) WithQuerier(querier config.PgxIface) EvidenceService {
	return &evidenceService{
		logger:                 self.logger,
		db:                     querier,
		evidencePackRepository: self.evidencePackRepository.WithQuerier(querier),
		events:                 self.events.WithQuerier(querier),
	}
}

func (self *evidenceService) GetById(id uuid.UUID) (*domain.EvidencePack, error) {
	self.logger.Trace().Str("id", id.String()).Msg("Getting EvidencePack by ID")
	pack, err := self.evidencePackRepository.GetById(id)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not select existing EvidencePack for ID %q", id)
	}
	if pack == nil {
		return nil, domain.NotFoundError{Kind: "evidence pack", ID: id}
	}
	return pack, nil
}

func (self *evidenceService) GetByCorrelationId(id uuid.UUID) (pack *domain.EvidencePack, err error) {
	self.logger.Trace().Str("correlation-id", id.String()).Msg("Getting EvidencePack by correlation ID")
	pack, err = self.evidencePackRepository.GetByCorrelationId(id)
	err = errors.WithMessagef(err, "Could not select existing EvidencePack for correlation ID %q", id)
	return
}

func (self *evidenceService) Create(pack *domain.EvidencePack) error {
	self.logger.Trace().Str("correlation-id", pack.CorrelationId.String()).Msg("Creating EvidencePack")

	if missing := pack.MissingFields(); len(missing) > 0 {
		return domain.IncompleteEvidenceError{Missing: missing}
	}

	digest, err := pack.ContentDigest()
	if err != nil {
		return errors.WithMessage(err, "Could not compute EvidencePack content digest")
	}

	if existing, err := self.evidencePackRepository.GetByCorrelationId(pack.CorrelationId); err != nil {
		return errors.WithMessagef(err, "Could not select existing EvidencePack for correlation ID %q", pack.CorrelationId)
	} else if existing != nil {
		*pack = *existing
		return nil
	}

	pack.ID = uuid.New()

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		if err := self.evidencePackRepository.WithQuerier(tx).Save(pack); err != nil {
			return errors.WithMessage(err, "Could not insert EvidencePack")
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: pack.CorrelationId,
			Type:          domain.EventEvidencePackCreated,
			SubjectId:     pack.ID,
			Payload: map[string]interface{}{
				"content_digest":  digest,
				"artifact_digest": pack.ArtifactDigest,
			},
		})
	}); err != nil {
		return err
	}

	self.logger.Debug().Str("id", pack.ID.String()).Str("digest", digest).Msg("Created EvidencePack")
	return nil
}
