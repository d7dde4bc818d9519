package service

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
	"github.com/ringgate/ringgate/src/infrastructure/persistence"
)

type EventService interface {
	WithQuerier(config.PgxIface) EventService

	// Append assigns the next sequence number within the event's
	// correlation ID. Call it on a querier scoped to the transaction
	// that writes the state the event describes.
	Append(*domain.Event) error
	GetByCorrelationId(uuid.UUID, uint64, int) ([]domain.Event, error)
	// Query returns a restartable cursor over the correlation's events
	// in sequence order.
	Query(uuid.UUID) *EventCursor
}

type eventService struct {
	logger          zerolog.Logger
	eventRepository repository.EventRepository
	metrics         *config.Metrics
}

func NewEventService(db config.PgxIface, metrics *config.Metrics, logger *zerolog.Logger) EventService {
	return &eventService{
		logger:          logger.With().Str("component", "EventService").Logger(),
		eventRepository: persistence.NewEventRepository(db),
		metrics:         metrics,
	}
}

func (self *eventService) WithQuerier(querier config.PgxIface) EventService {
	return &eventService{
		logger:          self.logger,
		eventRepository: self.eventRepository.WithQuerier(querier),
		metrics:         self.metrics,
	}
}

func (self *eventService) Append(event *domain.Event) error {
	self.logger.Trace().
		Str("correlation-id", event.CorrelationId.String()).
		Str("type", string(event.Type)).
		Msg("Appending Event")
	if err := self.eventRepository.Save(event); err != nil {
		return errors.WithMessagef(err, "Could not append Event of type %q for correlation ID %q", event.Type, event.CorrelationId)
	}
	self.metrics.EventsAppended.Inc()
	self.logger.Trace().
		Str("correlation-id", event.CorrelationId.String()).
		Uint64("seq", event.Seq).
		Msg("Appended Event")
	return nil
}

func (self *eventService) GetByCorrelationId(id uuid.UUID, afterSeq uint64, limit int) (events []domain.Event, err error) {
	self.logger.Trace().Str("correlation-id", id.String()).Uint64("after-seq", afterSeq).Msg("Getting Events by correlation ID")
	events, err = self.eventRepository.GetByCorrelationId(id, afterSeq, limit)
	err = errors.WithMessagef(err, "Could not select existing Events for correlation ID %q", id)
	return
}

const eventCursorBatchSize = 100

func (self *eventService) Query(id uuid.UUID) *EventCursor {
	return &EventCursor{
		events:        self,
		correlationId: id,
	}
}

// EventCursor reads a correlation's events in batches. It resumes after
// the last sequence number it saw, so a reader that restarts mid-stream
// never skips or repeats an entry.
type EventCursor struct {
	events        EventService
	correlationId uuid.UUID
	afterSeq      uint64
}

// Next returns the next batch in sequence order.
// An empty batch means the stream is exhausted for now.
func (self *EventCursor) Next() ([]domain.Event, error) {
	batch, err := self.events.GetByCorrelationId(self.correlationId, self.afterSeq, eventCursorBatchSize)
	if err != nil {
		return nil, err
	}
	if len(batch) > 0 {
		self.afterSeq = batch[len(batch)-1].Seq
	}
	return batch, nil
}
