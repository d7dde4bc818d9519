package repository

import (
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

// EventRepository deliberately exposes no update or delete; the schema
// additionally revokes those grants on the underlying table.
type EventRepository interface {
	WithQuerier(config.PgxIface) EventRepository

	// Save assigns the next sequence number within the event's
	// correlation ID and fills Seq and CreatedAt on the argument.
	Save(*domain.Event) error
	// GetByCorrelationId returns up to limit events with seq > afterSeq
	// in sequence order, which makes reads restartable from any point.
	GetByCorrelationId(uuid.UUID, uint64, int) ([]domain.Event, error)
}
