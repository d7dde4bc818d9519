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

type TaskService interface {
	WithQuerier(config.PgxIface) TaskService

	GetById(uuid.UUID) (*domain.Task, error)
	// Enqueue queues a background task. Idempotent per (kind, subject)
	// while an earlier task for the pair is still open.
	Enqueue(domain.TaskKind, uuid.UUID, uuid.UUID) (*domain.Task, error)
	// Claim hands one pending task to the calling worker. Nil when the
	// queue is empty.
	Claim(domain.TaskKind) (*domain.Task, error)
	// Finish records the terminal status and the ledger entry for it.
	Finish(*domain.Task) error
}

type taskService struct {
	logger         zerolog.Logger
	db             config.PgxIface
	taskRepository repository.TaskRepository
	events         EventService
	metrics        *config.Metrics
}

func NewTaskService(db config.PgxIface, events EventService, metrics *config.Metrics, logger *zerolog.Logger) TaskService {
	return &taskService{
		logger:         logger.With().Str("component", "TaskService").Logger(),
		db:             db,
		taskRepository: persistence.NewTaskRepository(db),
		events:         events,
		metrics:        metrics,
	}
}

func (self *taskService) WithQuerier(querier config.PgxIface) TaskService {
	return &taskService{
		logger:         self.logger,
		db:             querier,
		taskRepository: self.taskRepository.WithQuerier(querier),
		events:         self.events.WithQuerier(querier),
		metrics:        self.metrics,
	}
}

func (self *taskService) GetById(id uuid.UUID) (*domain.Task, error) {
	self.logger.Trace().Str("id", id.String()).Msg("Getting Task by ID")
	task, err := self.taskRepository.GetById(id)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not select existing Task for ID %q", id)
	}
	if task == nil {
		return nil, domain.NotFoundError{Kind: "task", ID: id}
	}
	return task, nil
}

func (self *taskService) Enqueue(kind domain.TaskKind, correlationId, subjectId uuid.UUID) (*domain.Task, error) {
	self.logger.Trace().Str("subject-id", subjectId.String()).Msg("Enqueuing Task")

	if existing, err := self.taskRepository.GetOpenByKindAndSubject(kind, subjectId); err != nil {
		return nil, errors.WithMessage(err, "Could not select open Task")
	} else if existing != nil {
		return existing, nil
	}

	task := domain.Task{
		ID:            uuid.New(),
		Kind:          kind,
		CorrelationId: correlationId,
		SubjectId:     subjectId,
		Status:        domain.TaskStatusPending,
	}

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		if err := self.taskRepository.WithQuerier(tx).Save(&task); err != nil {
			return errors.WithMessage(err, "Could not insert Task")
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: task.CorrelationId,
			Type:          domain.EventTaskQueued,
			SubjectId:     task.ID,
			Payload:       map[string]interface{}{"subject_id": subjectId.String()},
		})
	}); err != nil {
		return nil, err
	}

	self.logger.Debug().Str("id", task.ID.String()).Msg("Enqueued Task")
	return &task, nil
}

func (self *taskService) Claim(kind domain.TaskKind) (*domain.Task, error) {
	task, err := self.taskRepository.Claim(kind)
	if err != nil {
		return nil, errors.WithMessage(err, "Could not claim Task")
	}
	if task != nil {
		self.logger.Trace().Str("id", task.ID.String()).Msg("Claimed Task")
	}
	return task, nil
}

func (self *taskService) Finish(task *domain.Task) error {
	self.logger.Trace().Str("id", task.ID.String()).Msg("Finishing Task")

	statusStr, err := task.Status.String()
	if err != nil {
		return err
	}

	errorClass := domain.ErrorClassNone
	if task.Status == domain.TaskStatusFailed {
		errorClass = domain.ErrorClassPermanent
	}

	payload := map[string]interface{}{"status": statusStr}
	if task.ResultId != nil {
		payload["result_id"] = task.ResultId.String()
	}
	if task.Error != nil {
		payload["error"] = *task.Error
	}

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		if err := self.taskRepository.WithQuerier(tx).Finish(task); err != nil {
			return errors.WithMessage(err, "Could not finish Task")
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: task.CorrelationId,
			Type:          domain.EventTaskFinished,
			SubjectId:     task.ID,
			Payload:       payload,
			ErrorClass:    errorClass,
		})
	}); err != nil {
		return err
	}

	self.metrics.TasksProcessed.WithLabelValues(statusStr).Inc()
	self.logger.Debug().Str("id", task.ID.String()).Str("status", statusStr).Msg("Finished Task")
	return nil
}
