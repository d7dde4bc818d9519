package persistence

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type taskRepository struct {
	db config.PgxIface
}

func NewTaskRepository(db config.PgxIface) repository.TaskRepository {
	return &taskRepository{db}
}

func (self *taskRepository) WithQuerier(querier config.PgxIface) repository.TaskRepository {
	return &taskRepository{querier}
}

const taskColumns = `id, kind, correlation_id, subject_id, status, result_id, error, created_at, finished_at`

func (self *taskRepository) GetById(id uuid.UUID) (*domain.Task, error) {
	task := domain.Task{}
	err := pgxscan.Get(
		context.Background(), self.db, &task,
		`SELECT `+taskColumns+` FROM task WHERE id = $1`,
		id,
	)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &task, err
}

func (self *taskRepository) GetOpenByKindAndSubject(kind domain.TaskKind, subjectId uuid.UUID) (*domain.Task, error) {
	kindStr, err := kind.String()
	if err != nil {
		return nil, err
	}

	task := domain.Task{}
	scanErr := pgxscan.Get(
		context.Background(), self.db, &task,
		`SELECT `+taskColumns+` FROM task
		WHERE kind = $1 AND subject_id = $2 AND status IN ('pending', 'running')
		ORDER BY created_at DESC FETCH FIRST ROW ONLY`,
		kindStr, subjectId,
	)
	if pgxscan.NotFound(scanErr) {
		return nil, nil
	}
	return &task, scanErr
}

func (self *taskRepository) Save(task *domain.Task) error {
	kind, err := task.Kind.String()
	if err != nil {
		return err
	}

	return self.db.QueryRow(
		context.Background(),
		`INSERT INTO task (id, kind, correlation_id, subject_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING created_at`,
		task.ID, kind, task.CorrelationId, task.SubjectId,
	).Scan(&task.CreatedAt)
}

func (self *taskRepository) Claim(kind domain.TaskKind) (*domain.Task, error) {
	kindStr, err := kind.String()
	if err != nil {
		return nil, err
	}

	task := domain.Task{}
	scanErr := pgxscan.Get(
		context.Background(), self.db, &task,
		`UPDATE task SET status = 'running'
		WHERE id = (
			SELECT id FROM task
			WHERE kind = $1 AND status = 'pending'
			ORDER BY created_at
			FETCH FIRST ROW ONLY
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		kindStr,
	)
	if pgxscan.NotFound(scanErr) {
		return nil, nil
	}
	return &task, scanErr
}

func (self *taskRepository) Finish(task *domain.Task) error {
	status, err := task.Status.String()
	if err != nil {
		return err
	}

	return self.db.QueryRow(
		context.Background(),
		`UPDATE task SET status = $2, result_id = $3, error = $4, finished_at = now()
		WHERE id = $1 AND status = 'running'
		RETURNING finished_at`,
		task.ID, status, task.ResultId, task.Error,
	).Scan(&task.FinishedAt)
}
