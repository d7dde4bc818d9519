package component

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/application/service"
	"github.com/ringgate/ringgate/src/domain"
)

// TaskRunner drains the background task queue. Several instances may run
// in parallel; the claim query skips rows other workers hold locked.
type TaskRunner struct {
	Logger       zerolog.Logger
	TaskService  service.TaskService
	RiskService  service.RiskService
	PollInterval time.Duration
}

func (self *TaskRunner) Start(ctx context.Context) error {
	self.Logger.Info().Msg("Starting")

	interval := self.PollInterval
	if interval == 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			claimed, err := self.processNext()
			if err != nil {
				return err
			}
			if !claimed {
				break
			}
		}

		select {
		case <-ctx.Done():
			self.Logger.Info().Msg("Stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (self *TaskRunner) processNext() (bool, error) {
	task, err := self.TaskService.Claim(domain.TaskKindRiskAssessment)
	if err != nil {
		return false, errors.WithMessage(err, "Could not claim next Task")
	}
	if task == nil {
		return false, nil
	}

	self.Logger.Debug().Str("id", task.ID.String()).Msg("Processing Task")

	if err := self.run(task); err != nil {
		// A transient failure leaves the task failed with its cause on
		// record; the submitter re-enqueues under the same correlation ID.
		self.Logger.Err(err).Str("id", task.ID.String()).Msg("Task failed")
		message := err.Error()
		task.Status = domain.TaskStatusFailed
		task.Error = &message
	} else {
		task.Status = domain.TaskStatusSucceeded
	}

	if err := self.TaskService.Finish(task); err != nil {
		return true, errors.WithMessagef(err, "Could not finish Task with ID %q", task.ID)
	}

	return true, nil
}

func (self *TaskRunner) run(task *domain.Task) error {
	switch task.Kind {
	case domain.TaskKindRiskAssessment:
		assessment, err := self.RiskService.Compute(task.SubjectId)
		if err != nil {
			return err
		}
		task.ResultId = &assessment.ID
		return nil
	default:
		kind, _ := task.Kind.String()
		return errors.Errorf("No handler for task kind %q", kind)
	}
}
