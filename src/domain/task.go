package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind is a closed set. Adding a kind means adding a case to the
// task runner's dispatch; the compiler flags unhandled kinds there.
type TaskKind uint

const (
	TaskKindRiskAssessment TaskKind = iota
)

func (self *TaskKind) String() (string, error) {
	switch *self {
	case TaskKindRiskAssessment:
		return "risk_assessment", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *TaskKind) FromString(str string) error {
	switch str {
	case "risk_assessment":
		*self = TaskKindRiskAssessment
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *TaskKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self TaskKind) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

func (self *TaskKind) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return self.FromString(v)
	case []byte:
		return self.FromString(string(v))
	default:
		return fmt.Errorf("Cannot scan %T into TaskKind", value)
	}
}

type TaskStatus uint

const (
	TaskStatusPending TaskStatus = iota
	TaskStatusRunning
	TaskStatusSucceeded
	TaskStatusFailed
)

func (self *TaskStatus) String() (string, error) {
	switch *self {
	case TaskStatusPending:
		return "pending", nil
	case TaskStatusRunning:
		return "running", nil
	case TaskStatusSucceeded:
		return "succeeded", nil
	case TaskStatusFailed:
		return "failed", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *TaskStatus) FromString(str string) error {
	switch str {
	case "pending":
		*self = TaskStatusPending
	case "running":
		*self = TaskStatusRunning
	case "succeeded":
		*self = TaskStatusSucceeded
	case "failed":
		*self = TaskStatusFailed
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *TaskStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self TaskStatus) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

func (self *TaskStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return self.FromString(v)
	case []byte:
		return self.FromString(string(v))
	default:
		return fmt.Errorf("Cannot scan %T into TaskStatus", value)
	}
}

// Task is the handle returned for operations that may exceed interactive
// latency. Callers poll it by ID instead of blocking.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	Kind          TaskKind   `json:"kind"`
	CorrelationId uuid.UUID  `json:"correlation_id"`
	SubjectId     uuid.UUID  `json:"subject_id"`
	Status        TaskStatus `json:"status"`
	ResultId      *uuid.UUID `json:"result_id"`
	Error         *string    `json:"error"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at"`
}
