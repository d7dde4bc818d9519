package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names are the only values the ledger accepts; see db/schema.sql.
type EventType string

const (
	EventEvidencePackCreated EventType = "evidence_pack.created"
	EventRiskAssessed        EventType = "risk_assessment.computed"
	EventPolicyEvaluated     EventType = "policy.evaluated"
	EventApprovalSubmitted   EventType = "cab_approval.submitted"
	EventReviewStarted       EventType = "cab_approval.review_started"
	EventApprovalDecided     EventType = "cab_approval.decided"
	EventApprovalDegraded    EventType = "cab_approval.degraded"
	EventExceptionGranted    EventType = "exception.granted"
	EventExceptionRevoked    EventType = "exception.revoked"
	EventTaskQueued          EventType = "task.queued"
	EventTaskFinished        EventType = "task.finished"
)

type ErrorClass uint

const (
	ErrorClassNone ErrorClass = iota
	ErrorClassTransient
	ErrorClassPermanent
	ErrorClassPolicyViolation
)

func (self *ErrorClass) String() (string, error) {
	switch *self {
	case ErrorClassNone:
		return "none", nil
	case ErrorClassTransient:
		return "transient", nil
	case ErrorClassPermanent:
		return "permanent", nil
	case ErrorClassPolicyViolation:
		return "policy_violation", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *ErrorClass) FromString(str string) error {
	switch str {
	case "none":
		*self = ErrorClassNone
	case "transient":
		*self = ErrorClassTransient
	case "permanent":
		*self = ErrorClassPermanent
	case "policy_violation":
		*self = ErrorClassPolicyViolation
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *ErrorClass) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self ErrorClass) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

func (self *ErrorClass) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return self.FromString(v)
	case []byte:
		return self.FromString(string(v))
	default:
		return fmt.Errorf("Cannot scan %T into ErrorClass", value)
	}
}

// Event is one entry of the append-only ledger. Its public surface has
// no mutators; the schema additionally revokes UPDATE and DELETE so an
// application bug cannot rewrite history either.
type Event struct {
	CorrelationId uuid.UUID              `json:"correlation_id"`
	Seq           uint64                 `json:"seq"`
	Type          EventType              `json:"type"`
	SubjectId     uuid.UUID              `json:"subject_id"`
	Payload       map[string]interface{} `json:"payload"`
	ErrorClass    ErrorClass             `json:"error_class"`
	CreatedAt     time.Time              `json:"created_at"`
}
