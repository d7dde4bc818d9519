package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MissingFactorError is returned by risk scoring when the evidence lacks
// a field a rubric needs. Factors are never silently defaulted.
type MissingFactorError struct {
	Factor string
}

func (self MissingFactorError) Error() string {
	return fmt.Sprintf("Evidence lacks data for risk factor %q", self.Factor)
}

type NoActiveModelError struct{}

func (self NoActiveModelError) Error() string {
	return "No active risk model"
}

type IncompleteEvidenceError struct {
	Missing []string
}

func (self IncompleteEvidenceError) Error() string {
	return fmt.Sprintf("Evidence pack is missing mandatory fields: %s", strings.Join(self.Missing, ", "))
}

// InvalidTransitionError covers both an outright illegal transition and
// a lost decide() race: the loser observes the winner's terminal status.
type InvalidTransitionError struct {
	From ApprovalStatus
	To   ApprovalStatus
}

func (self InvalidTransitionError) Error() string {
	from, _ := self.From.String()
	to, _ := self.To.String()
	return fmt.Sprintf("Cannot transition CAB approval from %q to %q", from, to)
}

type SegregationOfDutyError struct {
	Identity string
}

func (self SegregationOfDutyError) Error() string {
	return fmt.Sprintf("Exception reviewer %q must differ from the requester", self.Identity)
}

type InvalidExpiryError struct {
	Expiry time.Time
}

func (self InvalidExpiryError) Error() string {
	return fmt.Sprintf("Exception expiry %s is not in the future", self.Expiry.Format(time.RFC3339))
}

type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (self NotFoundError) Error() string {
	return fmt.Sprintf("No %s with ID %q", self.Kind, self.ID)
}

// StorageUnavailableError marks a failure as transient: the caller may
// retry with backoff under the same correlation ID.
type StorageUnavailableError struct {
	Cause error
}

func (self StorageUnavailableError) Error() string {
	return fmt.Sprintf("Storage unavailable: %s", self.Cause)
}

func (self StorageUnavailableError) Unwrap() error {
	return self.Cause
}
