package domain

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/direnv/direnv/v2/pkg/sri"
	"github.com/google/uuid"
)

type ScanDecision uint

const (
	ScanDecisionPass ScanDecision = iota
	ScanDecisionFail
	ScanDecisionException
)

func (self *ScanDecision) String() (string, error) {
	switch *self {
	case ScanDecisionPass:
		return "pass", nil
	case ScanDecisionFail:
		return "fail", nil
	case ScanDecisionException:
		return "exception", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *ScanDecision) FromString(str string) error {
	switch str {
	case "pass":
		*self = ScanDecisionPass
	case "fail":
		*self = ScanDecisionFail
	case "exception":
		*self = ScanDecisionException
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *ScanDecision) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self ScanDecision) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

type Severity uint

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (self *Severity) String() (string, error) {
	switch *self {
	case SeverityLow:
		return "low", nil
	case SeverityMedium:
		return "medium", nil
	case SeverityHigh:
		return "high", nil
	case SeverityCritical:
		return "critical", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *Severity) FromString(str string) error {
	switch str {
	case "low":
		*self = SeverityLow
	case "medium":
		*self = SeverityMedium
	case "high":
		*self = SeverityHigh
	case "critical":
		*self = SeverityCritical
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self Severity) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

type RollbackPlanState uint

const (
	RollbackPlanMissing RollbackPlanState = iota
	RollbackPlanPartial
	RollbackPlanComplete
)

func (self *RollbackPlanState) String() (string, error) {
	switch *self {
	case RollbackPlanMissing:
		return "missing", nil
	case RollbackPlanPartial:
		return "partial", nil
	case RollbackPlanComplete:
		return "complete", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *RollbackPlanState) FromString(str string) error {
	switch str {
	case "missing":
		*self = RollbackPlanMissing
	case "partial":
		*self = RollbackPlanPartial
	case "complete":
		*self = RollbackPlanComplete
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *RollbackPlanState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self RollbackPlanState) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

type ChangeScope uint

const (
	ChangeScopeSmall ChangeScope = iota
	ChangeScopeMedium
	ChangeScopeLarge
	ChangeScopeGlobal
)

func (self *ChangeScope) String() (string, error) {
	switch *self {
	case ChangeScopeSmall:
		return "small", nil
	case ChangeScopeMedium:
		return "medium", nil
	case ChangeScopeLarge:
		return "large", nil
	case ChangeScopeGlobal:
		return "global", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *ChangeScope) FromString(str string) error {
	switch str {
	case "small":
		*self = ChangeScopeSmall
	case "medium":
		*self = ChangeScopeMedium
	case "large":
		*self = ChangeScopeLarge
	case "global":
		*self = ChangeScopeGlobal
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *ChangeScope) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self ChangeScope) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

func (self *ChangeScope) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return self.FromString(v)
	case []byte:
		return self.FromString(string(v))
	default:
		return fmt.Errorf("Cannot scan %T into ChangeScope", value)
	}
}

type SignatureMetadata struct {
	Signer   string `json:"signer"`
	KeyId    string `json:"key_id"`
	Verified bool   `json:"verified"`
}

type VulnerabilityFinding struct {
	Id       string   `json:"id"`
	Severity Severity `json:"severity"`
}

type ScanResult struct {
	Findings []VulnerabilityFinding `json:"findings"`
	Decision ScanDecision           `json:"decision"`
}

type RollbackPlan struct {
	State    RollbackPlanState `json:"state"`
	Document string            `json:"document"`
}

type TestEvidence struct {
	// Statement coverage in percent [0,100].
	Coverage *float64 `json:"coverage"`
	Suites   []string `json:"suites"`
}

// EvidencePack is the immutable bundle backing a deployment decision.
// It is never updated; a change produces a new pack with a new ID.
type EvidencePack struct {
	ID             uuid.UUID              `json:"id"`
	CorrelationId  uuid.UUID              `json:"correlation_id"`
	ArtifactDigest string                 `json:"artifact_digest"`
	Signature      *SignatureMetadata     `json:"signature"`
	Sbom           map[string]interface{} `json:"sbom"`
	Scan           *ScanResult            `json:"scan"`
	Rollback       *RollbackPlan          `json:"rollback"`
	Tests          *TestEvidence          `json:"tests"`
	Scope          *ChangeScope           `json:"scope"`
	CreatedAt      time.Time              `json:"created_at"`
}

// MissingFields lists the mandatory evidence fields that are absent.
// A rollback plan declared with state "missing" counts as absent.
// A pack with any of these missing must not be submitted for approval.
func (self EvidencePack) MissingFields() []string {
	var missing []string
	if self.ArtifactDigest == "" {
		missing = append(missing, "artifact_digest")
	}
	if len(self.Sbom) == 0 {
		missing = append(missing, "sbom")
	}
	if self.Scan == nil {
		missing = append(missing, "scan")
	}
	if self.Rollback == nil || self.Rollback.State == RollbackPlanMissing {
		missing = append(missing, "rollback")
	}
	if self.Tests == nil {
		missing = append(missing, "tests")
	}
	return missing
}

// ContentDigest hashes the pack contents (everything except the allocated
// ID and timestamp) into an SRI string. Identical contents always yield
// the identical digest.
func (self EvidencePack) ContentDigest() (string, error) {
	content := struct {
		CorrelationId  uuid.UUID              `json:"correlation_id"`
		ArtifactDigest string                 `json:"artifact_digest"`
		Signature      *SignatureMetadata     `json:"signature"`
		Sbom           map[string]interface{} `json:"sbom"`
		Scan           *ScanResult            `json:"scan"`
		Rollback       *RollbackPlan          `json:"rollback"`
		Tests          *TestEvidence          `json:"tests"`
		Scope          *ChangeScope           `json:"scope"`
	}{
		self.CorrelationId,
		self.ArtifactDigest,
		self.Signature,
		self.Sbom,
		self.Scan,
		self.Rollback,
		self.Tests,
		self.Scope,
	}

	hash := sri.NewWriter(io.Discard, sri.SHA256)
	if err := json.NewEncoder(hash).Encode(content); err != nil {
		return "", err
	}
	return hash.Sum().String(), nil
}

type FactorScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type RiskAssessment struct {
	ID             uuid.UUID     `json:"id"`
	CorrelationId  uuid.UUID     `json:"correlation_id"`
	EvidencePackId uuid.UUID     `json:"evidence_pack_id"`
	ModelVersion   string        `json:"model_version"`
	Factors        []FactorScore `json:"factors"`
	Total          float64       `json:"total"`
	RequiresReview bool          `json:"requires_review"`
	CreatedAt      time.Time     `json:"created_at"`
}

type ApprovalStatus uint

const (
	ApprovalStatusPending ApprovalStatus = iota
	ApprovalStatusUnderReview
	ApprovalStatusApproved
	ApprovalStatusRejected
	ApprovalStatusConditionallyApproved
)

func (self *ApprovalStatus) String() (string, error) {
	switch *self {
	case ApprovalStatusPending:
		return "pending", nil
	case ApprovalStatusUnderReview:
		return "under_review", nil
	case ApprovalStatusApproved:
		return "approved", nil
	case ApprovalStatusRejected:
		return "rejected", nil
	case ApprovalStatusConditionallyApproved:
		return "conditionally_approved", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *ApprovalStatus) FromString(str string) error {
	switch str {
	case "pending":
		*self = ApprovalStatusPending
	case "under_review":
		*self = ApprovalStatusUnderReview
	case "approved":
		*self = ApprovalStatusApproved
	case "rejected":
		*self = ApprovalStatusRejected
	case "conditionally_approved":
		*self = ApprovalStatusConditionallyApproved
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *ApprovalStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self ApprovalStatus) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

func (self *ApprovalStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return self.FromString(v)
	case []byte:
		return self.FromString(string(v))
	default:
		return fmt.Errorf("Cannot scan %T into ApprovalStatus", value)
	}
}

// Decided reports whether the status is terminal.
// A decided approval is immutable; corrections require a new record.
func (self ApprovalStatus) Decided() bool {
	switch self {
	case ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusConditionallyApproved:
		return true
	default:
		return false
	}
}

type ApprovalCondition struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expires_at"`
	Met         bool      `json:"met"`
}

type CABApproval struct {
	ID                 uuid.UUID           `json:"id"`
	DeploymentIntentId uuid.UUID           `json:"deployment_intent_id"`
	EvidencePackId     uuid.UUID           `json:"evidence_pack_id"`
	RiskAssessmentId   uuid.UUID           `json:"risk_assessment_id"`
	CorrelationId      uuid.UUID           `json:"correlation_id"`
	Status             ApprovalStatus      `json:"status"`
	Approver           string              `json:"approver"`
	Rationale          string              `json:"rationale"`
	Conditions         []ApprovalCondition `json:"conditions"`
	CreatedAt          time.Time           `json:"created_at"`
	DecidedAt          *time.Time          `json:"decided_at"`
}

// EffectiveStatus degrades a conditional approval with an expired unmet
// condition to rejected for policy purposes. The record itself is untouched.
func (self CABApproval) EffectiveStatus(now time.Time) ApprovalStatus {
	if self.Status != ApprovalStatusConditionallyApproved {
		return self.Status
	}
	for _, condition := range self.Conditions {
		if !condition.Met && now.After(condition.ExpiresAt) {
			return ApprovalStatusRejected
		}
	}
	return self.Status
}

type Exception struct {
	ID                   uuid.UUID  `json:"id"`
	CorrelationId        uuid.UUID  `json:"correlation_id"`
	Violation            string     `json:"violation"`
	ExpiresAt            time.Time  `json:"expires_at"`
	CompensatingControls []string   `json:"compensating_controls"`
	Requester            string     `json:"requester"`
	Reviewer             string     `json:"reviewer"`
	Revoked              bool       `json:"revoked"`
	RevokeReason         *string    `json:"revoke_reason"`
	CreatedAt            time.Time  `json:"created_at"`
	RevokedAt            *time.Time `json:"revoked_at"`
}

// IsActiveAt is false once the exception is revoked or past expiry,
// regardless of the order those happened in.
func (self Exception) IsActiveAt(now time.Time) bool {
	return !self.Revoked && now.Before(self.ExpiresAt)
}

// DeploymentIntent is owned by the orchestrator; only referenced here.
type DeploymentIntent struct {
	ID            uuid.UUID `json:"id"`
	TargetRing    Ring      `json:"target_ring"`
	Status        string    `json:"status"`
	CorrelationId uuid.UUID `json:"correlation_id"`
}
