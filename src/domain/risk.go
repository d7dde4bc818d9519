package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Rubric is a closed set; every rubric is handled in scoreFactor and an
// unknown value is a programming error, not a runtime dispatch miss.
type Rubric uint

const (
	RubricTestCoverage Rubric = iota
	RubricVulnerabilityExposure
	RubricBlastRadius
	RubricRollbackReadiness
	RubricProvenance
)

func (self *Rubric) String() (string, error) {
	switch *self {
	case RubricTestCoverage:
		return "test_coverage", nil
	case RubricVulnerabilityExposure:
		return "vulnerability_exposure", nil
	case RubricBlastRadius:
		return "blast_radius", nil
	case RubricRollbackReadiness:
		return "rollback_readiness", nil
	case RubricProvenance:
		return "provenance", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *Rubric) FromString(str string) error {
	switch str {
	case "test_coverage":
		*self = RubricTestCoverage
	case "vulnerability_exposure":
		*self = RubricVulnerabilityExposure
	case "blast_radius":
		*self = RubricBlastRadius
	case "rollback_readiness":
		*self = RubricRollbackReadiness
	case "provenance":
		*self = RubricProvenance
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *Rubric) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self Rubric) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

type FactorDefinition struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Rubric Rubric  `json:"rubric"`
}

type RiskModel struct {
	Version string `json:"version"`
	// Total above which a change requires CAB review.
	CABThreshold float64 `json:"cab_threshold"`
	// Minimum success rate the prior ring must have reached.
	MinPriorRingSuccessRate float64            `json:"min_prior_ring_success_rate"`
	Factors                 []FactorDefinition `json:"factors"`
}

// DefaultRiskModel is the model shipped with the platform. Operators
// override it per installation; scoring always takes the model as an
// explicit argument so there is no process-wide mutable state.
func DefaultRiskModel() RiskModel {
	return RiskModel{
		Version:                 "2023-03",
		CABThreshold:            50,
		MinPriorRingSuccessRate: 0.95,
		Factors: []FactorDefinition{
			{Name: "test_coverage", Weight: 0.25, Rubric: RubricTestCoverage},
			{Name: "vulnerability_exposure", Weight: 0.25, Rubric: RubricVulnerabilityExposure},
			{Name: "blast_radius", Weight: 0.15, Rubric: RubricBlastRadius},
			{Name: "rollback_readiness", Weight: 0.15, Rubric: RubricRollbackReadiness},
			{Name: "provenance", Weight: 0.20, Rubric: RubricProvenance},
		},
	}
}

// Coverage at or above this percentage scores zero risk.
const coverageTarget = 90.0

func severityWeight(severity Severity) float64 {
	switch severity {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.3
	case SeverityMedium:
		return 0.1
	case SeverityLow:
		return 0.02
	default:
		return 1.0
	}
}

func scopeWeight(scope ChangeScope) float64 {
	switch scope {
	case ChangeScopeSmall:
		return 0
	case ChangeScopeMedium:
		return 0.1
	case ChangeScopeLarge:
		return 0.2
	case ChangeScopeGlobal:
		return 1.0
	default:
		return 1.0
	}
}

func rollbackWeight(state RollbackPlanState) float64 {
	switch state {
	case RollbackPlanComplete:
		return 0
	case RollbackPlanPartial:
		return 0.3
	case RollbackPlanMissing:
		return 1.0
	default:
		return 1.0
	}
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func scoreFactor(pack EvidencePack, factor FactorDefinition) (float64, error) {
	switch factor.Rubric {
	case RubricTestCoverage:
		if pack.Tests == nil || pack.Tests.Coverage == nil {
			return 0, MissingFactorError{Factor: factor.Name}
		}
		return clamp01((coverageTarget - *pack.Tests.Coverage) / coverageTarget), nil
	case RubricVulnerabilityExposure:
		if pack.Scan == nil {
			return 0, MissingFactorError{Factor: factor.Name}
		}
		exposure := 0.0
		for _, finding := range pack.Scan.Findings {
			exposure += severityWeight(finding.Severity)
		}
		return clamp01(exposure), nil
	case RubricBlastRadius:
		if pack.Scope == nil {
			return 0, MissingFactorError{Factor: factor.Name}
		}
		return scopeWeight(*pack.Scope), nil
	case RubricRollbackReadiness:
		if pack.Rollback == nil {
			return 0, MissingFactorError{Factor: factor.Name}
		}
		return rollbackWeight(pack.Rollback.State), nil
	case RubricProvenance:
		switch {
		case pack.Signature == nil:
			return 1, nil
		case !pack.Signature.Verified:
			return 0.5, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("Unknown rubric %d", factor.Rubric)
	}
}

// ComputeRiskScore maps an evidence pack to a risk assessment under the
// given model. Pure: no clock, randomness or external lookup, so the
// same (pack contents, model version) always yields the same output.
// The caller persists the result and stamps ID and CreatedAt.
func ComputeRiskScore(pack EvidencePack, model RiskModel) (RiskAssessment, error) {
	assessment := RiskAssessment{
		CorrelationId:  pack.CorrelationId,
		EvidencePackId: pack.ID,
		ModelVersion:   model.Version,
	}

	if model.Version == "" || len(model.Factors) == 0 {
		return assessment, NoActiveModelError{}
	}

	total := 0.0
	for _, factor := range model.Factors {
		normalized, err := scoreFactor(pack, factor)
		if err != nil {
			return assessment, err
		}
		assessment.Factors = append(assessment.Factors, FactorScore{
			Name:  factor.Name,
			Score: normalized,
		})
		total += factor.Weight * normalized
	}

	assessment.Total = 100 * clamp01(total)
	assessment.RequiresReview = assessment.Total > model.CABThreshold

	return assessment, nil
}

// NewAssessmentId derives a stable ID from pack and model version so a
// replayed computation maps onto the same record.
func NewAssessmentId(packId uuid.UUID, modelVersion string) uuid.UUID {
	return uuid.NewSHA1(packId, []byte(modelVersion))
}
