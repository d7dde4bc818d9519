package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// Ring is a deployment cohort of increasing blast radius.
type Ring uint

const (
	RingLab Ring = iota
	RingCanary
	RingPilot
	RingDepartment
	RingGlobal
)

func (self *Ring) String() (string, error) {
	switch *self {
	case RingLab:
		return "lab", nil
	case RingCanary:
		return "canary", nil
	case RingPilot:
		return "pilot", nil
	case RingDepartment:
		return "department", nil
	case RingGlobal:
		return "global", nil
	default:
		return "", fmt.Errorf("Unknown value %d", *self)
	}
}

func (self *Ring) FromString(str string) error {
	switch str {
	case "lab":
		*self = RingLab
	case "canary":
		*self = RingCanary
	case "pilot":
		*self = RingPilot
	case "department":
		*self = RingDepartment
	case "global":
		*self = RingGlobal
	default:
		return fmt.Errorf("Unknown value %q", str)
	}
	return nil
}

func (self *Ring) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return self.FromString(str)
}

func (self Ring) MarshalJSON() ([]byte, error) {
	if str, err := self.String(); err != nil {
		return nil, err
	} else {
		return json.Marshal(str)
	}
}

// PolicyRule names are what an Exception's violation reference must
// match to suppress that rule.
type PolicyRule string

const (
	RuleCABThreshold       PolicyRule = "cab_threshold_exceeded"
	RuleCABApprovalMissing PolicyRule = "cab_approval_missing"
	RulePriorRingSuccess   PolicyRule = "prior_ring_success_rate"
	RuleRollbackPlan       PolicyRule = "rollback_plan_incomplete"
)

type RingContext struct {
	TargetRing Ring `json:"target_ring"`
	// Success rate of the prior ring in [0,1]; nil when no telemetry exists yet.
	PriorRingSuccessRate *float64          `json:"prior_ring_success_rate"`
	RollbackPlan         RollbackPlanState `json:"rollback_plan"`
}

type PolicyDecision struct {
	RequiresCAB bool     `json:"requires_cab"`
	Blocked     bool     `json:"blocked"`
	Reasons     []string `json:"reasons"`
	// Rules that fired but were suppressed by an active exception,
	// recorded as event context by the caller.
	Suppressed []SuppressedRule `json:"suppressed"`
	// Set when a conditional approval was degraded by an expired
	// unmet condition during this evaluation.
	Degraded bool `json:"degraded"`
}

type SuppressedRule struct {
	Rule        PolicyRule `json:"rule"`
	ExceptionId string     `json:"exception_id"`
}

// EvaluatePolicy derives the promotion-gate decision for one assessment.
// Rules run in order; the first blocking rule wins unless an active
// exception names it. Pure and side-effect-free: the clock is an
// explicit argument, the caller logs and records the outcome.
func EvaluatePolicy(
	assessment RiskAssessment,
	ring RingContext,
	approval *CABApproval,
	exceptions []Exception,
	model RiskModel,
	now time.Time,
) PolicyDecision {
	decision := PolicyDecision{}

	suppressor := func(rule PolicyRule) *Exception {
		i := slices.IndexFunc(exceptions, func(exception Exception) bool {
			return exception.IsActiveAt(now) && exception.Violation == string(rule)
		})
		if i < 0 {
			return nil
		}
		return &exceptions[i]
	}

	block := func(rule PolicyRule, reason string) bool {
		if exception := suppressor(rule); exception != nil {
			decision.Suppressed = append(decision.Suppressed, SuppressedRule{
				Rule:        rule,
				ExceptionId: exception.ID.String(),
			})
			return false
		}
		decision.Blocked = true
		decision.Reasons = append(decision.Reasons, reason)
		return true
	}

	thresholdExceeded := assessment.Total > model.CABThreshold
	if thresholdExceeded {
		decision.RequiresCAB = true
	}

	effective := ApprovalStatus(0)
	hasApproval := approval != nil
	if hasApproval {
		effective = approval.EffectiveStatus(now)
		decision.Degraded = approval.Status == ApprovalStatusConditionallyApproved &&
			effective == ApprovalStatusRejected
	}

	if ring.TargetRing >= RingPilot && thresholdExceeded {
		approved := hasApproval &&
			(effective == ApprovalStatusApproved || effective == ApprovalStatusConditionallyApproved)
		if !approved {
			if block(RuleCABApprovalMissing, "CAB approval required") {
				return decision
			}
		}
	}

	if ring.PriorRingSuccessRate != nil && *ring.PriorRingSuccessRate < model.MinPriorRingSuccessRate {
		if block(RulePriorRingSuccess, fmt.Sprintf(
			"prior ring success rate %.2f below minimum %.2f",
			*ring.PriorRingSuccessRate, model.MinPriorRingSuccessRate,
		)) {
			return decision
		}
	}

	if ring.RollbackPlan != RollbackPlanComplete {
		if block(RuleRollbackPlan, "rollback plan missing or incomplete") {
			return decision
		}
	}

	return decision
}
