package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func assessmentFixture(total float64) RiskAssessment {
	return RiskAssessment{
		ID:             uuid.New(),
		CorrelationId:  uuid.New(),
		EvidencePackId: uuid.New(),
		ModelVersion:   "2023-03",
		Total:          total,
	}
}

func successRate(rate float64) *float64 {
	return &rate
}

func TestEvaluatePolicyHighRiskWithoutApproval(t *testing.T) {
	t.Parallel()

	// given: score 80, target ring pilot, no CAB approval
	ring := RingContext{
		TargetRing:           RingPilot,
		PriorRingSuccessRate: successRate(0.99),
		RollbackPlan:         RollbackPlanComplete,
	}

	// when
	decision := EvaluatePolicy(assessmentFixture(80), ring, nil, nil, DefaultRiskModel(), time.Now())

	// then
	assert.True(t, decision.RequiresCAB)
	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Reasons, "CAB approval required")
}

func TestEvaluatePolicyBelowThreshold(t *testing.T) {
	t.Parallel()

	ring := RingContext{
		TargetRing:           RingPilot,
		PriorRingSuccessRate: successRate(0.99),
		RollbackPlan:         RollbackPlanComplete,
	}

	decision := EvaluatePolicy(assessmentFixture(16), ring, nil, nil, DefaultRiskModel(), time.Now())

	assert.False(t, decision.RequiresCAB)
	assert.False(t, decision.Blocked)
	assert.Empty(t, decision.Reasons)
}

func TestEvaluatePolicyEarlyRingNeedsNoApproval(t *testing.T) {
	t.Parallel()

	// Rings below pilot require review but are not blocked on approval.
	ring := RingContext{
		TargetRing:   RingCanary,
		RollbackPlan: RollbackPlanComplete,
	}

	decision := EvaluatePolicy(assessmentFixture(80), ring, nil, nil, DefaultRiskModel(), time.Now())

	assert.True(t, decision.RequiresCAB)
	assert.False(t, decision.Blocked)
}

func TestEvaluatePolicyApprovedUnblocks(t *testing.T) {
	t.Parallel()

	ring := RingContext{
		TargetRing:           RingPilot,
		PriorRingSuccessRate: successRate(0.99),
		RollbackPlan:         RollbackPlanComplete,
	}
	approval := &CABApproval{Status: ApprovalStatusApproved}

	decision := EvaluatePolicy(assessmentFixture(80), ring, approval, nil, DefaultRiskModel(), time.Now())

	assert.True(t, decision.RequiresCAB)
	assert.False(t, decision.Blocked)
}

func TestEvaluatePolicyLowPriorRingSuccessRate(t *testing.T) {
	t.Parallel()

	ring := RingContext{
		TargetRing:           RingCanary,
		PriorRingSuccessRate: successRate(0.5),
		RollbackPlan:         RollbackPlanComplete,
	}

	decision := EvaluatePolicy(assessmentFixture(10), ring, nil, nil, DefaultRiskModel(), time.Now())

	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Reasons[0], "prior ring success rate")
}

func TestEvaluatePolicyIncompleteRollbackPlan(t *testing.T) {
	t.Parallel()

	ring := RingContext{
		TargetRing:   RingLab,
		RollbackPlan: RollbackPlanPartial,
	}

	decision := EvaluatePolicy(assessmentFixture(10), ring, nil, nil, DefaultRiskModel(), time.Now())

	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Reasons, "rollback plan missing or incomplete")
}

func TestEvaluatePolicyExceptionSuppressesNamedRuleOnly(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ring := RingContext{
		TargetRing:           RingPilot,
		PriorRingSuccessRate: successRate(0.5),
		RollbackPlan:         RollbackPlanComplete,
	}
	exceptions := []Exception{{
		ID:        uuid.New(),
		Violation: string(RuleCABApprovalMissing),
		ExpiresAt: now.Add(time.Hour),
		Requester: "alice",
		Reviewer:  "bob",
	}}

	decision := EvaluatePolicy(assessmentFixture(80), ring, nil, exceptions, DefaultRiskModel(), now)

	// The approval rule is suppressed; the success-rate rule still blocks.
	assert.True(t, decision.Blocked)
	assert.Len(t, decision.Suppressed, 1)
	assert.Equal(t, RuleCABApprovalMissing, decision.Suppressed[0].Rule)
	assert.Contains(t, decision.Reasons[0], "prior ring success rate")
}

func TestEvaluatePolicyExpiredExceptionIgnored(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tries := map[string]Exception{
		"expired": {
			Violation: string(RuleRollbackPlan),
			ExpiresAt: now.Add(-time.Hour),
		},
		"expired and revoked": {
			Violation: string(RuleRollbackPlan),
			ExpiresAt: now.Add(-time.Hour),
			Revoked:   true,
		},
		"revoked": {
			Violation: string(RuleRollbackPlan),
			ExpiresAt: now.Add(time.Hour),
			Revoked:   true,
		},
	}

	for k, exception := range tries {
		exception := exception
		t.Run(k, func(t *testing.T) {
			t.Parallel()

			ring := RingContext{TargetRing: RingLab, RollbackPlan: RollbackPlanMissing}
			decision := EvaluatePolicy(assessmentFixture(10), ring, nil, []Exception{exception}, DefaultRiskModel(), now)

			assert.True(t, decision.Blocked)
			assert.Empty(t, decision.Suppressed)
		})
	}
}

func TestEvaluatePolicyDegradedConditionalApproval(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ring := RingContext{
		TargetRing:           RingPilot,
		PriorRingSuccessRate: successRate(0.99),
		RollbackPlan:         RollbackPlanComplete,
	}
	approval := &CABApproval{
		Status: ApprovalStatusConditionallyApproved,
		Conditions: []ApprovalCondition{{
			Description: "rerun load test",
			ExpiresAt:   now.Add(-time.Minute),
			Met:         false,
		}},
	}

	decision := EvaluatePolicy(assessmentFixture(80), ring, approval, nil, DefaultRiskModel(), now)

	assert.True(t, decision.Blocked)
	assert.True(t, decision.Degraded)
	assert.Contains(t, decision.Reasons, "CAB approval required")
}
