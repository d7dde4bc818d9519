package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestApprovalStatusRoundTrip(t *testing.T) {
	t.Parallel()

	for _, status := range []ApprovalStatus{
		ApprovalStatusPending,
		ApprovalStatusUnderReview,
		ApprovalStatusApproved,
		ApprovalStatusRejected,
		ApprovalStatusConditionallyApproved,
	} {
		str, err := status.String()
		assert.Nil(t, err)

		var parsed ApprovalStatus
		assert.Nil(t, parsed.FromString(str))
		assert.Equal(t, status, parsed)
	}
}

func TestEffectiveStatus(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tries := map[string]struct {
		approval CABApproval
		expected ApprovalStatus
	}{
		"conditions all met": {
			CABApproval{
				Status: ApprovalStatusConditionallyApproved,
				Conditions: []ApprovalCondition{
					{ExpiresAt: now.Add(-time.Hour), Met: true},
				},
			},
			ApprovalStatusConditionallyApproved,
		},
		"unmet condition not yet expired": {
			CABApproval{
				Status: ApprovalStatusConditionallyApproved,
				Conditions: []ApprovalCondition{
					{ExpiresAt: now.Add(time.Hour), Met: false},
				},
			},
			ApprovalStatusConditionallyApproved,
		},
		"unmet expired condition degrades": {
			CABApproval{
				Status: ApprovalStatusConditionallyApproved,
				Conditions: []ApprovalCondition{
					{ExpiresAt: now.Add(-time.Hour), Met: false},
				},
			},
			ApprovalStatusRejected,
		},
		"plain approval unaffected": {
			CABApproval{Status: ApprovalStatusApproved},
			ApprovalStatusApproved,
		},
	}

	for k, try := range tries {
		try := try
		t.Run(k, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, try.expected, try.approval.EffectiveStatus(now))
		})
	}
}

func TestExceptionNeverActivePastExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	expired := Exception{ExpiresAt: now.Add(-time.Second)}

	assert.False(t, expired.IsActiveAt(now))
	expired.Revoked = true
	assert.False(t, expired.IsActiveAt(now))
}

func TestContentDigest(t *testing.T) {
	t.Parallel()

	coverage := 95.0
	scope := ChangeScopeSmall
	pack := EvidencePack{
		CorrelationId:  uuid.New(),
		ArtifactDigest: "sha256-aaaa",
		Sbom:           map[string]interface{}{"packages": []interface{}{"a"}},
		Scan:           &ScanResult{Decision: ScanDecisionPass},
		Rollback:       &RollbackPlan{State: RollbackPlanComplete},
		Tests:          &TestEvidence{Coverage: &coverage},
		Scope:          &scope,
	}

	first, err := pack.ContentDigest()
	assert.Nil(t, err)
	second, err := pack.ContentDigest()
	assert.Nil(t, err)
	assert.Equal(t, first, second)

	pack.ArtifactDigest = "sha256-bbbb"
	changed, err := pack.ContentDigest()
	assert.Nil(t, err)
	assert.NotEqual(t, first, changed)
}

func TestMissingFields(t *testing.T) {
	t.Parallel()

	pack := EvidencePack{ArtifactDigest: "sha256-aaaa"}
	assert.Equal(t, []string{"sbom", "scan", "rollback", "tests"}, pack.MissingFields())
}

func TestMissingFieldsOnDeclaredMissingRollbackPlan(t *testing.T) {
	t.Parallel()

	coverage := 95.0
	pack := EvidencePack{
		ArtifactDigest: "sha256-aaaa",
		Sbom:           map[string]interface{}{"packages": []interface{}{"a"}},
		Scan:           &ScanResult{Decision: ScanDecisionPass},
		Rollback:       &RollbackPlan{State: RollbackPlanMissing},
		Tests:          &TestEvidence{Coverage: &coverage},
	}

	assert.Equal(t, []string{"rollback"}, pack.MissingFields())
}
