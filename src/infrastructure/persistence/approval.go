package persistence

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type approvalRepository struct {
	db config.PgxIface
}

func NewApprovalRepository(db config.PgxIface) repository.ApprovalRepository {
	return &approvalRepository{db}
}

func (self *approvalRepository) WithQuerier(querier config.PgxIface) repository.ApprovalRepository {
	return &approvalRepository{querier}
}

const approvalColumns = `id, deployment_intent_id, evidence_pack_id, risk_assessment_id, correlation_id, status, approver, rationale, conditions, created_at, decided_at`

func (self *approvalRepository) get(query string, args ...interface{}) (*domain.CABApproval, error) {
	approval := domain.CABApproval{}
	err := pgxscan.Get(context.Background(), self.db, &approval, query, args...)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &approval, err
}

func (self *approvalRepository) GetById(id uuid.UUID) (*domain.CABApproval, error) {
	return self.get(`SELECT `+approvalColumns+` FROM cab_approval WHERE id = $1`, id)
}

func (self *approvalRepository) GetByIdForUpdate(id uuid.UUID) (*domain.CABApproval, error) {
	return self.get(`SELECT `+approvalColumns+` FROM cab_approval WHERE id = $1 FOR UPDATE`, id)
}

func (self *approvalRepository) GetLatestByEvidencePackId(id uuid.UUID) (*domain.CABApproval, error) {
	return self.get(
		`SELECT `+approvalColumns+` FROM cab_approval WHERE evidence_pack_id = $1 ORDER BY created_at DESC FETCH FIRST ROW ONLY`,
		id,
	)
}

func (self *approvalRepository) GetOpenByIntentAndPack(intentId, packId uuid.UUID) (*domain.CABApproval, error) {
	return self.get(
		`SELECT `+approvalColumns+` FROM cab_approval
		WHERE deployment_intent_id = $1 AND evidence_pack_id = $2 AND status IN ('pending', 'under_review')
		ORDER BY created_at DESC FETCH FIRST ROW ONLY`,
		intentId, packId,
	)
}

func (self *approvalRepository) GetAll(page *repository.Page) ([]domain.CABApproval, error) {
	approvals := []domain.CABApproval{}
	return approvals, fetchPage(
		self.db, page, &approvals,
		approvalColumns, `cab_approval`, `created_at DESC`,
	)
}

func (self *approvalRepository) Save(approval *domain.CABApproval) error {
	status, err := approval.Status.String()
	if err != nil {
		return err
	}

	return self.db.QueryRow(
		context.Background(),
		`INSERT INTO cab_approval (id, deployment_intent_id, evidence_pack_id, risk_assessment_id, correlation_id, status, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		approval.ID, approval.DeploymentIntentId, approval.EvidencePackId,
		approval.RiskAssessmentId, approval.CorrelationId, status, approval.Conditions,
	).Scan(&approval.CreatedAt)
}

func (self *approvalRepository) MarkUnderReview(id uuid.UUID, approver string) (bool, error) {
	tag, err := self.db.Exec(
		context.Background(),
		`UPDATE cab_approval SET status = 'under_review', approver = $2
		WHERE id = $1 AND (status = 'pending' OR (status = 'under_review' AND approver = $2))`,
		id, approver,
	)
	return tag.RowsAffected() > 0, err
}

func (self *approvalRepository) Decide(approval *domain.CABApproval, decidedAt time.Time) (bool, error) {
	status, err := approval.Status.String()
	if err != nil {
		return false, err
	}

	tag, err := self.db.Exec(
		context.Background(),
		`UPDATE cab_approval SET status = $2, approver = $3, rationale = $4, conditions = $5, decided_at = $6
		WHERE id = $1 AND status = 'under_review'`,
		approval.ID, status, approval.Approver, approval.Rationale, approval.Conditions, decidedAt,
	)
	return tag.RowsAffected() > 0, err
}
