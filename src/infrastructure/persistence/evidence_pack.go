package persistence

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type evidencePackRepository struct {
	db config.PgxIface
}

func NewEvidencePackRepository(db config.PgxIface) repository.EvidencePackRepository {
	return &evidencePackRepository{db}
}

func (self *evidencePackRepository) WithQuerier(querier config.PgxIface) repository.EvidencePackRepository {
	return &evidencePackRepository{querier}
}

const evidencePackColumns = `id, correlation_id, artifact_digest, signature, sbom, scan, rollback, tests, scope, created_at`

func (self *evidencePackRepository) GetById(id uuid.UUID) (*domain.EvidencePack, error) {
	pack := domain.EvidencePack{}
	err := pgxscan.Get(
		context.Background(), self.db, &pack,
		`SELECT `+evidencePackColumns+` FROM evidence_pack WHERE id = $1`,
		id,
	)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &pack, err
}

func (self *evidencePackRepository) GetByCorrelationId(id uuid.UUID) (*domain.EvidencePack, error) {
	pack := domain.EvidencePack{}
	err := pgxscan.Get(
		context.Background(), self.db, &pack,
		`SELECT `+evidencePackColumns+` FROM evidence_pack WHERE correlation_id = $1 ORDER BY created_at DESC FETCH FIRST ROW ONLY`,
		id,
	)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &pack, err
}

func (self *evidencePackRepository) Save(pack *domain.EvidencePack) error {
	var scope *string
	if pack.Scope != nil {
		str, err := pack.Scope.String()
		if err != nil {
			return err
		}
		scope = &str
	}

	return self.db.QueryRow(
		context.Background(),
		`INSERT INTO evidence_pack (id, correlation_id, artifact_digest, signature, sbom, scan, rollback, tests, scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		pack.ID, pack.CorrelationId, pack.ArtifactDigest,
		pack.Signature, pack.Sbom, pack.Scan, pack.Rollback, pack.Tests, scope,
	).Scan(&pack.CreatedAt)
}
