package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

// Upsert keeps at most one credential row per connection: a reinstall or a
// refresh replaces the payload in place.
func (s *CredentialStore) Upsert(ctx context.Context, in core.SaveCredentialInput) (core.StoredCredential, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.ConnectionID = strings.TrimSpace(in.ConnectionID)
	if in.ConnectionID == "" {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: connection id is required")
	}
	if strings.TrimSpace(in.Payload) == "" {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: credential payload is required")
	}
	if strings.TrimSpace(string(in.Kind)) == "" {
		in.Kind = core.CredentialKindOAuth
	}
	now := time.Now().UTC()

	var out core.StoredCredential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, findErr := s.findByConnectionTx(ctx, tx, in.ConnectionID)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			record := newCredentialRecord(in, now)
			record.ID = uuid.NewString()
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.Kind = string(in.Kind)
		existing.Payload = in.Payload
		existing.ExpiresAt = cloneTimePointer(in.ExpiresAt)
		existing.Refreshable = in.Refreshable
		existing.UpdatedAt = now

		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.StoredCredential{}, err
	}
	return out, nil
}

func (s *CredentialStore) GetByConnection(ctx context.Context, connectionID string) (core.StoredCredential, bool, error) {
	if s == nil || s.repo == nil {
		return core.StoredCredential{}, false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("connection_id", "=", strings.TrimSpace(connectionID)),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.StoredCredential{}, false, err
	}
	if len(records) == 0 {
		return core.StoredCredential{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *CredentialStore) DeleteByConnection(ctx context.Context, connectionID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return fmt.Errorf("sqlstore: connection id is required")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("connection_id = ?", connectionID).
		Exec(ctx)
	return err
}

func (s *CredentialStore) findByConnectionTx(ctx context.Context, tx bun.Tx, connectionID string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.connection_id = ?", connectionID).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}
