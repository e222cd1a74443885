package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ConnectionStore struct {
	db   *bun.DB
	repo repository.Repository[*connectionRecord]
}

func (s *ConnectionStore) Create(ctx context.Context, in core.CreateConnectionInput) (core.Connection, error) {
	if s == nil || s.repo == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	in.PluginID = strings.TrimSpace(in.PluginID)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.PluginID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: plugin id is required")
	}
	if in.ExternalID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: external id is required")
	}
	if strings.TrimSpace(string(in.Scope)) == "" {
		in.Scope = core.ScopeWorkspace
	}

	record := newConnectionRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Connection{}, err
	}
	return created.toDomain(), nil
}

func (s *ConnectionStore) Get(ctx context.Context, id string) (core.Connection, error) {
	if s == nil || s.repo == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Connection{}, err
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) FindByExternalID(ctx context.Context, pluginID, externalID string) (core.Connection, bool, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, false, fmt.Errorf("sqlstore: connection store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	externalID = strings.TrimSpace(externalID)
	if pluginID == "" || externalID == "" {
		return core.Connection{}, false, fmt.Errorf("sqlstore: plugin id and external id are required")
	}

	record := &connectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.plugin_id = ?", pluginID).
		Where("?TableAlias.external_id = ?", externalID).
		Where("?TableAlias.deleted_at IS NULL").
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Connection{}, false, nil
		}
		return core.Connection{}, false, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return core.Connection{}, false, nil
	}
	return record.toDomain(), true, nil
}

func (s *ConnectionStore) Update(ctx context.Context, in core.UpdateConnectionInput) (core.Connection, error) {
	if s == nil || s.repo == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	trimmedID := strings.TrimSpace(in.ID)
	if trimmedID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: connection id is required")
	}

	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		return core.Connection{}, err
	}
	if name := strings.TrimSpace(in.ExternalName); name != "" {
		current.ExternalName = name
	}
	if status := strings.TrimSpace(string(in.Status)); status != "" {
		current.Status = status
	}
	if in.Metadata != nil {
		current.Metadata = RedactMetadata(in.Metadata)
	}
	current.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	if err != nil {
		return core.Connection{}, err
	}
	return updated.toDomain(), nil
}

func (s *ConnectionStore) ListActive(ctx context.Context, pluginID string) ([]core.Connection, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("plugin_id", "=", strings.TrimSpace(pluginID)),
		repository.SelectBy("status", "=", string(core.ConnectionStatusActive)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Connection, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
