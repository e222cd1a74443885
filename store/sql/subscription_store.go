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

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{
		db:   db,
		repo: repo,
	}, nil
}

// FindMatching applies null-or-equal routing in SQL: a subscription row with
// an empty event_type or connection_id matches every event.
func (s *SubscriptionStore) FindMatching(ctx context.Context, pluginID, eventType, connectionID string) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return nil, fmt.Errorf("sqlstore: plugin id is required")
	}
	eventType = strings.TrimSpace(eventType)
	connectionID = strings.TrimSpace(connectionID)

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("plugin_id", "=", pluginID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.enabled = ?", true).
				Where("?TableAlias.deleted_at IS NULL").
				Where("(?TableAlias.event_type = '' OR ?TableAlias.event_type = ?)", eventType).
				Where("(?TableAlias.connection_id = '' OR ?TableAlias.connection_id = ?)", connectionID)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Upsert matches an existing row by (plugin_id, event_type, connection_id,
// target) so re-registering a route updates it in place and clears any soft
// delete.
func (s *SubscriptionStore) Upsert(ctx context.Context, in core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.PluginID = strings.TrimSpace(in.PluginID)
	in.EventType = strings.TrimSpace(in.EventType)
	in.ConnectionID = strings.TrimSpace(in.ConnectionID)
	in.TargetURL = strings.TrimSpace(in.TargetURL)
	in.HandlerName = strings.TrimSpace(in.HandlerName)
	if in.PluginID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: plugin id is required")
	}
	switch in.TargetType {
	case core.TargetTypeHTTP:
		if in.TargetURL == "" {
			return core.Subscription{}, fmt.Errorf("sqlstore: target url is required for http subscriptions")
		}
	case core.TargetTypeInternal:
		if in.HandlerName == "" {
			return core.Subscription{}, fmt.Errorf("sqlstore: handler name is required for internal subscriptions")
		}
	default:
		return core.Subscription{}, fmt.Errorf("sqlstore: unsupported target type %q", in.TargetType)
	}
	now := time.Now().UTC()

	var out core.Subscription
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, findErr := s.findByRouteTx(ctx, tx, in)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			record := newSubscriptionRecord(in, now)
			if strings.TrimSpace(record.ID) == "" {
				record.ID = uuid.NewString()
			}
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.TargetMethod = in.TargetMethod
		existing.TargetURL = in.TargetURL
		existing.HandlerName = in.HandlerName
		existing.FilterExpr = in.FilterExpr
		existing.RetryPolicy = in.RetryPolicy
		existing.Enabled = in.Enabled
		existing.Metadata = copyAnyMap(in.Metadata)
		existing.UpdatedAt = now
		existing.DeletedAt = nil

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
		return core.Subscription{}, err
	}
	return out, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) ListByPlugin(ctx context.Context, pluginID string) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("plugin_id", "=", strings.TrimSpace(pluginID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: subscription id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("deleted_at = ?", time.Now().UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", trimmedID).
		Where("deleted_at IS NULL").
		Exec(ctx)
	return err
}

func (s *SubscriptionStore) findByRouteTx(ctx context.Context, tx bun.Tx, in core.Subscription) (*subscriptionRecord, error) {
	record := &subscriptionRecord{}
	query := tx.NewSelect().
		Model(record).
		Where("?TableAlias.plugin_id = ?", in.PluginID).
		Where("?TableAlias.event_type = ?", in.EventType).
		Where("?TableAlias.connection_id = ?", in.ConnectionID).
		Where("?TableAlias.target_type = ?", string(in.TargetType))
	if in.TargetType == core.TargetTypeHTTP {
		query = query.Where("?TableAlias.target_url = ?", in.TargetURL)
	} else {
		query = query.Where("?TableAlias.handler_name = ?", in.HandlerName)
	}

	err := query.
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
