package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type EventLogStore struct {
	db   *bun.DB
	repo repository.Repository[*eventLogRecord]
}

func (s *EventLogStore) Create(ctx context.Context, log core.EventLog) (core.EventLog, error) {
	if s == nil || s.repo == nil {
		return core.EventLog{}, fmt.Errorf("sqlstore: event log store is not configured")
	}
	if strings.TrimSpace(log.PluginID) == "" {
		return core.EventLog{}, fmt.Errorf("sqlstore: plugin id is required")
	}
	if strings.TrimSpace(string(log.Status)) == "" {
		log.Status = core.EventLogStatusReceived
	}

	record := newEventLogRecord(log, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.EventLog{}, err
	}
	return created.toDomain(), nil
}

func (s *EventLogStore) Update(ctx context.Context, log core.EventLog) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: event log store is not configured")
	}
	trimmedID := strings.TrimSpace(log.ID)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: event log id is required")
	}

	record := newEventLogRecord(log, time.Now().UTC())
	record.ID = trimmedID
	_, err := s.repo.Update(ctx, record, repository.UpdateByID(trimmedID))
	return err
}

func (s *EventLogStore) Get(ctx context.Context, id string) (core.EventLog, error) {
	if s == nil || s.repo == nil {
		return core.EventLog{}, fmt.Errorf("sqlstore: event log store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.EventLog{}, err
	}
	return record.toDomain(), nil
}

// ListRecent returns the latest deliveries for a plugin, newest first.
func (s *EventLogStore) ListRecent(ctx context.Context, pluginID string, limit int) ([]core.EventLog, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: event log store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("plugin_id", "=", strings.TrimSpace(pluginID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.EventLog, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
