package sqlstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// SQLStateStore backs OAuth state tokens with a shared table so install
// redirect and callback may land on different gateway instances.
type SQLStateStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewSQLStateStore(db *bun.DB) (*SQLStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SQLStateStore{
		db: db,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *SQLStateStore) GenerateAndStore(ctx context.Context, pluginID string, ttl time.Duration) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("sqlstore: state store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	if pluginID == "" {
		return "", fmt.Errorf("sqlstore: plugin id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("sqlstore: state ttl must be positive")
	}
	state, err := generateOpaqueToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	// Opportunistic sweep: abandoned installs never present their state, so
	// expired rows are cleared on the write path like the memory stores do.
	if _, err := s.db.NewDelete().
		Model((*oauthStateRecord)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx); err != nil {
		return "", err
	}

	record := &oauthStateRecord{
		State:     state,
		PluginID:  pluginID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return "", err
	}
	return state, nil
}

// ValidateAndConsume removes the row before checking validity, so a state is
// burned even when the checks that follow fail.
func (s *SQLStateStore) ValidateAndConsume(ctx context.Context, pluginID, state string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: state store is not configured")
	}
	pluginID = strings.TrimSpace(pluginID)
	state = strings.TrimSpace(state)
	if pluginID == "" || state == "" {
		return false, nil
	}

	var valid bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &oauthStateRecord{}
		findErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx)
		if findErr != nil {
			if findErr == sql.ErrNoRows {
				return nil
			}
			return findErr
		}
		if _, deleteErr := tx.NewDelete().
			Model((*oauthStateRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx); deleteErr != nil {
			return deleteErr
		}
		valid = record.PluginID == pluginID && s.now().Before(record.ExpiresAt)
		return nil
	})
	if err != nil {
		return false, err
	}
	return valid, nil
}

// SQLPKCEStore keeps code verifiers in the shared database, keyed by the
// state token that carries them between redirect and callback.
type SQLPKCEStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewSQLPKCEStore(db *bun.DB) (*SQLPKCEStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SQLPKCEStore{
		db: db,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *SQLPKCEStore) Store(ctx context.Context, state, codeVerifier string, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: pkce store is not configured")
	}
	state = strings.TrimSpace(state)
	codeVerifier = strings.TrimSpace(codeVerifier)
	if state == "" {
		return fmt.Errorf("sqlstore: state is required")
	}
	if codeVerifier == "" {
		return fmt.Errorf("sqlstore: code verifier is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("sqlstore: pkce ttl must be positive")
	}

	now := s.now()
	if _, err := s.db.NewDelete().
		Model((*pkceRecord)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx); err != nil {
		return err
	}

	record := &pkceRecord{
		State:        state,
		CodeVerifier: codeVerifier,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (s *SQLPKCEStore) Consume(ctx context.Context, state string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: pkce store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false, nil
	}

	var (
		verifier string
		found    bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &pkceRecord{}
		findErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx)
		if findErr != nil {
			if findErr == sql.ErrNoRows {
				return nil
			}
			return findErr
		}
		if _, deleteErr := tx.NewDelete().
			Model((*pkceRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx); deleteErr != nil {
			return deleteErr
		}
		if s.now().Before(record.ExpiresAt) {
			verifier = record.CodeVerifier
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return verifier, found, nil
}

func generateOpaqueToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sqlstore: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
