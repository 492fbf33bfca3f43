package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/carriersync/pkg/carrier"
)

// Session is an authenticated app session for a shop.
type Session struct {
	ID          string
	Shop        string
	AccessToken string
	Scope       string
	UpdatedAt   time.Time
}

// SessionStore reads and writes sessions. It also serves as the credential
// provider: tokens are read on every call and never cached.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Put inserts or replaces a session.
func (s *SessionStore) Put(ctx context.Context, sess Session) error {
	_, err := s.db.db.ExecContext(ctx, s.db.rebind(`INSERT INTO sessions (id, shop, access_token, scope, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		shop = excluded.shop,
		access_token = excluded.access_token,
		scope = excluded.scope,
		updated_at = excluded.updated_at`),
		sess.ID, sess.Shop, sess.AccessToken, sess.Scope, s.db.now(),
	)
	if err != nil {
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}
	return nil
}

// GetByShop returns the most recently written session of shop, or ErrNotFound.
func (s *SessionStore) GetByShop(ctx context.Context, shop string) (Session, error) {
	var sess Session
	err := s.db.db.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, shop, access_token, scope, updated_at FROM sessions WHERE shop = ? ORDER BY updated_at DESC LIMIT 1`), shop).
		Scan(&sess.ID, &sess.Shop, &sess.AccessToken, &sess.Scope, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session for %s: %w", shop, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session for %s: %w", shop, err)
	}
	return sess, nil
}

// UpdateScope sets the granted scope on every session of shop. updated_at is
// left alone so the latest written token keeps winning in GetByShop.
func (s *SessionStore) UpdateScope(ctx context.Context, shop, scope string) error {
	res, err := s.db.db.ExecContext(ctx, s.db.rebind(
		`UPDATE sessions SET scope = ? WHERE shop = ?`), scope, shop)
	if err != nil {
		return fmt.Errorf("updating scope for %s: %w", shop, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session for %s: %w", shop, ErrNotFound)
	}
	return nil
}

// DeleteByShop removes every session of shop.
func (s *SessionStore) DeleteByShop(ctx context.Context, shop string) error {
	if _, err := s.db.db.ExecContext(ctx, s.db.rebind(`DELETE FROM sessions WHERE shop = ?`), shop); err != nil {
		return fmt.Errorf("deleting sessions for %s: %w", shop, err)
	}
	return nil
}

// Credentials returns fresh credentials for shop from its latest session.
func (s *SessionStore) Credentials(ctx context.Context, shop string) (carrier.Credentials, error) {
	sess, err := s.GetByShop(ctx, shop)
	if err != nil {
		return carrier.Credentials{}, err
	}
	return carrier.Credentials{StoreDomain: sess.Shop, AccessToken: sess.AccessToken}, nil
}
