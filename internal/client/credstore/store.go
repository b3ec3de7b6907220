// Package credstore persists the session credential between runs: the raw
// API key and a JSON copy of the user profile, both in the "anansi"
// namespace of the client metadata table.
package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/anansi/internal/client/models"
	"github.com/dmitrijs2005/anansi/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/anansi/internal/dbx"
	"github.com/dmitrijs2005/anansi/internal/logging"
)

const (
	Namespace      = "anansi"
	KeyAPIKey      = "anansi_api_key"
	KeyUserProfile = "anansi_user_profile"
)

// ErrMalformedProfile is returned alongside a nil profile when the cached
// value cannot be decoded. Callers treat it as "no cached profile".
var ErrMalformedProfile = errors.New("malformed cached profile")

// Store is safe for concurrent use; SQLite serializes the writes.
type Store struct {
	db   *sql.DB
	repo *metadata.SQLiteRepository
	log  logging.Logger
}

func New(db *sql.DB, log logging.Logger) *Store {
	return &Store{
		db:   db,
		repo: metadata.NewSQLiteRepository(db, Namespace),
		log:  log.With("component", "credstore"),
	}
}

// SaveAPIKey stores key as-is, overwriting any previous value.
func (s *Store) SaveAPIKey(ctx context.Context, key string) error {
	return s.repo.Set(ctx, KeyAPIKey, []byte(key))
}

// APIKey returns the stored key, or "" when none is stored. The error is
// reserved for storage failures.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	v, err := s.repo.Get(ctx, KeyAPIKey)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Store) SaveUserProfile(ctx context.Context, p *models.UserProfile) error {
	return saveProfile(ctx, s.repo, p)
}

// UserProfile returns (nil, nil) when nothing is cached and
// (nil, ErrMalformedProfile) when the cached value does not decode.
func (s *Store) UserProfile(ctx context.Context) (*models.UserProfile, error) {
	v, err := s.repo.Get(ctx, KeyUserProfile)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	p, err := decodeProfile(v)
	if err != nil {
		s.log.Warn(ctx, "cached profile is unreadable", "error", err)
		return nil, err
	}
	return p, nil
}

// SaveSession writes the key and the profile in one transaction.
func (s *Store) SaveSession(ctx context.Context, apiKey string, p *models.UserProfile) error {
	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo.WithDB(tx)
		if err := repo.Set(ctx, KeyAPIKey, []byte(apiKey)); err != nil {
			return err
		}
		return saveProfile(ctx, repo, p)
	})
}

// Clear removes both entries. It is idempotent.
func (s *Store) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyAPIKey, KeyUserProfile)
}

func saveProfile(ctx context.Context, repo metadata.Repository, p *models.UserProfile) error {
	if p == nil {
		return errors.New("nil profile")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return repo.Set(ctx, KeyUserProfile, b)
}

// decodeProfile reads a stored JSON null as no profile.
func decodeProfile(b []byte) (*models.UserProfile, error) {
	var p *models.UserProfile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	return p, nil
}
