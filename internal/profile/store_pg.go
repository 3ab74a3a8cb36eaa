package profile

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PGStore struct {
	DB *sql.DB
}

func (s *PGStore) Get(ctx context.Context, uid string) (Profile, error) {
	const query = `
SELECT uid, email, display_name, photo_url, created_at, updated_at
FROM profiles
WHERE uid = $1
LIMIT 1`
	var p Profile
	err := s.DB.QueryRowContext(ctx, query, uid).Scan(
		&p.UID,
		&p.Email,
		&p.DisplayName,
		&p.PhotoURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

func (s *PGStore) Create(ctx context.Context, p Profile) error {
	const query = `
INSERT INTO profiles (uid, email, display_name, photo_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (uid) DO UPDATE SET
  email = EXCLUDED.email,
  display_name = EXCLUDED.display_name,
  photo_url = EXCLUDED.photo_url,
  created_at = EXCLUDED.created_at,
  updated_at = EXCLUDED.updated_at`
	_, err := s.DB.ExecContext(ctx, query, p.UID, p.Email, p.DisplayName, p.PhotoURL, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *PGStore) Patch(ctx context.Context, uid string, upd Update, updatedAt time.Time) error {
	const query = `
UPDATE profiles SET
  display_name = COALESCE($2, display_name),
  photo_url = COALESCE($3, photo_url),
  updated_at = $4
WHERE uid = $1`
	res, err := s.DB.ExecContext(ctx, query, uid, nullable(upd.DisplayName), nullable(upd.PhotoURL), updatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

var _ Store = (*PGStore)(nil)
