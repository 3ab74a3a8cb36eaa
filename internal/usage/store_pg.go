package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore keeps allowances in the usage table. Each operation locks the
// user's row for the length of its transaction.
type PGStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewPGStore constructs a Postgres-backed usage store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db, now: time.Now}
}

func (s *PGStore) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	var out Usage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := s.lockAndEnsure(ctx, tx, userID)
		out = u
		return err
	})
	return out, err
}

func (s *PGStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	var out Usage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := s.lockAndEnsure(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = u
		if n <= 0 {
			return nil
		}
		if u.Used+n > u.Limit {
			return ErrLimitReached
		}
		u.Used += n
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET used = $1, updated_at = NOW() WHERE user_id = $2`, u.Used, userID); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func (s *PGStore) Reset(ctx context.Context, userID string) (Usage, error) {
	u := newAllowance(s.now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO usage (user_id, plan, limit_amount, used, resets_at)
VALUES ($1, $2, $3, 0, $4)
ON CONFLICT (user_id) DO UPDATE SET used = 0, resets_at = EXCLUDED.resets_at, updated_at = NOW()`,
			userID, u.Plan, u.Limit, u.ResetsAt)
		return err
	})
	if err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *PGStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *PGStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string) (Usage, error) {
	now := s.now().UTC()
	var u Usage
	row := tx.QueryRowContext(ctx, `
SELECT plan, limit_amount, used, resets_at FROM usage WHERE user_id = $1 FOR UPDATE`, userID)
	err := row.Scan(&u.Plan, &u.Limit, &u.Used, &u.ResetsAt)
	if errors.Is(err, sql.ErrNoRows) {
		u = newAllowance(now)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO usage (user_id, plan, limit_amount, used, resets_at) VALUES ($1, $2, $3, $4, $5)`,
			userID, u.Plan, u.Limit, u.Used, u.ResetsAt); err != nil {
			return Usage{}, err
		}
		return u, nil
	}
	if err != nil {
		return Usage{}, err
	}

	u, rolled := rollover(u, now)
	if rolled {
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET used = $1, resets_at = $2, updated_at = NOW() WHERE user_id = $3`, u.Used, u.ResetsAt, userID); err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}

var _ Store = (*PGStore)(nil)
