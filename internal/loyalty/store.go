package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAccountNotFound indicates the member id or code is unknown.
var ErrAccountNotFound = errors.New("loyalty: account not found")

// Store looks up loyalty accounts in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

const findAccountSQL = `
SELECT id::text, code, name, point_balance
FROM members
WHERE id::text = $1 OR code = $1
`

// FindAccount resolves a member by id or member code.
func (s *Store) FindAccount(ctx context.Context, idOrCode string) (Account, error) {
	if s == nil || s.Pool == nil {
		return Account{}, errors.New("loyalty: store not configured")
	}
	var (
		id   string
		acct Account
	)
	row := s.Pool.QueryRow(ctx, findAccountSQL, idOrCode)
	if err := row.Scan(&id, &acct.Code, &acct.Name, &acct.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("loyalty: find account: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Account{}, fmt.Errorf("loyalty: parse account id: %w", err)
	}
	acct.ID = parsed
	return acct, nil
}

const deductPointsSQL = `
UPDATE members SET point_balance = point_balance - $2
WHERE id = $1 AND point_balance >= $2
`

// DeductPoints settles a redeemed point count against the member balance.
func (s *Store) DeductPoints(ctx context.Context, id uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	tag, err := s.Pool.Exec(ctx, deductPointsSQL, id, points)
	if err != nil {
		return fmt.Errorf("loyalty: deduct points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const addPointsSQL = `
UPDATE members SET point_balance = point_balance + $2 WHERE id = $1
`

// AddPoints credits earned points after a completed transaction.
func (s *Store) AddPoints(ctx context.Context, id uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	if _, err := s.Pool.Exec(ctx, addPointsSQL, id, points); err != nil {
		return fmt.Errorf("loyalty: add points: %w", err)
	}
	return nil
}
