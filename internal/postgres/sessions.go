package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/payment"
)

const sessionColumns = `id, user_id, order_id, package_id, amount::text, currency, status, url, created_at, updated_at`

func (s *Store) CreateSession(ctx context.Context, ps payment.Session) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payment_sessions(id, user_id, order_id, package_id, amount, currency, status, url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10)`,
		ps.ID, ps.UserID, ps.OrderID, ps.PackageID, ps.Amount.String(), ps.Currency, string(ps.Status), ps.URL, ps.CreatedAt, ps.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Newf(apperr.KindValidation, "payment session %s already exists", ps.ID)
	}
	return err
}

func (s *Store) Session(ctx context.Context, id string) (payment.Session, error) {
	return scanSession(s.DB.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE id=$1`, id))
}

// SetSessionStatus is a compare-and-set on status.
func (s *Store) SetSessionStatus(ctx context.Context, id string, from, to payment.Status) (payment.Session, error) {
	ps, err := scanSession(s.DB.QueryRow(ctx, `
		UPDATE payment_sessions SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2
		RETURNING `+sessionColumns, id, string(from), string(to)))
	if !errors.Is(err, payment.ErrSessionNotFound) {
		return ps, err
	}
	// zero rows: either unknown or no longer in from
	if _, err := s.Session(ctx, id); err != nil {
		return payment.Session{}, err
	}
	return payment.Session{}, payment.ErrStale
}

func scanSession(row pgx.Row) (payment.Session, error) {
	var ps payment.Session
	var amount, status string
	err := row.Scan(&ps.ID, &ps.UserID, &ps.OrderID, &ps.PackageID, &amount, &ps.Currency, &status, &ps.URL, &ps.CreatedAt, &ps.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	if err != nil {
		return payment.Session{}, err
	}
	ps.Status = payment.Status(status)
	if ps.Amount, err = decimal.NewFromString(amount); err != nil {
		return payment.Session{}, err
	}
	return ps, nil
}
