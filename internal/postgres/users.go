package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/auth"
)

var errUserNotFound = apperr.New(apperr.KindNotFound, "user not found")

const userColumns = `id, name, email, password_hash, role, active, created_at`

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO users(id, name, email, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Active, u.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.KindDuplicateEmail, "email already registered")
	}
	return err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *Store) ListUsers(ctx context.Context, role auth.Role) ([]auth.User, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE $1 = '' OR role = $1
		ORDER BY created_at`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	ct, err := s.DB.Exec(ctx, `UPDATE users SET active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (auth.User, error) {
	var u auth.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, errUserNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	return u, nil
}
