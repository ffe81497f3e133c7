package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type User struct {
	ID           string   `db:"id"`
	Email        string   `db:"email"`
	PasswordHash string   `db:"password_hash"`
	Roles        []string `db:"roles"`
	Active       bool     `db:"active"`
}

type Users struct {
	q Querier
}

func NewUsers(q Querier) *Users {
	return &Users{q: q}
}

func (r *Users) FindByEmail(ctx context.Context, email string) (*User, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id::text AS id, email, password_hash,
		        COALESCE(roles, '{}') AS roles, COALESCE(active, true) AS active
		 FROM _users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[User])
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}
