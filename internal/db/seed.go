package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EnsureAdmin inserts the bootstrap admin account unless a user with that
// username already exists. passHash is a bcrypt hash from config.
func EnsureAdmin(ctx context.Context, db *sql.DB, username, passHash string) error {
	var id string
	err := db.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, username).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, username, pass_hash, role, created_at) VALUES ($1,$2,$3,'admin',$4)`,
		uuid.NewString(), username, passHash, time.Now().Unix())
	return err
}
