package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/utils"
)

type UserRepo struct{ db *database.DB }

func NewUserRepo(db *database.DB) *UserRepo { return &UserRepo{db: db} }

// Create hashes password, inserts the user and returns the stored record.
// Emails are normalised to lower case.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	id, err := r.db.InsertID(ctx, r.db,
		"INSERT INTO users (email, password_hash, role, created_at) VALUES (?,?,?,?)",
		email, hash, role, toMillis(now))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	return &model.User{ID: uint64(id), Email: email, PasswordHash: hash, Role: role, CreatedAt: now}, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT id,email,password_hash,role,created_at FROM users WHERE email=?", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "SELECT id,email,password_hash,role,created_at FROM users WHERE id=?", id)
}

// SetRole changes a user's role.
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("UPDATE users SET role=? WHERE id=?"), role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPasswordHash replaces a user's stored bcrypt hash.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id uint64, hash string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("UPDATE users SET password_hash=? WHERE id=?"), hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var (
		u         model.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
