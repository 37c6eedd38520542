package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"asklytics/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByMobile(ctx context.Context, mobile string) (*models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, mobile, password_hash, reset_token, reset_token_expires_at, reset_otp, reset_otp_expires_at, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, mobile, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Mobile, user.PasswordHash, user.CreatedAt, user.UpdatedAt).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		}
		return err
	}
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *userRepository) GetByMobile(ctx context.Context, mobile string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE mobile = $1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, mobile))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var mobile, token, otp sql.NullString
	var tokenExp, otpExp sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &mobile, &u.PasswordHash, &token, &tokenExp, &otp, &otpExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if mobile.Valid {
		u.Mobile = &mobile.String
	}
	if token.Valid {
		u.ResetToken = &token.String
	}
	if tokenExp.Valid {
		u.ResetTokenExpiresAt = &tokenExp.Time
	}
	if otp.Valid {
		u.ResetOTP = &otp.String
	}
	if otpExp.Valid {
		u.ResetOTPExpiresAt = &otpExp.Time
	}
	return &u, nil
}
