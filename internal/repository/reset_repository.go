package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"asklytics/internal/interfaces"
	"asklytics/internal/models"
)

// resetQueries holds the statements for one channel. Both channels live as
// column pairs on users, so the statements differ only in column names.
type resetQueries struct {
	set    string
	find   string
	clear  string
	redeem string
}

func newResetQueries(secretCol, expiresCol, identifierCol string) resetQueries {
	q := resetQueries{
		set: fmt.Sprintf(`UPDATE users SET %s = $1, %s = $2, updated_at = NOW() WHERE id = $3`,
			secretCol, expiresCol),
		clear: fmt.Sprintf(`UPDATE users SET %s = NULL, %s = NULL, updated_at = NOW() WHERE id = $1`,
			secretCol, expiresCol),
		redeem: fmt.Sprintf(`
		UPDATE users
		SET password_hash = $1, %[1]s = NULL, %[2]s = NULL, updated_at = NOW()
		WHERE id = $2 AND %[1]s = $3 AND %[2]s > $4`, secretCol, expiresCol),
	}
	if identifierCol == "" {
		q.find = fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s = $1 AND %s > $2
		LIMIT 1`, userColumns, secretCol, expiresCol)
	} else {
		q.find = fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s = $1 AND %s = $2 AND %s > $3
		LIMIT 1`, userColumns, identifierCol, secretCol, expiresCol)
	}
	return q
}

var resetChannelQueries = map[models.Channel]resetQueries{
	models.ChannelEmailLink: newResetQueries("reset_token", "reset_token_expires_at", ""),
	models.ChannelMobileOTP: newResetQueries("reset_otp", "reset_otp_expires_at", "mobile"),
}

type resetRepository struct {
	db *sql.DB
}

// NewResetRepository returns the Postgres ResetStore.
func NewResetRepository(db *sql.DB) interfaces.ResetStore {
	return &resetRepository{db: db}
}

func queriesFor(channel models.Channel) (resetQueries, error) {
	q, ok := resetChannelQueries[channel]
	if !ok {
		return resetQueries{}, fmt.Errorf("unknown reset channel %q", channel)
	}
	return q, nil
}

func (r *resetRepository) SetSecret(ctx context.Context, channel models.Channel, userID string, secret string, expiresAt time.Time) error {
	q, err := queriesFor(channel)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q.set, secret, expiresAt.UTC(), userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *resetRepository) FindBySecret(ctx context.Context, channel models.Channel, identifier string, secret string, now time.Time) (*models.User, error) {
	q, err := queriesFor(channel)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrNotFound
	}

	var row *sql.Row
	if channel == models.ChannelMobileOTP {
		if identifier == "" {
			return nil, ErrNotFound
		}
		row = r.db.QueryRowContext(ctx, q.find, identifier, secret, now.UTC())
	} else {
		row = r.db.QueryRowContext(ctx, q.find, secret, now.UTC())
	}
	return scanUser(row)
}

func (r *resetRepository) ClearSecret(ctx context.Context, channel models.Channel, userID string) error {
	q, err := queriesFor(channel)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q.clear, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// RedeemSecret is a compare-and-clear: the WHERE clause re-checks the secret and
// its expiry, so of two concurrent redemptions only one can match the row.
func (r *resetRepository) RedeemSecret(ctx context.Context, channel models.Channel, userID string, secret string, now time.Time, passwordHash string) error {
	q, err := queriesFor(channel)
	if err != nil {
		return err
	}
	if secret == "" {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, q.redeem, passwordHash, userID, secret, now.UTC())
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
