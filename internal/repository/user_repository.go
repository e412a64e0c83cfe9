package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `
SELECT id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), standard_credits, premium_credits, created_at, updated_at
FROM users WHERE telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.StandardCredits, &u.PremiumCredits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, username, first_name, last_name, standard_credits, premium_credits)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	res, err := r.db.ExecContext(ctx, query, user.TelegramID, user.Username, user.FirstName, user.LastName, user.StandardCredits, user.PremiumCredits)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, firstName, lastName string) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, ''), last_name = NULLIF(?, ''), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, firstName, lastName, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Ensure returns the user for the telegram id, creating the record on first
// login. Profile fields are refreshed in the background for existing users.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		go func() {
			_ = r.UpdateProfile(context.Background(), user.ID, username, firstName, lastName)
		}()
		return user, false, nil
	}
	newUser := &models.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	}
	created, err := r.Create(ctx, newUser)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// AddCredits grants purchased credits to both balances at once.
func (r *UserRepository) AddCredits(ctx context.Context, userID int64, standard, premium int) error {
	const query = `
UPDATE users SET standard_credits = standard_credits + ?, premium_credits = premium_credits + ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, standard, premium, userID); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	return nil
}

// ConsumeCredit atomically decrements one credit of the tier. It reports
// false when the balance was already empty, which callers treat as a lost
// race rather than an error.
func (r *UserRepository) ConsumeCredit(ctx context.Context, userID int64, tier models.CreditTier) (bool, error) {
	column := "standard_credits"
	if tier == models.TierPremium {
		column = "premium_credits"
	}
	query := fmt.Sprintf(`
UPDATE users SET %s = %s - 1, updated_at = NOW()
WHERE id = ? AND %s >= 1`, column, column, column)
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("consume %s credit: %w", tier, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("credit rows affected: %w", err)
	}
	return affected > 0, nil
}
