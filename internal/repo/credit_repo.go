// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the credit
// ledger: the per-user quota row and its append-only transaction log.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
)

// GetUserCredit fetches the quota row for userID, or ErrNotFound.
func GetUserCredit(ctx context.Context, db *gorm.DB, userID string) (*domain.UserCredit, error) {
	var uc domain.UserCredit
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&uc).Error
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

// CreateUserCredit inserts a fresh quota row with zero usage and free-tier
// limits. A concurrent insert losing the race on the unique user_id index
// falls back to reading the winner's row.
func CreateUserCredit(ctx context.Context, db *gorm.DB, userID string, fnLimit, msgLimit int) (*domain.UserCredit, error) {
	now := time.Now().UTC()
	uc := &domain.UserCredit{
		UserID:             userID,
		FunctionCallsLimit: fnLimit,
		MessagesLimit:      msgLimit,
		LastResetDate:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := db.WithContext(ctx).Create(uc).Error; err != nil {
		if isUniqueViolation(err) {
			return GetUserCredit(ctx, db, userID)
		}
		return nil, err
	}
	return uc, nil
}

// ResetUserCredit zeroes both usage counters and advances last_reset_date to
// now. Returns ErrNotFound if the row is missing.
func ResetUserCredit(db *gorm.DB, userID string, now time.Time) error {
	res := db.Model(&domain.UserCredit{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"function_calls_used": 0,
			"messages_used":       0,
			"last_reset_date":     now,
			"updated_at":          now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ConsumeCredit performs the check and increment for one unit of the given
// kind as a single conditional update:
//
//	UPDATE user_credits SET used = used + 1
//	WHERE user_id = ? AND used < limit
//
// The affected-row count decides the outcome, so two concurrent consumers
// cannot both slip past the limit check. Returns (false, nil) when the quota
// is exhausted; the counters are untouched in that case.
func ConsumeCredit(db *gorm.DB, userID, kind string) (bool, error) {
	var usedCol, limitCol string
	switch kind {
	case domain.CreditKindFunctionCall:
		usedCol, limitCol = "function_calls_used", "function_calls_limit"
	case domain.CreditKindMessage:
		usedCol, limitCol = "messages_used", "messages_limit"
	default:
		return false, errors.New("unknown credit kind: " + kind)
	}

	res := db.Model(&domain.UserCredit{}).
		Where("user_id = ? AND "+usedCol+" < "+limitCol, userID).
		Updates(map[string]any{
			usedCol:      gorm.Expr(usedCol + " + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AppendCreditTransaction writes one row to the append-only accounting log.
// Intended for use inside the same transaction as the counter mutation it
// records.
func AppendCreditTransaction(db *gorm.DB, userID, txType string, amount int, description, metadata string) error {
	return db.Create(&domain.CreditTransaction{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}).Error
}

// ListCreditTransactions returns the newest transactions for userID, capped
// at limit (single page, no cursor).
func ListCreditTransactions(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.CreditTransaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
