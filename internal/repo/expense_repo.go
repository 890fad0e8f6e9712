// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Expense
// model and its tag links.
//
// All exported functions accept a *gorm.DB handle, making them safe for use
// within transactions or connection-scoped operations. They follow the "thin
// repository" approach: no business logic, only CRUD persistence and query
// composition. Every query is scoped by the owning user's ID; cross-user
// access is a correctness invariant enforced here, not by the schema.
//
// Error semantics:
//   - When an expense is not found (or owned by another user), functions
//     return gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ExpenseFilter narrows SearchExpenses results. Zero values mean "no
// constraint". Amounts are in cents; the service layer converts from the
// dollar values accepted at the boundary.
type ExpenseFilter struct {
	Query     string // substring match on title
	MinAmount *int64 // cents, inclusive
	MaxAmount *int64 // cents, inclusive
	TagName   string // exact tag name, applied through the join table
	Limit     int    // max rows; <= 0 falls back to 10
}

// CreateExpense inserts a new expense row owned by userID. A zero createdAt
// defaults to the current UTC time; a non-zero value backdates the entry.
// Intended for use inside a transaction handle when tag links follow.
func CreateExpense(db *gorm.DB, userID, title string, amount int64, createdAt time.Time) (*domain.Expense, error) {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	e := &domain.Expense{
		Title:     title,
		Amount:    amount,
		UserID:    userID,
		CreatedAt: createdAt,
	}
	if err := db.Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// GetExpense fetches a single expense by ID and owner. Returns ErrNotFound
// when the row is missing or belongs to a different user; the two cases are
// deliberately indistinguishable.
func GetExpense(ctx context.Context, db *gorm.DB, id int64, userID string) (*domain.Expense, error) {
	var e domain.Expense
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExpenses returns all expenses belonging to userID, newest first.
func ListExpenses(ctx context.Context, db *gorm.DB, userID string) ([]domain.Expense, error) {
	var out []domain.Expense
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// UpdateExpense overwrites the title and amount (and optionally the creation
// date) of an expense owned by userID. Returns ErrNotFound when no row
// matched.
func UpdateExpense(db *gorm.DB, id int64, userID, title string, amount int64, createdAt time.Time) error {
	fields := map[string]any{
		"title":  title,
		"amount": amount,
	}
	if !createdAt.IsZero() {
		fields["created_at"] = createdAt
	}
	res := db.Model(&domain.Expense{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteExpense removes an expense row scoped to its owner. Join rows are the
// caller's responsibility (see DeleteExpenseLinks); the service wraps both in
// one transaction.
func DeleteExpense(db *gorm.DB, id int64, userID string) error {
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Expense{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchExpenses returns expenses for userID matching the filter, newest
// first. The tag filter, when present, is applied through the expense_tags
// join so only expenses carrying that exact tag are returned.
func SearchExpenses(ctx context.Context, db *gorm.DB, userID string, f ExpenseFilter) ([]domain.Expense, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	q := db.WithContext(ctx).
		Model(&domain.Expense{}).
		Where("expenses.user_id = ?", userID)

	if f.Query != "" {
		q = q.Where("expenses.title LIKE ?", "%"+f.Query+"%")
	}
	if f.MinAmount != nil {
		q = q.Where("expenses.amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("expenses.amount <= ?", *f.MaxAmount)
	}
	if f.TagName != "" {
		q = q.Joins("JOIN expense_tags ON expense_tags.expense_id = expenses.id").
			Joins("JOIN tags ON tags.id = expense_tags.tag_id").
			Where("tags.tag_name = ? AND tags.user_id = ?", f.TagName, userID)
	}

	var out []domain.Expense
	err := q.Order("expenses.created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// SummarizeExpenses returns the total amount (cents) and row count across all
// of a user's expenses in a single aggregate query.
func SummarizeExpenses(ctx context.Context, db *gorm.DB, userID string) (total int64, count int64, err error) {
	var row struct {
		Total int64
		Count int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Expense{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Scan(&row).Error
	return row.Total, row.Count, err
}

// SummarizeExpensesSince is SummarizeExpenses restricted to rows created at
// or after the given instant. Used for period insights.
func SummarizeExpensesSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (total int64, count int64, err error) {
	var row struct {
		Total int64
		Count int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Expense{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&row).Error
	return row.Total, row.Count, err
}

// ListRecentExpenses returns the newest expenses for a user, capped at limit.
func ListRecentExpenses(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Expense, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []domain.Expense
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LinkExpenseTag inserts one join row. Intended for use inside the same
// transaction that created (or verified) both sides.
func LinkExpenseTag(db *gorm.DB, expenseID, tagID int64) error {
	return db.Create(&domain.ExpenseTag{
		ExpenseID: expenseID,
		TagID:     tagID,
		CreatedAt: time.Now().UTC(),
	}).Error
}

// DeleteExpenseLinks removes every join row referencing the given expense.
func DeleteExpenseLinks(db *gorm.DB, expenseID int64) error {
	return db.Where("expense_id = ?", expenseID).Delete(&domain.ExpenseTag{}).Error
}

// TagsForExpense returns the tags linked to one expense, sorted by name.
func TagsForExpense(ctx context.Context, db *gorm.DB, expenseID int64) ([]domain.Tag, error) {
	var out []domain.Tag
	err := db.WithContext(ctx).
		Model(&domain.Tag{}).
		Joins("JOIN expense_tags ON expense_tags.tag_id = tags.id").
		Where("expense_tags.expense_id = ?", expenseID).
		Order("tags.tag_name asc").
		Find(&out).Error
	return out, err
}

// TagsForExpenses resolves tag links for a batch of expense IDs in one query,
// returning a map keyed by expense ID. Used by the list endpoint to avoid an
// N+1 fan-out.
func TagsForExpenses(ctx context.Context, db *gorm.DB, expenseIDs []int64) (map[int64][]domain.Tag, error) {
	out := make(map[int64][]domain.Tag, len(expenseIDs))
	if len(expenseIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		domain.Tag
		ExpenseID int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Tag{}).
		Select("tags.*, expense_tags.expense_id AS expense_id").
		Joins("JOIN expense_tags ON expense_tags.tag_id = tags.id").
		Where("expense_tags.expense_id IN ?", expenseIDs).
		Order("tags.tag_name asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ExpenseID] = append(out[r.ExpenseID], r.Tag)
	}
	return out, nil
}
