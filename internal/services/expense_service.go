// Package services – ExpenseService
//
// This file implements ExpenseService, the component that owns expense
// lifecycle and reporting. It validates inputs, enforces per-user ownership,
// and performs every multi-row mutation (expense plus tag links) inside a
// single transaction so an expense is never visible half-tagged.
//
// Amounts cross this boundary in cents; dollar conversion happens in the
// HTTP handlers and the assistant dispatcher.

package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxTitleRunes   = 100
	maxTagNameRunes = 30
)

// ExpenseWithTags pairs an expense row with its resolved tags for responses.
type ExpenseWithTags struct {
	domain.Expense
	Tags []domain.Tag `json:"tags"`
}

// ExpenseSummary aggregates a user's spending. Amounts are cents.
type ExpenseSummary struct {
	TotalAmount int64            `json:"totalAmount"`
	Count       int64            `json:"count"`
	Recent      []domain.Expense `json:"recentExpenses"`
}

// ExpenseInsights reports spending over a trailing window. Amounts are cents.
type ExpenseInsights struct {
	Period        string  `json:"period"`
	TotalAmount   int64   `json:"totalAmount"`
	Count         int64   `json:"count"`
	AveragePerDay float64 `json:"averagePerDay"`
	DaysInPeriod  int     `json:"daysInPeriod"`
}

// SearchParams are the optional filters for expense search. Amount bounds are
// cents and inclusive.
type SearchParams struct {
	Query     string
	MinAmount *int64
	MaxAmount *int64
	TagName   string
	Limit     int
}

// ExpenseService coordinates expense persistence, tagging, and reporting.
type ExpenseService struct {
	DB *gorm.DB

	// Now allows tests to control time. Defaults to time.Now.
	Now func() time.Time
}

// Create validates and persists an expense, resolving each tag name to an
// existing or new tag and linking it, all in one transaction.
func (s *ExpenseService) Create(ctx context.Context, userID, title string, amount int64, tagNames []string, createdAt time.Time) (*ExpenseWithTags, error) {
	tr := otel.Tracer("services/ExpenseService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	names, err := normalizeTagNames(tagNames)
	if err != nil {
		return nil, err
	}

	var out *ExpenseWithTags
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exp, err := repo.CreateExpense(tx, userID, title, amount, createdAt)
		if err != nil {
			return err
		}
		tags := make([]domain.Tag, 0, len(names))
		for _, name := range names {
			tag, err := repo.FindOrCreateTag(tx, userID, name)
			if err != nil {
				return err
			}
			if err := repo.LinkExpenseTag(tx, exp.ID, tag.ID); err != nil {
				return err
			}
			tags = append(tags, *tag)
		}
		out = &ExpenseWithTags{Expense: *exp, Tags: tags}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one expense with its tags, or ErrExpenseNotFound.
func (s *ExpenseService) Get(ctx context.Context, userID string, id int64) (*ExpenseWithTags, error) {
	exp, err := repo.GetExpense(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, err
	}
	tags, err := repo.TagsForExpense(ctx, s.DB, exp.ID)
	if err != nil {
		return nil, err
	}
	return &ExpenseWithTags{Expense: *exp, Tags: tags}, nil
}

// List returns all of the user's expenses with their tags, newest first.
func (s *ExpenseService) List(ctx context.Context, userID string) ([]ExpenseWithTags, error) {
	tr := otel.Tracer("services/ExpenseService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	items, err := repo.ListExpenses(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return s.withTags(ctx, items)
}

// Update replaces an expense's fields and, when tagIDs is non-nil, its tag
// links. Every referenced tag must belong to the user.
func (s *ExpenseService) Update(ctx context.Context, userID string, id int64, title string, amount int64, tagIDs []int64, createdAt time.Time) (*ExpenseWithTags, error) {
	tr := otel.Tracer("services/ExpenseService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("expense.id", id),
		),
	)
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateExpense(tx, id, userID, title, amount, createdAt); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrExpenseNotFound
			}
			return err
		}
		if tagIDs == nil {
			return nil
		}
		for _, tagID := range tagIDs {
			if _, err := repo.GetTag(ctx, tx, tagID, userID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ErrTagNotFound
				}
				return err
			}
		}
		if err := repo.DeleteExpenseLinks(tx, id); err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if err := repo.LinkExpenseTag(tx, id, tagID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes an expense and its tag links, returning the deleted row.
func (s *ExpenseService) Delete(ctx context.Context, userID string, id int64) (*domain.Expense, error) {
	tr := otel.Tracer("services/ExpenseService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int64("expense.id", id),
		),
	)
	defer span.End()

	exp, err := repo.GetExpense(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteExpenseLinks(tx, id); err != nil {
			return err
		}
		if err := repo.DeleteExpense(tx, id, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrExpenseNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// Search applies the optional filters and returns matching expenses, newest
// first.
func (s *ExpenseService) Search(ctx context.Context, userID string, p SearchParams) ([]ExpenseWithTags, error) {
	tr := otel.Tracer("services/ExpenseService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	items, err := repo.SearchExpenses(ctx, s.DB, userID, repo.ExpenseFilter{
		Query:     strings.TrimSpace(p.Query),
		MinAmount: p.MinAmount,
		MaxAmount: p.MaxAmount,
		TagName:   strings.TrimSpace(p.TagName),
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}
	return s.withTags(ctx, items)
}

// Summary returns the user's lifetime totals plus the five most recent
// expenses.
func (s *ExpenseService) Summary(ctx context.Context, userID string) (*ExpenseSummary, error) {
	total, count, err := repo.SummarizeExpenses(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	recent, err := repo.ListRecentExpenses(ctx, s.DB, userID, 5)
	if err != nil {
		return nil, err
	}
	return &ExpenseSummary{TotalAmount: total, Count: count, Recent: recent}, nil
}

// Insights aggregates spending over the named period: "week" is the trailing
// seven days, "month" starts on the first of the current month, and "year"
// starts on January 1st.
func (s *ExpenseService) Insights(ctx context.Context, userID, period string) (*ExpenseInsights, error) {
	now := s.now()
	var since time.Time
	switch period {
	case "week":
		since = now.AddDate(0, 0, -7)
	case "month":
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "year":
		since = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil, ErrInvalidPeriod
	}

	total, count, err := repo.SummarizeExpensesSince(ctx, s.DB, userID, since)
	if err != nil {
		return nil, err
	}

	days := int(now.Sub(since).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return &ExpenseInsights{
		Period:        period,
		TotalAmount:   total,
		Count:         count,
		AveragePerDay: float64(total) / float64(days),
		DaysInPeriod:  days,
	}, nil
}

// withTags resolves tags for a batch of expenses in one query.
func (s *ExpenseService) withTags(ctx context.Context, items []domain.Expense) ([]ExpenseWithTags, error) {
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	byExpense, err := repo.TagsForExpenses(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ExpenseWithTags, len(items))
	for i := range items {
		tags := byExpense[items[i].ID]
		if tags == nil {
			tags = []domain.Tag{}
		}
		out[i] = ExpenseWithTags{Expense: items[i], Tags: tags}
	}
	return out, nil
}

func (s *ExpenseService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// normalizeTagNames trims, validates, and de-duplicates tag names while
// preserving order.
func normalizeTagNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name, err := normalizeTagName(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
