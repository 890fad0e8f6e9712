// Package assistant – tool dispatcher
//
// This file declares the function-calling surface exposed to the model and
// the dispatcher that executes a named tool with loosely-typed arguments.
// Every tool validates its arguments before touching storage and returns a
// map result with a "success" flag and a human-readable "message", so the
// model can relay outcomes verbatim; validation failures never reach the
// database.
//
// Amounts cross this boundary in dollars, matching what the model reads and
// writes in conversation. Conversion to stored cents happens here.

package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-expense-backend/internal/services"
)

// Tool names dispatched by the assistant loop.
const (
	ToolCreateExpense      = "create_expense"
	ToolGetAllTags         = "get_all_tags"
	ToolGetExpenseSummary  = "get_expense_summary"
	ToolSearchExpenses     = "search_expenses"
	ToolCreateTag          = "create_tag"
	ToolGetExpenseInsights = "get_expense_insights"
	ToolDeleteExpense      = "delete_expense"
)

// Dispatcher executes assistant tool calls against the expense and tag
// services on behalf of one user per call.
type Dispatcher struct {
	Expenses *services.ExpenseService
	Tags     *services.TagService
}

// Declarations returns the function schema advertised to the model.
func Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        ToolCreateExpense,
			Description: "Record a new expense for the user. Amount is in dollars.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title": {
						Type:        genai.TypeString,
						Description: "Short description of the expense, e.g. 'Lunch at cafe'.",
					},
					"amount": {
						Type:        genai.TypeNumber,
						Description: "Expense amount in dollars, e.g. 4.50.",
					},
					"tags": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "Optional tag names to attach; missing tags are created.",
					},
				},
				Required: []string{"title", "amount"},
			},
		},
		{
			Name:        ToolGetAllTags,
			Description: "List every tag the user has, in alphabetical order.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{},
			},
		},
		{
			Name:        ToolGetExpenseSummary,
			Description: "Get the user's total spending, expense count, and most recent expenses.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{},
			},
		},
		{
			Name:        ToolSearchExpenses,
			Description: "Search the user's expenses by title keyword, amount range, or tag name.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "Keyword matched against expense titles.",
					},
					"minAmount": {
						Type:        genai.TypeNumber,
						Description: "Minimum amount in dollars, inclusive.",
					},
					"maxAmount": {
						Type:        genai.TypeNumber,
						Description: "Maximum amount in dollars, inclusive.",
					},
					"tagName": {
						Type:        genai.TypeString,
						Description: "Only expenses carrying this exact tag.",
					},
					"limit": {
						Type:        genai.TypeInteger,
						Description: "Maximum results to return; defaults to 20.",
					},
				},
			},
		},
		{
			Name:        ToolCreateTag,
			Description: "Create a new tag for categorizing expenses.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"tagName": {
						Type:        genai.TypeString,
						Description: "Tag name, 1-30 characters.",
					},
				},
				Required: []string{"tagName"},
			},
		},
		{
			Name:        ToolGetExpenseInsights,
			Description: "Summarize spending over a period: week, month, or year.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"period": {
						Type:        genai.TypeString,
						Description: "One of 'week', 'month', or 'year'.",
					},
				},
				Required: []string{"period"},
			},
		},
		{
			Name:        ToolDeleteExpense,
			Description: "Delete one of the user's expenses by its numeric id.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"expenseId": {
						Type:        genai.TypeInteger,
						Description: "Id of the expense to delete.",
					},
				},
				Required: []string{"expenseId"},
			},
		},
	}
}

// Dispatch runs the named tool for the user and returns its result map. An
// unknown name or invalid arguments produce a failed result, never an error;
// the model is expected to read the message and recover.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, name string, args map[string]any) map[string]any {
	log.Debug().Str("tool", name).Str("user_id", userID).Msg("assistant tool call")

	switch name {
	case ToolCreateExpense:
		return d.createExpense(ctx, userID, args)
	case ToolGetAllTags:
		return d.getAllTags(ctx, userID)
	case ToolGetExpenseSummary:
		return d.getExpenseSummary(ctx, userID)
	case ToolSearchExpenses:
		return d.searchExpenses(ctx, userID, args)
	case ToolCreateTag:
		return d.createTag(ctx, userID, args)
	case ToolGetExpenseInsights:
		return d.getExpenseInsights(ctx, userID, args)
	case ToolDeleteExpense:
		return d.deleteExpense(ctx, userID, args)
	default:
		return failure(fmt.Sprintf("Unknown tool %q", name))
	}
}

func (d *Dispatcher) createExpense(ctx context.Context, userID string, args map[string]any) map[string]any {
	title, ok := stringArg(args, "title")
	if !ok || title == "" {
		return failure("A title is required to create an expense")
	}
	amount, ok := numberArg(args, "amount")
	if !ok || amount <= 0 {
		return failure("Amount must be a positive number of dollars")
	}
	tags, ok := stringSliceArg(args, "tags")
	if !ok {
		return failure("Tags must be a list of tag names")
	}

	exp, err := d.Expenses.Create(ctx, userID, title, services.Cents(amount), tags, time.Time{})
	if err != nil {
		return serviceFailure(err)
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Recorded %q for $%.2f", exp.Title, services.Dollars(exp.Amount)),
		"expense": expenseResult(exp),
	}
}

func (d *Dispatcher) getAllTags(ctx context.Context, userID string) map[string]any {
	tags, err := d.Tags.List(ctx, userID)
	if err != nil {
		return serviceFailure(err)
	}
	out := make([]map[string]any, len(tags))
	for i, t := range tags {
		out[i] = map[string]any{"id": t.ID, "tagName": t.TagName}
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("You have %d tags", len(tags)),
		"tags":    out,
		"count":   len(tags),
	}
}

func (d *Dispatcher) getExpenseSummary(ctx context.Context, userID string) map[string]any {
	sum, err := d.Expenses.Summary(ctx, userID)
	if err != nil {
		return serviceFailure(err)
	}
	recent := make([]map[string]any, len(sum.Recent))
	for i, e := range sum.Recent {
		recent[i] = map[string]any{
			"id":        e.ID,
			"title":     e.Title,
			"amount":    services.Dollars(e.Amount),
			"createdAt": e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("Total spending is $%.2f across %d expenses", services.Dollars(sum.TotalAmount), sum.Count),
		"totalAmount":    services.Dollars(sum.TotalAmount),
		"count":          sum.Count,
		"recentExpenses": recent,
	}
}

func (d *Dispatcher) searchExpenses(ctx context.Context, userID string, args map[string]any) map[string]any {
	p := services.SearchParams{}
	p.Query, _ = stringArg(args, "query")
	p.TagName, _ = stringArg(args, "tagName")
	if v, ok := numberArg(args, "minAmount"); ok {
		c := services.Cents(v)
		p.MinAmount = &c
	}
	if v, ok := numberArg(args, "maxAmount"); ok {
		c := services.Cents(v)
		p.MaxAmount = &c
	}
	if v, ok := numberArg(args, "limit"); ok {
		p.Limit = int(v)
	}

	items, err := d.Expenses.Search(ctx, userID, p)
	if err != nil {
		return serviceFailure(err)
	}
	out := make([]map[string]any, len(items))
	for i := range items {
		out[i] = expenseResult(&items[i])
	}
	return map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("Found %d matching expenses", len(items)),
		"expenses": out,
		"count":    len(items),
	}
}

func (d *Dispatcher) createTag(ctx context.Context, userID string, args map[string]any) map[string]any {
	name, ok := stringArg(args, "tagName")
	if !ok || name == "" {
		return failure("A tag name is required")
	}

	tag, err := d.Tags.Create(ctx, userID, name)
	if errors.Is(err, services.ErrDuplicateTag) {
		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Tag %q already exists", tag.TagName),
			"tag":     map[string]any{"id": tag.ID, "tagName": tag.TagName},
		}
	}
	if err != nil {
		return serviceFailure(err)
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Created tag %q", tag.TagName),
		"tag":     map[string]any{"id": tag.ID, "tagName": tag.TagName},
	}
}

func (d *Dispatcher) getExpenseInsights(ctx context.Context, userID string, args map[string]any) map[string]any {
	period, ok := stringArg(args, "period")
	if !ok || period == "" {
		return failure("A period of week, month, or year is required")
	}

	ins, err := d.Expenses.Insights(ctx, userID, period)
	if err != nil {
		return serviceFailure(err)
	}
	return map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Spent $%.2f over the last %s", services.Dollars(ins.TotalAmount), ins.Period),
		"period":        ins.Period,
		"totalAmount":   services.Dollars(ins.TotalAmount),
		"count":         ins.Count,
		"averagePerDay": ins.AveragePerDay / 100,
		"daysInPeriod":  ins.DaysInPeriod,
	}
}

func (d *Dispatcher) deleteExpense(ctx context.Context, userID string, args map[string]any) map[string]any {
	id, ok := numberArg(args, "expenseId")
	if !ok || id <= 0 {
		return failure("A positive expense id is required")
	}

	exp, err := d.Expenses.Delete(ctx, userID, int64(id))
	if err != nil {
		return serviceFailure(err)
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Deleted %q ($%.2f)", exp.Title, services.Dollars(exp.Amount)),
		"expense": map[string]any{
			"id":     exp.ID,
			"title":  exp.Title,
			"amount": services.Dollars(exp.Amount),
		},
	}
}

// --- Result helpers ---

func expenseResult(e *services.ExpenseWithTags) map[string]any {
	tags := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = t.TagName
	}
	return map[string]any{
		"id":        e.ID,
		"title":     e.Title,
		"amount":    services.Dollars(e.Amount),
		"tags":      tags,
		"createdAt": e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "message": msg}
}

// serviceFailure maps service errors to readable tool results. Unknown errors
// are reported generically so internals never leak into the conversation.
func serviceFailure(err error) map[string]any {
	switch {
	case errors.Is(err, services.ErrTitleRequired),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidTagName),
		errors.Is(err, services.ErrInvalidPeriod),
		errors.Is(err, services.ErrExpenseNotFound),
		errors.Is(err, services.ErrTagNotFound):
		return failure(err.Error())
	default:
		log.Error().Err(err).Msg("assistant tool failed")
		return failure("Something went wrong, please try again")
	}
}

// --- Argument coercion ---
//
// Function-call arguments arrive as generic JSON values: numbers are float64,
// arrays are []any. Missing optional keys coerce to ok=false, which callers
// treat as "not provided".

func stringArg(args map[string]any, key string) (string, bool) {
	v, present := args[key]
	if !present || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func numberArg(args map[string]any, key string) (float64, bool) {
	v, present := args[key]
	if !present || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringSliceArg(args map[string]any, key string) ([]string, bool) {
	v, present := args[key]
	if !present || v == nil {
		return nil, true
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
