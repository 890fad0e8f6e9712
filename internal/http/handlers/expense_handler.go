// Expense HTTP handlers.
//
// This file exposes REST endpoints for expense resources:
//   - POST   /expenses            (create, with tag names)
//   - GET    /expenses            (list, ETag support)
//   - GET    /expenses/search     (filtered search)
//   - GET    /expenses/summary    (lifetime totals)
//   - GET    /expenses/insights   (period aggregates)
//   - GET    /expenses/{id}       (fetch one)
//   - PUT    /expenses/{id}       (update, replaces tag links)
//   - DELETE /expenses/{id}       (delete)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/repo"
	"github.com/tbourn/go-expense-backend/internal/services"
)

//
// DTOs
//

// CreateExpenseRequest is the JSON payload for recording an expense.
// Amount is in dollars.
type CreateExpenseRequest struct {
	Title     string     `json:"title" binding:"required" example:"Drinks"`
	Amount    float64    `json:"amount" binding:"required,gt=0" example:"4.5"`
	Tags      []string   `json:"tags" example:"Food,Going Out"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// UpdateExpenseRequest is the JSON payload for replacing an expense. When
// TagIDs is present the expense's tag links are replaced wholesale.
type UpdateExpenseRequest struct {
	Title     string     `json:"title" binding:"required"`
	Amount    float64    `json:"amount" binding:"required,gt=0"`
	TagIDs    []int64    `json:"tagIds"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ListExpensesResponse wraps the user's expenses with a count.
type ListExpensesResponse struct {
	Expenses []services.ExpenseWithTags `json:"expenses"`
	Count    int                        `json:"count"`
}

//
// Handlers
//

// CreateExpense godoc
// @ID          createExpense
// @Summary     Record a new expense
// @Tags        Expenses
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       body       body    handlers.CreateExpenseRequest  true  "Expense payload"
// @Success     201  {object}  services.ExpenseWithTags
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Router      /expenses [post]
func (h *Handlers) CreateExpense(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Idempotency (replay path): a stored record for this key means the
	// expense was already created; serve it again instead of duplicating.
	idemKey := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.expenseSvc.(*services.ExpenseService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, uid, idemScope(c), idemKey, time.Now().UTC()); err == nil && rec != nil {
				if id, perr := strconv.ParseInt(rec.RefID, 10, 64); perr == nil {
					if prev, gerr := h.expenseSvc.Get(ctx, uid, id); gerr == nil {
						c.Header("Idempotency-Replayed", "true")
						ok(c, rec.Status, prev)
						return
					}
				}
			}
		}
	}

	var createdAt time.Time
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	exp, err := h.expenseSvc.Create(ctx, uid, req.Title, services.Cents(req.Amount), req.Tags, createdAt)
	if err != nil {
		failExpense(c, err, ErrCodeCreateFailed)
		return
	}

	// Idempotency (store path): best effort, a lost record only costs a
	// future dedup opportunity.
	if idemKey != "" {
		if svc, okSvc := h.expenseSvc.(*services.ExpenseService); okSvc && svc.DB != nil {
			_, _ = repo.CreateIdempotency(ctx, svc.DB, uid, idemScope(c), idemKey,
				strconv.FormatInt(exp.Expense.ID, 10), http.StatusCreated, h.idemTTL())
		}
	}

	ok(c, http.StatusCreated, exp)
}

// ListExpenses godoc
// @ID          listExpenses
// @Summary     List expenses (newest first)
// @Description Returns all of the user's expenses with tags. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Expenses
// @Produce     json
// @Success     200  {object} handlers.ListExpensesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /expenses [get]
func (h *Handlers) ListExpenses(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okc := h.expenseSvc.(*services.ExpenseService); okc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ExpensesStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"expenses:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.expenseSvc.List(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListExpensesResponse{Expenses: items, Count: len(items)})
}

// SearchExpenses godoc
// @ID          searchExpenses
// @Summary     Search expenses
// @Description Filters by title keyword (q), dollar amount range (min, max), tag name (tag), and limit.
// @Tags        Expenses
// @Produce     json
// @Success     200  {object} handlers.ListExpensesResponse
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /expenses/search [get]
func (h *Handlers) SearchExpenses(c *gin.Context) {
	p := services.SearchParams{
		Query:   c.Query("q"),
		TagName: c.Query("tag"),
	}
	if v := strings.TrimSpace(c.Query("min")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "min must be a dollar amount")
			return
		}
		cents := services.Cents(f)
		p.MinAmount = &cents
	}
	if v := strings.TrimSpace(c.Query("max")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "max must be a dollar amount")
			return
		}
		cents := services.Cents(f)
		p.MaxAmount = &cents
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		p.Limit = n
	}

	items, err := h.expenseSvc.Search(c.Request.Context(), userID(c), p)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListExpensesResponse{Expenses: items, Count: len(items)})
}

// ExpenseSummary godoc
// @ID          expenseSummary
// @Summary     Lifetime spending summary
// @Tags        Expenses
// @Produce     json
// @Success     200  {object} services.ExpenseSummary
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /expenses/summary [get]
func (h *Handlers) ExpenseSummary(c *gin.Context) {
	sum, err := h.expenseSvc.Summary(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}

// ExpenseInsights godoc
// @ID          expenseInsights
// @Summary     Spending aggregates for a period
// @Description period is one of week, month, year.
// @Tags        Expenses
// @Produce     json
// @Success     200  {object} services.ExpenseInsights
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /expenses/insights [get]
func (h *Handlers) ExpenseInsights(c *gin.Context) {
	period := c.DefaultQuery("period", "month")
	ins, err := h.expenseSvc.Insights(c.Request.Context(), userID(c), period)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPeriod) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ins)
}

// GetExpense godoc
// @ID          getExpense
// @Summary     Fetch one expense
// @Tags        Expenses
// @Produce     json
// @Success     200  {object} services.ExpenseWithTags
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /expenses/{id} [get]
func (h *Handlers) GetExpense(c *gin.Context) {
	id, okc := expenseID(c)
	if !okc {
		return
	}
	exp, err := h.expenseSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failExpense(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, exp)
}

// UpdateExpense godoc
// @ID          updateExpense
// @Summary     Update an expense
// @Description Replaces title and amount; when tagIds is present the tag links are replaced.
// @Tags        Expenses
// @Accept      json
// @Produce     json
// @Success     200  {object} services.ExpenseWithTags
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /expenses/{id} [put]
func (h *Handlers) UpdateExpense(c *gin.Context) {
	id, okc := expenseID(c)
	if !okc {
		return
	}
	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	var createdAt time.Time
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	exp, err := h.expenseSvc.Update(c.Request.Context(), userID(c), id, req.Title, services.Cents(req.Amount), req.TagIDs, createdAt)
	if err != nil {
		failExpense(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, exp)
}

// DeleteExpense godoc
// @ID          deleteExpense
// @Summary     Delete an expense
// @Tags        Expenses
// @Produce     json
// @Success     200  {object} domain.Expense
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /expenses/{id} [delete]
func (h *Handlers) DeleteExpense(c *gin.Context) {
	id, okc := expenseID(c)
	if !okc {
		return
	}
	exp, err := h.expenseSvc.Delete(c.Request.Context(), userID(c), id)
	if err != nil {
		failExpense(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, exp)
}

//
// Helpers
//

// expenseID parses the {id} path segment; on failure it writes a 400 and
// reports false.
func expenseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "expense id must be a positive integer")
		return 0, false
	}
	return id, true
}

// failExpense maps expense service errors onto the error envelope.
func failExpense(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrExpenseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "expense not found")
	case errors.Is(err, services.ErrTagNotFound):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tag not found")
	case errors.Is(err, services.ErrTitleRequired),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidTagName):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallback, err.Error())
	}
}
