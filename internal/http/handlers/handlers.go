// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Business rules live in the
// services package; persistence in repo.
//
// Monetary amounts are accepted in dollars in request bodies (matching what
// users type) and returned in cents in response bodies (matching storage).
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-expense-backend/internal/assistant"
	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/http/middleware"
	"github.com/tbourn/go-expense-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ExpenseService defines expense lifecycle operations consumed by HTTP
// handlers. Implementations should be safe for concurrent use and must honor
// the provided context for cancellation and timeouts.
type ExpenseService interface {
	Create(ctx context.Context, userID, title string, amount int64, tagNames []string, createdAt time.Time) (*services.ExpenseWithTags, error)
	Get(ctx context.Context, userID string, id int64) (*services.ExpenseWithTags, error)
	List(ctx context.Context, userID string) ([]services.ExpenseWithTags, error)
	Update(ctx context.Context, userID string, id int64, title string, amount int64, tagIDs []int64, createdAt time.Time) (*services.ExpenseWithTags, error)
	Delete(ctx context.Context, userID string, id int64) (*domain.Expense, error)
	Search(ctx context.Context, userID string, p services.SearchParams) ([]services.ExpenseWithTags, error)
	Summary(ctx context.Context, userID string) (*services.ExpenseSummary, error)
	Insights(ctx context.Context, userID, period string) (*services.ExpenseInsights, error)
}

// TagService defines tag vocabulary operations.
type TagService interface {
	Create(ctx context.Context, userID, name string) (*domain.Tag, error)
	List(ctx context.Context, userID string) ([]domain.Tag, error)
	Rename(ctx context.Context, userID string, id int64, name string) (*domain.Tag, error)
	Delete(ctx context.Context, userID string, id int64) (*domain.Tag, error)
}

// CreditService defines quota reads and consumption.
type CreditService interface {
	Snapshot(ctx context.Context, userID string) (*services.CreditSnapshot, error)
	Consume(ctx context.Context, userID, kind, description string) (*services.CreditSnapshot, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}

// ThreadService defines conversation thread operations.
type ThreadService interface {
	Create(ctx context.Context, userID, title string) (*domain.ChatThread, error)
	List(ctx context.Context, userID string) ([]domain.ChatThread, error)
	Get(ctx context.Context, userID, id string) (*domain.ChatThread, error)
	Rename(ctx context.Context, userID, id, title string) (*domain.ChatThread, error)
	Delete(ctx context.Context, userID, id string) error
	Messages(ctx context.Context, userID, threadID string) ([]domain.ChatMessage, error)
}

// ChatService runs one assistant turn.
type ChatService interface {
	Chat(ctx context.Context, userID, threadID, message string) (*assistant.ChatResult, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for expenses, tags, credits, threads, and
// the assistant. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	expenseSvc ExpenseService
	tagSvc     TagService
	creditSvc  CreditService
	threadSvc  ThreadService
	chatSvc    ChatService

	// IdempotencyTTL bounds how long a stored Idempotency-Key record can
	// serve replays. Zero falls back to 24h.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(expenseSvc ExpenseService, tagSvc TagService, creditSvc CreditService, threadSvc ThreadService, chatSvc ChatService) *Handlers {
	return &Handlers{
		expenseSvc: expenseSvc,
		tagSvc:     tagSvc,
		creditSvc:  creditSvc,
		threadSvc:  threadSvc,
		chatSvc:    chatSvc,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// idemTTL returns the configured idempotency record lifetime.
func (h *Handlers) idemTTL() time.Duration {
	if h.IdempotencyTTL > 0 {
		return h.IdempotencyTTL
	}
	return 24 * time.Hour
}

// idempotencyKey reads the validated Idempotency-Key stashed by the upstream
// middleware. Empty when the client sent none or no validator is installed.
func idempotencyKey(c *gin.Context) string {
	key, _ := middleware.GetIdempotencyKey(c)
	return key
}

// idemScope is the (method, matched route) pair idempotency records are
// keyed under, so one key can be reused safely across different operations.
func idemScope(c *gin.Context) string {
	return c.Request.Method + " " + c.FullPath()
}
