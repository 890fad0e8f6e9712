// Assistant chat HTTP handler.
//
//   - POST /chat  (one assistant turn; starts a thread when threadId is empty)
//
// The assistant consumes one message credit per turn plus one function_call
// credit per tool the model invokes. An exhausted message quota answers 429
// with the remaining counts; function credits running out mid-turn degrade
// gracefully inside the reply instead.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-expense-backend/internal/assistant"
	"github.com/tbourn/go-expense-backend/internal/repo"
	"github.com/tbourn/go-expense-backend/internal/services"
)

// ChatRequest is the JSON payload for one assistant turn.
type ChatRequest struct {
	// ThreadID continues an existing conversation; empty starts a new one.
	ThreadID string `json:"threadId" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Message  string `json:"message" binding:"required" example:"I spent $4.50 on drinks"`
}

// Chat godoc
// @ID          chat
// @Summary     Send a message to the expense assistant
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  false "User ID (demo header)"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.ChatRequest  true  "Chat payload"
// @Success     200  {object} assistant.ChatResult
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Failure     429  {object} handlers.InsufficientCreditsResponse
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	if h.chatSvc == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeChatFailed, "assistant is not configured")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.ThreadID != "" {
		if _, err := uuid.Parse(req.ThreadID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "threadId must be a UUID")
			return
		}
	}

	ctx := c.Request.Context()
	uid := userID(c)

	// Idempotency (replay path): a stored record points at the persisted
	// assistant reply, so a retried turn does not hit the model or spend
	// credits again.
	idemKey := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.threadSvc.(*services.ThreadService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, uid, idemScope(c), idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, merr := repo.GetChatMessage(ctx, svc.DB, rec.RefID); merr == nil {
					var snap *services.CreditSnapshot
					if h.creditSvc != nil {
						snap, _ = h.creditSvc.Snapshot(ctx, uid)
					}
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, assistant.ChatResult{
						ThreadID: prev.ThreadID,
						Reply:    prev.Content,
						ReplyID:  prev.ID,
						Credits:  snap,
					})
					return
				}
			}
		}
	}

	res, err := h.chatSvc.Chat(ctx, uid, req.ThreadID, req.Message)
	switch {
	case errors.Is(err, services.ErrInsufficientCredits):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, InsufficientCreditsResponse{
			RequestID:              c.Writer.Header().Get("X-Request-ID"),
			Code:                   ErrCodeInsufficientCredits,
			Message:                "daily message limit reached",
			FunctionCallsRemaining: res.Credits.FunctionCallsRemaining,
			MessagesRemaining:      res.Credits.MessagesRemaining,
		})
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrThreadNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeChatFailed, err.Error())
	default:
		// Idempotency (store path): best effort.
		if idemKey != "" && res.ReplyID != "" {
			if svc, okSvc := h.threadSvc.(*services.ThreadService); okSvc && svc.DB != nil {
				_, _ = repo.CreateIdempotency(ctx, svc.DB, uid, idemScope(c), idemKey,
					res.ReplyID, http.StatusOK, h.idemTTL())
			}
		}
		ok(c, http.StatusOK, res)
	}
}
