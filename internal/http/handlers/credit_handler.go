// Credit HTTP handlers.
//
//   - GET  /credits               (current quota snapshot)
//   - POST /credits/consume       (spend one credit)
//   - GET  /credits/transactions  (recent audit entries)
//
// A consume that finds the quota exhausted answers 429 with the remaining
// counts so clients can render the "out of credits" state directly.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/services"
	"github.com/tbourn/go-expense-backend/internal/utils"
)

// ConsumeCreditRequest is the JSON payload for spending one credit. Type
// matches the ledger's transaction type column; kind is accepted as a legacy
// alias.
type ConsumeCreditRequest struct {
	Type        string `json:"type" example:"function_call"`
	Kind        string `json:"kind,omitempty"`
	Description string `json:"description" example:"Manual adjustment"`
}

// InsufficientCreditsResponse is the 429 body when the quota is exhausted.
type InsufficientCreditsResponse struct {
	RequestID              string `json:"request_id,omitempty"`
	Code                   string `json:"code" example:"insufficient_credits"`
	Message                string `json:"message"`
	FunctionCallsRemaining int    `json:"functionCallsRemaining"`
	MessagesRemaining      int    `json:"messagesRemaining"`
}

// ListCreditTransactionsResponse wraps recent ledger audit entries.
type ListCreditTransactionsResponse struct {
	Transactions []domain.CreditTransaction `json:"transactions"`
	Count        int                        `json:"count"`
}

// GetCredits godoc
// @ID          getCredits
// @Summary     Current credit snapshot
// @Description Returns the user's daily quota state; the first call of a new day applies the rollover.
// @Tags        Credits
// @Produce     json
// @Success     200  {object} services.CreditSnapshot
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /credits [get]
func (h *Handlers) GetCredits(c *gin.Context) {
	snap, err := h.creditSvc.Snapshot(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, snap)
}

// ConsumeCredit godoc
// @ID          consumeCredit
// @Summary     Spend one credit
// @Description type is "function_call" or "message". Returns the updated snapshot, or 429 with remaining counts when exhausted.
// @Tags        Credits
// @Accept      json
// @Produce     json
// @Success     200  {object} services.CreditSnapshot
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     429  {object} handlers.InsufficientCreditsResponse
// @Router      /credits/consume [post]
func (h *Handlers) ConsumeCredit(c *gin.Context) {
	var req ConsumeCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	kind := strings.TrimSpace(req.Type)
	if kind == "" {
		kind = strings.TrimSpace(req.Kind)
	}
	if kind == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type is required")
		return
	}

	snap, err := h.creditSvc.Consume(c.Request.Context(), userID(c), kind, req.Description)
	switch {
	case errors.Is(err, services.ErrInsufficientCredits):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, InsufficientCreditsResponse{
			RequestID:              c.Writer.Header().Get("X-Request-ID"),
			Code:                   ErrCodeInsufficientCredits,
			Message:                "daily credit limit reached",
			FunctionCallsRemaining: snap.FunctionCallsRemaining,
			MessagesRemaining:      snap.MessagesRemaining,
		})
	case errors.Is(err, services.ErrInvalidCreditKind):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	default:
		ok(c, http.StatusOK, snap)
	}
}

// ListCreditTransactions godoc
// @ID          listCreditTransactions
// @Summary     Recent credit audit entries (newest first)
// @Tags        Credits
// @Produce     json
// @Param       limit  query  int  false  "Max entries (default 50)"
// @Success     200  {object} handlers.ListCreditTransactionsResponse
// @Router      /credits/transactions [get]
func (h *Handlers) ListCreditTransactions(c *gin.Context) {
	const maxLimit = 200
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 0), 0, maxLimit)

	txs, err := h.creditSvc.Transactions(c.Request.Context(), userID(c), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCreditTransactionsResponse{Transactions: txs, Count: len(txs)})
}
