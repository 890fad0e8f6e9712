// Conversation thread HTTP handlers.
//
//   - POST   /threads                (create)
//   - GET    /threads                (list, most recent activity first, ETag support)
//   - PUT    /threads/{id}           (rename)
//   - GET    /threads/{id}/messages  (chronological messages, ETag support)
//   - DELETE /threads/{id}           (delete thread and messages)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/repo"
	"github.com/tbourn/go-expense-backend/internal/services"
)

// CreateThreadRequest is the JSON payload for starting a thread.
type CreateThreadRequest struct {
	// Title optionally names the thread; a default is used when empty.
	Title string `json:"title" example:"Groceries budget"`
}

// RenameThreadRequest is the JSON payload for renaming a thread.
type RenameThreadRequest struct {
	Title string `json:"title" binding:"required" example:"Groceries budget"`
}

// ListThreadsResponse wraps the user's threads.
type ListThreadsResponse struct {
	Threads []domain.ChatThread `json:"threads"`
	Count   int                 `json:"count"`
}

// ListThreadMessagesResponse wraps one thread's messages in order.
type ListThreadMessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	Count    int                  `json:"count"`
}

// CreateThread godoc
// @ID          createThread
// @Summary     Start a new conversation thread
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Success     201  {object} domain.ChatThread
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /threads [post]
func (h *Handlers) CreateThread(c *gin.Context) {
	var req CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	th, err := h.threadSvc.Create(c.Request.Context(), userID(c), strings.TrimSpace(req.Title))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, th)
}

// ListThreads godoc
// @ID          listThreads
// @Summary     List conversation threads
// @Description Most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Threads
// @Produce     json
// @Success     200  {object} handlers.ListThreadsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /threads [get]
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	var db *gorm.DB
	if svc, okc := h.threadSvc.(*services.ThreadService); okc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ThreadsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"threads:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.threadSvc.List(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListThreadsResponse{Threads: items, Count: len(items)})
}

// RenameThread godoc
// @ID          renameThread
// @Summary     Rename a thread
// @Tags        Threads
// @Accept      json
// @Produce     json
// @Success     200  {object} domain.ChatThread
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /threads/{id} [put]
func (h *Handlers) RenameThread(c *gin.Context) {
	id, okc := threadID(c)
	if !okc {
		return
	}
	var req RenameThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required")
		return
	}

	th, err := h.threadSvc.Rename(c.Request.Context(), userID(c), id, req.Title)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTitle) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		failThread(c, err)
		return
	}
	ok(c, http.StatusOK, th)
}

// ListThreadMessages godoc
// @ID          listThreadMessages
// @Summary     List a thread's messages (chronological)
// @Description Supports weak ETag via If-None-Match; messages are append-only so the count versions the collection.
// @Tags        Threads
// @Produce     json
// @Success     200  {object} handlers.ListThreadMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /threads/{id}/messages [get]
func (h *Handlers) ListThreadMessages(c *gin.Context) {
	id, okc := threadID(c)
	if !okc {
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check; ownership must be verified first so the count of a
	// foreign thread never leaks.
	if svc, okc := h.threadSvc.(*services.ThreadService); okc && svc.DB != nil {
		if _, err := h.threadSvc.Get(ctx, uid, id); err != nil {
			failThread(c, err)
			return
		}
		if n, err := repo.CountThreadMessages(svc.DB, id); err == nil {
			etag := fmt.Sprintf(`W/"thread-msgs:%s:%d"`, id, n)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	msgs, err := h.threadSvc.Messages(ctx, uid, id)
	if err != nil {
		failThread(c, err)
		return
	}
	ok(c, http.StatusOK, ListThreadMessagesResponse{Messages: msgs, Count: len(msgs)})
}

// DeleteThread godoc
// @ID          deleteThread
// @Summary     Delete a thread and its messages
// @Tags        Threads
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /threads/{id} [delete]
func (h *Handlers) DeleteThread(c *gin.Context) {
	id, okc := threadID(c)
	if !okc {
		return
	}
	if err := h.threadSvc.Delete(c.Request.Context(), userID(c), id); err != nil {
		failThread(c, err)
		return
	}
	noContent(c)
}

func threadID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return "", false
	}
	return id, true
}

func failThread(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrThreadNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
