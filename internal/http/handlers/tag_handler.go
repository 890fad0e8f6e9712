// Tag HTTP handlers.
//
//   - POST   /tags        (create)
//   - GET    /tags        (list, name order)
//   - PUT    /tags/{id}   (rename)
//   - DELETE /tags/{id}   (delete, unlinks expenses)
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/services"
)

// TagRequest is the JSON payload for creating or renaming a tag.
type TagRequest struct {
	TagName string `json:"tagName" binding:"required,min=1,max=30" example:"Food"`
}

// ListTagsResponse wraps the user's tags with a count.
type ListTagsResponse struct {
	Tags  []domain.Tag `json:"tags"`
	Count int          `json:"count"`
}

// CreateTag godoc
// @ID          createTag
// @Summary     Create a tag
// @Description Tag names are unique per user; creating an existing name returns 409 with the existing tag's name.
// @Tags        Tags
// @Accept      json
// @Produce     json
// @Success     201  {object} domain.Tag
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     409  {object} handlers.ErrorResponse
// @Router      /tags [post]
func (h *Handlers) CreateTag(c *gin.Context) {
	var req TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tagName required (1-30 chars)")
		return
	}

	tag, err := h.tagSvc.Create(c.Request.Context(), userID(c), req.TagName)
	if err != nil {
		failTag(c, err)
		return
	}
	ok(c, http.StatusCreated, tag)
}

// ListTags godoc
// @ID          listTags
// @Summary     List tags (name order)
// @Tags        Tags
// @Produce     json
// @Success     200  {object} handlers.ListTagsResponse
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /tags [get]
func (h *Handlers) ListTags(c *gin.Context) {
	tags, err := h.tagSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListTagsResponse{Tags: tags, Count: len(tags)})
}

// RenameTag godoc
// @ID          renameTag
// @Summary     Rename a tag
// @Tags        Tags
// @Accept      json
// @Produce     json
// @Success     200  {object} domain.Tag
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Failure     409  {object} handlers.ErrorResponse
// @Router      /tags/{id} [put]
func (h *Handlers) RenameTag(c *gin.Context) {
	id, okc := tagID(c)
	if !okc {
		return
	}
	var req TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tagName required (1-30 chars)")
		return
	}

	tag, err := h.tagSvc.Rename(c.Request.Context(), userID(c), id, req.TagName)
	if err != nil {
		failTag(c, err)
		return
	}
	ok(c, http.StatusOK, tag)
}

// DeleteTag godoc
// @ID          deleteTag
// @Summary     Delete a tag
// @Description Removes the tag and unlinks it from every expense; the expenses themselves are untouched.
// @Tags        Tags
// @Produce     json
// @Success     200  {object} domain.Tag
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /tags/{id} [delete]
func (h *Handlers) DeleteTag(c *gin.Context) {
	id, okc := tagID(c)
	if !okc {
		return
	}
	tag, err := h.tagSvc.Delete(c.Request.Context(), userID(c), id)
	if err != nil {
		failTag(c, err)
		return
	}
	ok(c, http.StatusOK, tag)
}

func tagID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tag id must be a positive integer")
		return 0, false
	}
	return id, true
}

func failTag(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrDuplicateTag):
		fail(c, http.StatusConflict, ErrCodeConflict, "tag already exists")
	case errors.Is(err, services.ErrTagNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "tag not found")
	case errors.Is(err, services.ErrInvalidTagName):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
