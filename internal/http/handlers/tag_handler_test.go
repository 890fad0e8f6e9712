package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-expense-backend/internal/domain"
)

func TestCreateTag_Binding_Success_Conflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	h := newTestHandlers(db)
	r := gin.New()
	r.POST("/tags", h.CreateTag)

	// Missing tagName -> 400
	if w := doJSON(t, r, http.MethodPost, "/tags", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing name -> %d", w.Code)
	}
	// Over 30 chars rejected by binding -> 400
	if w := doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"0123456789012345678901234567890"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("overlong name -> %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Food"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.Tag
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.TagName != "Food" || out.UserID != "u1" {
		t.Fatalf("unexpected tag: %#v", out)
	}

	// Same name again -> 409
	if w := doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Food"}`); w.Code != http.StatusConflict {
		t.Fatalf("duplicate -> %d", w.Code)
	}
}

func TestListTags_NameOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	h := newTestHandlers(db)
	r := gin.New()
	r.POST("/tags", h.CreateTag)
	r.GET("/tags", h.ListTags)

	doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Travel"}`)
	doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Food"}`)

	w := doJSON(t, r, http.MethodGet, "/tags", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}
	var out ListTagsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Count != 2 || out.Tags[0].TagName != "Food" || out.Tags[1].TagName != "Travel" {
		t.Fatalf("order mismatch: %#v", out)
	}
}

func TestRenameTag_BadID_NotFound_Conflict_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	h := newTestHandlers(db)
	r := gin.New()
	r.POST("/tags", h.CreateTag)
	r.PUT("/tags/:id", h.RenameTag)

	if w := doJSON(t, r, http.MethodPut, "/tags/abc", `{"tagName":"X"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id -> %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPut, "/tags/999", `{"tagName":"X"}`); w.Code != http.StatusNotFound {
		t.Fatalf("missing -> %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Food"}`)
	var food domain.Tag
	if err := json.Unmarshal(w.Body.Bytes(), &food); err != nil {
		t.Fatalf("json: %v", err)
	}
	doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Travel"}`)

	// Rename onto a taken name -> 409
	path := fmt.Sprintf("/tags/%d", food.ID)
	if w := doJSON(t, r, http.MethodPut, path, `{"tagName":"Travel"}`); w.Code != http.StatusConflict {
		t.Fatalf("conflict -> %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, path, `{"tagName":"Dining"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("rename -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.Tag
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.TagName != "Dining" {
		t.Fatalf("rename not applied: %#v", out)
	}
}

func TestDeleteTag_Success_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	h := newTestHandlers(db)
	r := gin.New()
	r.POST("/tags", h.CreateTag)
	r.DELETE("/tags/:id", h.DeleteTag)

	w := doJSON(t, r, http.MethodPost, "/tags", `{"tagName":"Temp"}`)
	var tag domain.Tag
	if err := json.Unmarshal(w.Body.Bytes(), &tag); err != nil {
		t.Fatalf("json: %v", err)
	}

	path := fmt.Sprintf("/tags/%d", tag.ID)
	w = doJSON(t, r, http.MethodDelete, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.Tag
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.ID != tag.ID {
		t.Fatalf("delete must echo the removed tag: %#v", out)
	}

	if w := doJSON(t, r, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Fatalf("double delete -> %d", w.Code)
	}
}
