package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestThreadService_CreateDefaultsTitle(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if th.Title != "New chat" {
		t.Fatalf("empty title must fall back to placeholder: %q", th.Title)
	}
	if th.ID == "" {
		t.Fatal("thread must get an id")
	}

	named, err := svc.Create(ctx, "u1", "Budget review")
	if err != nil {
		t.Fatalf("Create named: %v", err)
	}
	if named.Title != "Budget review" {
		t.Fatalf("explicit title must be kept: %q", named.Title)
	}
}

func TestThreadService_GetScopedToOwner(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "Mine")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Get(ctx, "u2", th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("cross-user get: got %v", err)
	}
	if _, err := svc.Messages(ctx, "u2", th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("cross-user messages: got %v", err)
	}
	if err := svc.Delete(ctx, "u2", th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("cross-user delete: got %v", err)
	}
}

func TestThreadService_Rename(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Rename(ctx, "u1", th.ID, "  Grocery runs  ")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got.Title != "Grocery runs" {
		t.Fatalf("rename must trim and persist: %q", got.Title)
	}

	// Explicit renames keep long titles up to the column limit.
	long := strings.Repeat("x", 255)
	if got, err = svc.Rename(ctx, "u1", th.ID, long); err != nil {
		t.Fatalf("Rename long: %v", err)
	}
	if got.Title != long {
		t.Fatalf("255-char title must be kept whole, got %d chars", len(got.Title))
	}

	if _, err := svc.Rename(ctx, "u1", th.ID, ""); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("empty title: got %v", err)
	}
	if _, err := svc.Rename(ctx, "u1", th.ID, strings.Repeat("x", 256)); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("overlong title: got %v", err)
	}
	if _, err := svc.Rename(ctx, "u2", th.ID, "Theirs"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("cross-user rename: got %v", err)
	}
}

func TestThreadService_AppendValidation(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db, MaxMessageRunes: 10}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Append(ctx, "u1", th.ID, RoleUser, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank message: got %v", err)
	}
	if _, err := svc.Append(ctx, "u1", th.ID, RoleUser, strings.Repeat("x", 11)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("overlong message: got %v", err)
	}
	if _, err := svc.Append(ctx, "u1", "no-such-thread", RoleUser, "hi"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("missing thread: got %v", err)
	}
}

func TestThreadService_AppendAutoTitlesFromFirstUserMessage(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Append(ctx, "u1", th.ID, RoleUser, "please add an expense for my morning coffee"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := svc.Get(ctx, "u1", th.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Add Expense Morning Coffee" {
		t.Fatalf("auto title wrong: %q", got.Title)
	}

	// A later user message must not retitle.
	if _, err := svc.Append(ctx, "u1", th.ID, RoleUser, "now show my summary"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ = svc.Get(ctx, "u1", th.ID)
	if got.Title != "Add Expense Morning Coffee" {
		t.Fatalf("title must stick after first generation: %q", got.Title)
	}
}

func TestThreadService_AppendKeepsExplicitTitle(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "Budget review")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Append(ctx, "u1", th.ID, RoleUser, "hello there"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ := svc.Get(ctx, "u1", th.ID)
	if got.Title != "Budget review" {
		t.Fatalf("explicit title must not be replaced: %q", got.Title)
	}

	// Assistant messages never trigger titling.
	fresh, _ := svc.Create(ctx, "u1", "")
	if _, err := svc.Append(ctx, "u1", fresh.ID, RoleAssistant, "welcome aboard"); err != nil {
		t.Fatalf("Append assistant: %v", err)
	}
	got, _ = svc.Get(ctx, "u1", fresh.ID)
	if got.Title != "New chat" {
		t.Fatalf("assistant message retitled the thread: %q", got.Title)
	}
}

func TestThreadService_MessagesChronological(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "Log")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, m := range []struct{ role, text string }{
		{RoleUser, "first"},
		{RoleAssistant, "second"},
		{RoleUser, "third"},
	} {
		if _, err := svc.Append(ctx, "u1", th.ID, m.role, m.text); err != nil {
			t.Fatalf("Append %s: %v", m.text, err)
		}
	}

	msgs, err := svc.Messages(ctx, "u1", th.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" || msgs[2].Content != "third" {
		t.Fatalf("messages out of order: %+v", msgs)
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("roles not persisted: %+v", msgs)
	}
}

func TestThreadService_DeleteRemovesMessages(t *testing.T) {
	db := newServiceDB(t)
	svc := &ThreadService{DB: db}
	ctx := context.Background()

	th, err := svc.Create(ctx, "u1", "Temp")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Append(ctx, "u1", th.ID, RoleUser, "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := svc.Delete(ctx, "u1", th.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "u1", th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("thread still readable: %v", err)
	}
	if err := svc.Delete(ctx, "u1", th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}
