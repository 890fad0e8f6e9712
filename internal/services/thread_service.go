// Package services – ThreadService
//
// ThreadService owns assistant conversation threads and their messages. It
// verifies thread ownership before every read or write, persists messages,
// and auto-generates a compact thread title from the first user message when
// the thread still carries a placeholder title.

package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/repo"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// RoleUser and friends are the message roles persisted per thread.
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	// placeholder titles eligible for auto-generation
	defaultTitleNew      = "New chat"
	defaultTitleUntitled = "Untitled"
)

// ThreadService coordinates conversation threads and message persistence.
type ThreadService struct {
	DB *gorm.DB

	// Optional guards
	MaxMessageRunes int

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int
}

// Create starts a new thread for the user. An empty title falls back to the
// default placeholder.
func (s *ThreadService) Create(ctx context.Context, userID, title string) (*domain.ChatThread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitleNew
	}
	title = s.clipTitle(title)
	return repo.CreateThread(ctx, s.DB, userID, title)
}

// List returns the user's threads ordered by most recent activity.
func (s *ThreadService) List(ctx context.Context, userID string) ([]domain.ChatThread, error) {
	return repo.ListThreads(ctx, s.DB, userID)
}

// Get returns one thread, or ErrThreadNotFound when it does not exist or
// belongs to another user.
func (s *ThreadService) Get(ctx context.Context, userID, id string) (*domain.ChatThread, error) {
	th, err := repo.GetThread(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrThreadNotFound
	}
	return th, err
}

// Rename gives a thread an explicit user-chosen title. Unlike auto-generated
// titles it is not clipped to TitleMaxLen; the column holds up to 255 chars.
func (s *ThreadService) Rename(ctx context.Context, userID, id, title string) (*domain.ChatThread, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > 255 {
		return nil, ErrInvalidTitle
	}
	err := repo.UpdateThreadTitle(s.DB.WithContext(ctx), id, userID, title)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes a thread and its messages.
func (s *ThreadService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.DeleteThread(tx, id, userID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrThreadNotFound
	}
	return err
}

// Messages returns the thread's messages in chronological order after
// verifying ownership.
func (s *ThreadService) Messages(ctx context.Context, userID, threadID string) ([]domain.ChatMessage, error) {
	if _, err := s.Get(ctx, userID, threadID); err != nil {
		return nil, err
	}
	return repo.ListThreadMessages(ctx, s.DB, threadID)
}

// Append validates and persists one message on the thread, bumps the thread's
// activity timestamp, and auto-titles the thread from the first user message
// when the title is still a placeholder.
func (s *ThreadService) Append(ctx context.Context, userID, threadID, role, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}

	th, err := s.Get(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	var msg *domain.ChatMessage
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateChatMessage(tx, threadID, role, content)
		if err != nil {
			return err
		}
		msg = m

		if err := repo.TouchThread(tx, threadID); err != nil {
			return err
		}

		if role == RoleUser && s.shouldAutoTitle(th.Title) {
			if gen := s.generateTitle(content); gen != "" {
				return repo.UpdateThreadTitle(tx, threadID, userID, s.clipTitle(gen))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// shouldAutoTitle reports whether the current title is a placeholder.
func (s *ThreadService) shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitle derives a concise title from the first user message.
func (s *ThreadService) generateTitle(content string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(content), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.titleLocale())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a title to the configured maximum rune length.
func (s *ThreadService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func (s *ThreadService) titleLocale() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// Extract Unicode letters with optional trailing numbers (e.g., "q3" or "2026").
var titleWordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"i": {}, "my": {}, "me": {}, "please": {}, "can": {}, "you": {},
}
