// Package services – TagService
//
// TagService owns the per-user tag vocabulary. Tag names are unique per user
// (case-sensitive, exact match); deleting a tag also removes its expense
// links in the same transaction.

package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/repo"
)

// TagService coordinates tag CRUD for a single user's vocabulary.
type TagService struct {
	DB *gorm.DB
}

// Create adds a tag for the user. When the name already exists it returns the
// existing tag together with ErrDuplicateTag.
func (s *TagService) Create(ctx context.Context, userID, name string) (*domain.Tag, error) {
	name, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}
	tag, err := repo.CreateTag(s.DB.WithContext(ctx), userID, name)
	if errors.Is(err, repo.ErrDuplicate) {
		existing, gerr := repo.GetTagByName(ctx, s.DB, userID, name)
		if gerr != nil {
			return nil, gerr
		}
		return existing, ErrDuplicateTag
	}
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// List returns the user's tags in name order.
func (s *TagService) List(ctx context.Context, userID string) ([]domain.Tag, error) {
	return repo.ListTags(ctx, s.DB, userID)
}

// Rename changes a tag's name, preserving per-user uniqueness.
func (s *TagService) Rename(ctx context.Context, userID string, id int64, name string) (*domain.Tag, error) {
	name, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}
	err = repo.UpdateTagName(s.DB.WithContext(ctx), id, userID, name)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrTagNotFound
	case errors.Is(err, repo.ErrDuplicate):
		return nil, ErrDuplicateTag
	case err != nil:
		return nil, err
	}
	return repo.GetTag(ctx, s.DB, id, userID)
}

// Delete removes a tag and all of its expense links, returning the deleted
// row.
func (s *TagService) Delete(ctx context.Context, userID string, id int64) (*domain.Tag, error) {
	tag, err := repo.GetTag(ctx, s.DB, id, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteTagLinks(tx, id); err != nil {
			return err
		}
		if err := repo.DeleteTag(tx, id, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrTagNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func normalizeTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxTagNameRunes {
		return "", ErrInvalidTagName
	}
	return name, nil
}
