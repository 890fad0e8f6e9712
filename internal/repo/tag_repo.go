// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Tag model.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
)

// ErrDuplicate indicates that a row already exists for a unique key, e.g. a
// tag with the same name for the same user.
var ErrDuplicate = errors.New("duplicate")

// CreateTag inserts a tag for userID. Returns ErrDuplicate when a tag with
// the exact same name already exists for that user (unique index violation).
func CreateTag(db *gorm.DB, userID, name string) (*domain.Tag, error) {
	t := &domain.Tag{
		TagName:   name,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// GetTag fetches a tag by ID scoped to its owner.
func GetTag(ctx context.Context, db *gorm.DB, id int64, userID string) (*domain.Tag, error) {
	var t domain.Tag
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTagByName fetches a tag by its exact name for userID, or ErrNotFound.
// Matching is case-sensitive: "Food" and "food" are distinct tags.
func GetTagByName(ctx context.Context, db *gorm.DB, userID, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := db.WithContext(ctx).
		Where("user_id = ? AND tag_name = ?", userID, name).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindOrCreateTag returns the user's tag with the given name, creating it
// when absent. A concurrent insert losing the race falls back to re-reading
// the winner's row, so callers always get exactly one tag per (user, name).
// Intended for use inside the create-expense transaction.
func FindOrCreateTag(db *gorm.DB, userID, name string) (*domain.Tag, error) {
	var t domain.Tag
	err := db.Where("user_id = ? AND tag_name = ?", userID, name).First(&t).Error
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created, err := CreateTag(db, userID, name)
	if errors.Is(err, ErrDuplicate) {
		err = db.Where("user_id = ? AND tag_name = ?", userID, name).First(&t).Error
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	return created, err
}

// ListTags returns all tags for userID, sorted by name ascending.
func ListTags(ctx context.Context, db *gorm.DB, userID string) ([]domain.Tag, error) {
	var out []domain.Tag
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("tag_name asc").
		Find(&out).Error
	return out, err
}

// UpdateTagName renames a tag scoped to its owner. Returns ErrNotFound when
// no row matched and ErrDuplicate when the new name is already taken.
func UpdateTagName(db *gorm.DB, id int64, userID, name string) error {
	res := db.Model(&domain.Tag{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("tag_name", name)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteTag removes a tag row scoped to its owner. Join rows are the
// caller's responsibility (see DeleteTagLinks).
func DeleteTag(db *gorm.DB, id int64, userID string) error {
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Tag{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteTagLinks removes every join row referencing the given tag.
func DeleteTagLinks(db *gorm.DB, tagID int64) error {
	return db.Where("tag_id = ?", tagID).Delete(&domain.ExpenseTag{}).Error
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey. glebarez/sqlite often returns
// plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
