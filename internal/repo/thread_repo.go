// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chat threads
// and their messages.
//
// Error semantics mirror the rest of the package: missing rows surface as
// gorm.ErrRecordNotFound (ErrNotFound), everything else propagates raw.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-expense-backend/internal/domain"
)

// CreateThread inserts a new ChatThread row owned by userID with the given
// title. The thread ID is a randomly generated UUID string.
func CreateThread(ctx context.Context, db *gorm.DB, userID, title string) (*domain.ChatThread, error) {
	now := time.Now().UTC()
	t := &domain.ChatThread{
		ID:        uuid.NewString(),
		Title:     title,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListThreads returns all threads belonging to userID, most recently
// updated first.
func ListThreads(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatThread, error) {
	var out []domain.ChatThread
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// GetThread fetches a single thread by its ID and owner, or ErrNotFound.
func GetThread(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatThread, error) {
	var t domain.ChatThread
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateThreadTitle renames a thread, enforcing user ownership. Returns
// ErrNotFound when no row matched.
func UpdateThreadTitle(db *gorm.DB, id, userID, title string) error {
	res := db.Model(&domain.ChatThread{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"title": title, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchThread bumps a thread's updated_at so thread listings sort freshly
// active conversations first.
func TouchThread(db *gorm.DB, id string) error {
	return db.Model(&domain.ChatThread{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// DeleteThread removes a thread and its messages, scoped to the owner.
// Returns ErrNotFound when the thread is missing or owned by someone else.
func DeleteThread(db *gorm.DB, id, userID string) error {
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.ChatThread{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	// Explicit cleanup in case the driver has foreign keys off.
	return db.Where("thread_id = ?", id).Delete(&domain.ChatMessage{}).Error
}

// CreateChatMessage inserts a new message row into a thread.
func CreateChatMessage(db *gorm.DB, threadID, role, content string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// GetChatMessage fetches a single message by its ID, or ErrNotFound.
func GetChatMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListThreadMessages returns a thread's messages ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListThreadMessages(ctx context.Context, db *gorm.DB, threadID string) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountThreadMessages uses a raw COUNT so a missing table surfaces as an error.
func CountThreadMessages(db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM chat_messages WHERE thread_id = ?", threadID).Scan(&total).Error
	return total, err
}
