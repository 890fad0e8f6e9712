// Package domain defines the persistence models for expenses, tags, credits,
// and chat threads. These types are mapped with GORM and form the core data
// layer of the expense tracking application.
package domain

import "time"

// Expense represents a single expense entry owned by a user. Amounts are
// stored in integer minor units (cents) to avoid floating-point drift in
// persisted values; the HTTP and assistant boundaries convert to and from
// dollars explicitly.
//
// Fields:
//   - ID: auto-incrementing primary key.
//   - Title: short description of the expense.
//   - Amount: value in cents (always >= 1).
//   - UserID: identifier of the owning user; every query must filter on it.
//   - CreatedAt: timestamp, optionally backdated by the caller.
type Expense struct {
	ID        int64     `json:"id"        gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title"     gorm:"type:varchar(100);not null"`
	Amount    int64     `json:"amount"    gorm:"not null"`
	UserID    string    `json:"userId"    gorm:"type:varchar(64);not null;index:idx_user_expenses"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name for Expense.
func (Expense) TableName() string { return "expenses" }

// Tag labels zero or more expenses. Tag names are exact-match unique per
// user (no case folding beyond transport-level trimming), enforced by a
// composite unique index so a find-or-create race cannot produce duplicates.
type Tag struct {
	ID        int64     `json:"id"        gorm:"primaryKey;autoIncrement"`
	TagName   string    `json:"tagName"   gorm:"type:varchar(30);not null;uniqueIndex:ux_user_tag,priority:2"`
	UserID    string    `json:"userId"    gorm:"type:varchar(64);not null;uniqueIndex:ux_user_tag,priority:1"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string { return "tags" }

// ExpenseTag is the junction row linking one expense to one tag. Join rows
// carry no user identifier of their own; ownership is established through the
// expense and tag rows they reference. Deleting either side removes the link.
type ExpenseTag struct {
	ID        int64     `json:"id"        gorm:"primaryKey;autoIncrement"`
	ExpenseID int64     `json:"expenseId" gorm:"not null;uniqueIndex:ux_expense_tag,priority:1"`
	TagID     int64     `json:"tagId"     gorm:"not null;uniqueIndex:ux_expense_tag,priority:2"`
	CreatedAt time.Time `json:"createdAt"`

	Expense Expense `json:"-" gorm:"foreignKey:ExpenseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Tag     Tag     `json:"-" gorm:"foreignKey:TagID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ExpenseTag.
func (ExpenseTag) TableName() string { return "expense_tags" }

// Credit kinds accepted by the ledger, and the bookkeeping-only transaction
// types that accompany them in the append-only log.
const (
	CreditKindFunctionCall = "function_call"
	CreditKindMessage      = "message"

	CreditTxReset   = "reset"
	CreditTxUpgrade = "upgrade"
)

// UserCredit tracks a user's daily AI usage quota. One row per user, created
// lazily on first access. Used counters roll back to zero once 24 hours have
// elapsed since LastResetDate; the reset is lazy and happens on the next
// read, not via a background timer.
//
// Invariant: used <= limit for each kind, enforced at consumption time by a
// conditional update (see repo.ConsumeCredit).
type UserCredit struct {
	ID                 int64     `json:"id"                 gorm:"primaryKey;autoIncrement"`
	UserID             string    `json:"userId"             gorm:"type:varchar(64);not null;uniqueIndex"`
	FunctionCallsUsed  int       `json:"functionCallsUsed"  gorm:"not null;default:0"`
	MessagesUsed       int       `json:"messagesUsed"       gorm:"not null;default:0"`
	FunctionCallsLimit int       `json:"functionCallsLimit" gorm:"not null;default:10"`
	MessagesLimit      int       `json:"messagesLimit"      gorm:"not null;default:10"`
	IsPremium          bool      `json:"isPremium"          gorm:"not null;default:false"`
	LastResetDate      time.Time `json:"lastResetDate"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TableName returns the database table name for UserCredit.
func (UserCredit) TableName() string { return "user_credits" }

// CreditTransaction is one row of the append-only accounting log. A row is
// written for every consume and every reset; rows are never updated or
// deleted.
type CreditTransaction struct {
	ID          int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	UserID      string    `json:"userId"      gorm:"type:varchar(64);not null;index:idx_user_credit_tx,priority:1"`
	Type        string    `json:"type"        gorm:"type:varchar(16);not null;check:type IN ('function_call','message','reset','upgrade')"`
	Amount      int       `json:"amount"      gorm:"not null"`
	Description string    `json:"description" gorm:"type:text"`
	Metadata    string    `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"index:idx_user_credit_tx,priority:2"`
}

// TableName returns the database table name for CreditTransaction.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// ChatThread is a persisted assistant conversation owned by a user. Titles
// are auto-generated from the first user message when left at the default.
type ChatThread struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Title     string    `json:"title"     gorm:"type:varchar(255);not null;default:'New chat'"`
	UserID    string    `json:"userId"    gorm:"type:varchar(64);not null;index:idx_user_threads"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name for ChatThread.
func (ChatThread) TableName() string { return "chat_threads" }

// ChatMessage is a single utterance within a thread, authored by "user",
// "assistant", or "system". Messages are cascade-deleted with their thread.
type ChatMessage struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	ThreadID  string    `json:"threadId"  gorm:"type:char(36);not null;index:idx_thread_msgs,priority:1"`
	Role      string    `json:"role"      gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content   string    `json:"content"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_thread_msgs,priority:2"`

	Thread ChatThread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }
