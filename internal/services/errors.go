// Package services defines the business logic for credits, expenses, tags,
// and chat threads. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked
// by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler layer, and translation into assistant-readable tool results at the
// dispatcher.
package services

import "errors"

// Credit ledger errors.
var (
	// ErrInsufficientCredits indicates the daily quota for the requested kind
	// is exhausted. Consume returns it together with a snapshot carrying the
	// remaining counts.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidCreditKind is returned when a consume request names a kind
	// other than "function_call" or "message".
	ErrInvalidCreditKind = errors.New("credit kind must be function_call or message")
)

// Expense and tag errors.
var (
	// ErrExpenseNotFound indicates the expense does not exist or belongs to a
	// different user. The two cases are deliberately indistinguishable.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrTagNotFound indicates the tag does not exist or belongs to a
	// different user.
	ErrTagNotFound = errors.New("tag not found")

	// ErrDuplicateTag is returned when a tag with the same name already
	// exists for the user; callers receive the existing tag alongside it.
	ErrDuplicateTag = errors.New("tag already exists")

	// ErrTitleRequired is returned when an expense is created or updated with
	// an empty title.
	ErrTitleRequired = errors.New("title is required")

	// ErrInvalidAmount is returned when an expense amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidTagName is returned when a tag name is empty or longer than
	// 30 characters.
	ErrInvalidTagName = errors.New("tag name must be 1-30 characters")

	// ErrInvalidPeriod is returned for insight periods outside week/month/year.
	ErrInvalidPeriod = errors.New("period must be week, month, or year")
)

// Chat thread errors.
var (
	// ErrInvalidTitle is returned when a thread rename carries an empty
	// title or one longer than 255 characters.
	ErrInvalidTitle = errors.New("title must be 1-255 characters")

	// ErrThreadNotFound indicates the thread does not exist or is not
	// accessible to the current user.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrEmptyMessage is returned when a chat message has no content.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a chat message exceeds the configured
	// maximum length.
	ErrMessageTooLong = errors.New("message too long")
)
