// Package services – CreditService
//
// This file implements CreditService, the component that owns the per-user
// daily credit ledger. Each user has two counters (function_call and message)
// that roll over lazily: the first read or consume at least ResetInterval
// after the last reset zeroes both counters and records an audit entry, so no
// background scheduler is needed.
//
// Consumption is a single conditional UPDATE guarded by the stored limit,
// committed in the same transaction as the append-only audit record. Two
// concurrent consumers racing for the last credit cannot both succeed.
//
// Observability: public methods are OpenTelemetry-instrumented, and consume
// outcomes are counted in Prometheus.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var creditConsumesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_consumes_total",
		Help: "Credit consume attempts by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// CreditSnapshot is the ledger state returned to callers, with the derived
// remaining counts alongside the stored counters.
type CreditSnapshot struct {
	domain.UserCredit
	FunctionCallsRemaining int `json:"functionCallsRemaining"`
	MessagesRemaining      int `json:"messagesRemaining"`
}

// CreditService coordinates quota reads, lazy daily rollover, and atomic
// consumption against the credit ledger.
type CreditService struct {
	DB *gorm.DB

	// Limits applied when a ledger row is first created for a user.
	DefaultFunctionCallLimit int
	DefaultMessageLimit      int

	// ResetInterval is how long a reset remains current; zero means 24h.
	ResetInterval time.Duration

	// Now allows tests to control time. Defaults to time.Now.
	Now func() time.Time
}

// Snapshot returns the user's current ledger state, creating the row on first
// sight and applying a rollover when one is due.
func (s *CreditService) Snapshot(ctx context.Context, userID string) (*CreditSnapshot, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Snapshot",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	uc, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(uc), nil
}

// Consume spends one credit of the given kind and records the spend in the
// audit log, atomically. When the quota is exhausted it returns the current
// snapshot together with ErrInsufficientCredits so callers can report the
// remaining counts.
func (s *CreditService) Consume(ctx context.Context, userID, kind, description string) (*CreditSnapshot, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Consume",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("credit.kind", kind),
		),
	)
	defer span.End()

	if kind != domain.CreditKindFunctionCall && kind != domain.CreditKindMessage {
		return nil, ErrInvalidCreditKind
	}
	if strings.TrimSpace(description) == "" {
		description = "Used 1 " + kind + " credit"
	}

	if _, err := s.current(ctx, userID); err != nil {
		return nil, err
	}

	consumed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.ConsumeCredit(tx, userID, kind)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		consumed = true
		return repo.AppendCreditTransaction(tx, userID, kind, 1, description, "")
	})
	if err != nil {
		creditConsumesTotal.WithLabelValues(kind, "error").Inc()
		return nil, err
	}

	uc, err := repo.GetUserCredit(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	snap := s.snapshot(uc)
	if !consumed {
		creditConsumesTotal.WithLabelValues(kind, "insufficient").Inc()
		return snap, ErrInsufficientCredits
	}
	creditConsumesTotal.WithLabelValues(kind, "ok").Inc()
	return snap, nil
}

// Transactions returns the most recent audit entries for the user, newest
// first. A non-positive limit falls back to the repo default of 50.
func (s *CreditService) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	tr := otel.Tracer("services/CreditService")
	ctx, span := tr.Start(ctx, "Transactions",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.ListCreditTransactions(ctx, s.DB, userID, limit)
}

// current loads the ledger row, creating it when absent and rolling it over
// when the reset interval has elapsed.
func (s *CreditService) current(ctx context.Context, userID string) (*domain.UserCredit, error) {
	uc, err := repo.GetUserCredit(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		uc, err = repo.CreateUserCredit(ctx, s.DB, userID, s.functionCallLimit(), s.messageLimit())
	}
	if err != nil {
		return nil, err
	}

	if !s.rolloverDue(uc.LastResetDate) {
		return uc, nil
	}

	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ResetUserCredit(tx, userID, now); err != nil {
			return err
		}
		return repo.AppendCreditTransaction(tx, userID, domain.CreditTxReset, 0,
			"Daily credit reset",
			fmt.Sprintf(`{"resetDate":%q}`, now.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return nil, err
	}
	return repo.GetUserCredit(ctx, s.DB, userID)
}

// rolloverDue reports whether at least one reset interval has elapsed since
// the last reset.
func (s *CreditService) rolloverDue(lastReset time.Time) bool {
	return s.now().Sub(lastReset) >= s.resetInterval()
}

func (s *CreditService) snapshot(uc *domain.UserCredit) *CreditSnapshot {
	fn := uc.FunctionCallsLimit - uc.FunctionCallsUsed
	if fn < 0 {
		fn = 0
	}
	msg := uc.MessagesLimit - uc.MessagesUsed
	if msg < 0 {
		msg = 0
	}
	return &CreditSnapshot{
		UserCredit:             *uc,
		FunctionCallsRemaining: fn,
		MessagesRemaining:      msg,
	}
}

func (s *CreditService) functionCallLimit() int {
	if s.DefaultFunctionCallLimit > 0 {
		return s.DefaultFunctionCallLimit
	}
	return 10
}

func (s *CreditService) messageLimit() int {
	if s.DefaultMessageLimit > 0 {
		return s.DefaultMessageLimit
	}
	return 10
}

func (s *CreditService) resetInterval() time.Duration {
	if s.ResetInterval > 0 {
		return s.ResetInterval
	}
	return 24 * time.Hour
}

func (s *CreditService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
