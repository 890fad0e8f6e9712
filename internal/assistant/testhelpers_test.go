package assistant

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/generative-ai-go/genai"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/services"
)

func newAssistantDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assistant_test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Expense{}, &domain.Tag{}, &domain.ExpenseTag{},
		&domain.UserCredit{}, &domain.CreditTransaction{},
		&domain.ChatThread{}, &domain.ChatMessage{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// scriptedSession replays canned model responses and records what was sent.
type scriptedSession struct {
	responses []*genai.GenerateContentResponse
	sent      [][]genai.Part
}

func (s *scriptedSession) Send(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	s.sent = append(s.sent, parts)
	if len(s.responses) == 0 {
		return textResponse(""), nil
	}
	res := s.responses[0]
	s.responses = s.responses[1:]
	return res, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(text)},
			},
		}},
	}
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.FunctionCall{Name: name, Args: args}},
			},
		}},
	}
}

// newTestAssistant wires an Assistant over one database with a scripted
// session. The returned session records every Send for assertions.
func newTestAssistant(t *testing.T, db *gorm.DB, responses ...*genai.GenerateContentResponse) (*Assistant, *scriptedSession) {
	t.Helper()
	session := &scriptedSession{responses: responses}
	expenses := &services.ExpenseService{DB: db}
	a := &Assistant{
		Threads: &services.ThreadService{DB: db},
		Credits: &services.CreditService{DB: db, DefaultFunctionCallLimit: 10, DefaultMessageLimit: 10},
		Tools:   &Dispatcher{Expenses: expenses, Tags: &services.TagService{DB: db}},
		NewSession: func(_ context.Context, _ []*genai.Content) (Session, error) {
			return session, nil
		},
	}
	return a, session
}
