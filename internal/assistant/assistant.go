// Package assistant implements the conversational expense assistant: a
// Gemini-backed chat loop that answers questions about the user's spending
// and mutates expenses/tags through a constrained tool surface.
//
// Credit accounting is enforced here: one message credit is consumed before
// the model is invoked, and one function_call credit per tool invocation the
// model requests. When function credits run out mid-conversation the tool
// call is refused with a readable result instead of aborting the reply.
//
// The model session sits behind a small Session interface so tests can run
// the full loop with a scripted model.

package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/services"
)

var toolCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assistant_tool_calls_total",
		Help: "Assistant tool invocations by tool and outcome.",
	},
	[]string{"tool", "outcome"},
)

const (
	defaultMaxToolRounds = 8

	systemPrompt = `You are a personal expense tracking assistant. You help the user record
expenses, organize them with tags, and understand their spending. Use the
provided tools to read and change data; never invent expense data. Amounts
are in dollars. Be concise and confirm what you did after each change.`
)

// Session is one model conversation. Implementations send user parts and
// return the model's next turn.
type Session interface {
	Send(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// SessionFactory opens a Session seeded with prior conversation history.
type SessionFactory func(ctx context.Context, history []*genai.Content) (Session, error)

// ChatResult is the outcome of one assistant turn. ReplyID is the persisted
// assistant message, which lets retried requests replay the stored reply.
type ChatResult struct {
	ThreadID string                   `json:"threadId"`
	Reply    string                   `json:"reply"`
	ReplyID  string                   `json:"replyId,omitempty"`
	Credits  *services.CreditSnapshot `json:"credits"`
}

// Assistant runs the chat loop over threads, credits, and the tool
// dispatcher.
type Assistant struct {
	Threads    *services.ThreadService
	Credits    *services.CreditService
	Tools      *Dispatcher
	NewSession SessionFactory

	// MaxToolRounds bounds model round-trips per turn; zero means 8.
	MaxToolRounds int
}

// NewGeminiFactory returns a SessionFactory backed by the Gemini API, with
// the tool declarations and system prompt installed.
func NewGeminiFactory(client *genai.Client, modelName string) SessionFactory {
	return func(ctx context.Context, history []*genai.Content) (Session, error) {
		if modelName == "" {
			modelName = "gemini-1.5-flash"
		}
		model := client.GenerativeModel(modelName)
		model.Tools = []*genai.Tool{{FunctionDeclarations: Declarations()}}
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
		cs := model.StartChat()
		cs.History = history
		return &geminiSession{cs: cs}, nil
	}
}

type geminiSession struct {
	cs *genai.ChatSession
}

func (g *geminiSession) Send(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return g.cs.SendMessage(ctx, parts...)
}

// Chat runs one assistant turn: it consumes a message credit, persists the
// user message, drives the model through any tool calls, and persists the
// reply. An empty threadID starts a new thread. When message credits are
// exhausted it returns the snapshot together with ErrInsufficientCredits.
func (a *Assistant) Chat(ctx context.Context, userID, threadID, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, services.ErrEmptyMessage
	}

	var thread *domain.ChatThread
	var err error
	if threadID == "" {
		thread, err = a.Threads.Create(ctx, userID, "")
	} else {
		thread, err = a.Threads.Get(ctx, userID, threadID)
	}
	if err != nil {
		return nil, err
	}

	history, err := a.history(ctx, userID, thread.ID)
	if err != nil {
		return nil, err
	}

	snap, err := a.Credits.Consume(ctx, userID, domain.CreditKindMessage, "Assistant message")
	if errors.Is(err, services.ErrInsufficientCredits) {
		return &ChatResult{ThreadID: thread.ID, Credits: snap}, err
	}
	if err != nil {
		return nil, err
	}

	if _, err := a.Threads.Append(ctx, userID, thread.ID, services.RoleUser, message); err != nil {
		return nil, err
	}

	session, err := a.NewSession(ctx, history)
	if err != nil {
		return nil, err
	}

	reply, err := a.converse(ctx, session, userID, message)
	if err != nil {
		return nil, err
	}

	replyMsg, err := a.Threads.Append(ctx, userID, thread.ID, services.RoleAssistant, reply)
	if err != nil {
		return nil, err
	}

	snap, err = a.Credits.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ChatResult{ThreadID: thread.ID, Reply: reply, ReplyID: replyMsg.ID, Credits: snap}, nil
}

// converse drives the send/tool-call loop until the model produces text or
// the round budget runs out.
func (a *Assistant) converse(ctx context.Context, session Session, userID, message string) (string, error) {
	res, err := session.Send(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("assistant: send message: %w", err)
	}

	maxRounds := a.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	for round := 0; round < maxRounds; round++ {
		calls, text := splitParts(res)
		if len(calls) == 0 {
			if text == "" {
				text = "I wasn't able to come up with a response."
			}
			return text, nil
		}

		responses := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			responses = append(responses, genai.FunctionResponse{
				Name:     call.Name,
				Response: a.runTool(ctx, userID, call),
			})
		}

		res, err = session.Send(ctx, responses...)
		if err != nil {
			return "", fmt.Errorf("assistant: send tool response: %w", err)
		}
	}

	return "I had trouble finishing that request, please try again.", nil
}

// runTool charges one function_call credit and dispatches. A refused charge
// becomes a failed tool result so the model can tell the user.
func (a *Assistant) runTool(ctx context.Context, userID string, call genai.FunctionCall) map[string]any {
	_, err := a.Credits.Consume(ctx, userID, domain.CreditKindFunctionCall, "Assistant tool: "+call.Name)
	if errors.Is(err, services.ErrInsufficientCredits) {
		toolCallsTotal.WithLabelValues(call.Name, "insufficient_credits").Inc()
		return failure("No function call credits remaining today; credits reset every 24 hours.")
	}
	if err != nil {
		log.Error().Err(err).Str("tool", call.Name).Msg("credit consume failed")
		toolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		return failure("Something went wrong, please try again")
	}

	result := a.Tools.Dispatch(ctx, userID, call.Name, call.Args)
	outcome := "ok"
	if ok, _ := result["success"].(bool); !ok {
		outcome = "failed"
	}
	toolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
	return result
}

// history converts the thread's stored messages into model conversation
// history. System messages are skipped; the system prompt travels separately.
func (a *Assistant) history(ctx context.Context, userID, threadID string) ([]*genai.Content, error) {
	msgs, err := a.Threads.Messages(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		switch m.Role {
		case services.RoleAssistant:
			role = "model"
		case services.RoleSystem:
			continue
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out, nil
}

// splitParts separates the first candidate's parts into function calls and
// concatenated text.
func splitParts(res *genai.GenerateContentResponse) ([]genai.FunctionCall, string) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil, ""
	}
	var calls []genai.FunctionCall
	var text strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			calls = append(calls, p)
		case genai.Text:
			text.WriteString(string(p))
		}
	}
	return calls, strings.TrimSpace(text.String())
}
