// Package chat drives a prompt through a conversation: create or continue
// the record, keep its summary current, ask the provider, persist the reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/totalrecall/internal/aiconnectors"
	"github.com/totalrecall/pkg/models"
)

var ErrEmptyPrompt = errors.New("prompt is required")

// ConversationStore is the subset of the conversation repository used here
type ConversationStore interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	Save(ctx context.Context, conv *models.Conversation) (string, error)
}

// Providers resolves a provider name to a connection
type Providers interface {
	Sender(name string) (aiconnectors.Sender, error)
}

// SummaryPolicy controls the rolling summary
type SummaryPolicy struct {
	Enabled bool
	// RefreshEvery is how many new messages invalidate a stored summary.
	// Values below 1 are treated as 1.
	RefreshEvery int
}

// HistoryPolicy controls what part of the history is sent to the provider
type HistoryPolicy struct {
	WindowSize   int
	DropLowValue bool
}

// Request is one prompt in a new or existing conversation
type Request struct {
	Prompt         string
	Provider       string
	ConversationID string
}

// Service handles conversation turns
type Service struct {
	store     ConversationStore
	providers Providers
	summary   SummaryPolicy
	history   HistoryPolicy
	onCreate  func()
}

// Option configures a Service
type Option func(*Service)

// WithSummaryPolicy sets the summary policy. The default is enabled with a
// refresh on every turn.
func WithSummaryPolicy(p SummaryPolicy) Option {
	return func(s *Service) { s.summary = p }
}

// WithHistoryPolicy sets the outbound history window
func WithHistoryPolicy(p HistoryPolicy) Option {
	return func(s *Service) { s.history = p }
}

// WithCreateHook registers fn to be called after a new conversation is saved
func WithCreateHook(fn func()) Option {
	return func(s *Service) { s.onCreate = fn }
}

// NewService creates a chat service
func NewService(store ConversationStore, providers Providers, opts ...Option) *Service {
	s := &Service{
		store:     store,
		providers: providers,
		summary:   SummaryPolicy{Enabled: true, RefreshEvery: 1},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.summary.RefreshEvery < 1 {
		s.summary.RefreshEvery = 1
	}
	return s
}

// Converse runs one turn. Without a conversation id a new conversation is
// started and created is true. The provider is resolved before the store is
// touched, so an unknown provider costs nothing.
func (s *Service) Converse(ctx context.Context, req Request) (*models.Conversation, bool, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, false, ErrEmptyPrompt
	}
	sender, err := s.providers.Sender(req.Provider)
	if err != nil {
		return nil, false, err
	}

	var conv *models.Conversation
	created := req.ConversationID == ""
	if created {
		conv = models.NewConversation(req.Prompt)
		log.Debug().Str("provider", req.Provider).Msg("Starting new conversation")
	} else {
		conv, err = s.store.Get(ctx, req.ConversationID)
		if err != nil {
			return nil, false, err
		}
		conv.Messages = append(conv.Messages, models.Message{Role: models.RoleUser, Content: req.Prompt})
		log.Debug().
			Str("conversation_id", conv.ID).
			Int("messages", len(conv.Messages)).
			Msg("Continuing conversation")
	}

	summary, err := s.refreshSummary(ctx, sender, conv)
	if err != nil {
		return nil, false, err
	}

	outbound := aiconnectors.Window(conv.Messages, s.history.WindowSize, s.history.DropLowValue)
	reply, err := sender.Send(ctx, outbound, summary)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get provider response: %w", err)
	}
	conv.Messages = append(conv.Messages, reply)

	if _, err := s.store.Save(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("failed to save conversation: %w", err)
	}
	if created && s.onCreate != nil {
		s.onCreate()
	}
	return conv, created, nil
}

// refreshSummary returns the summary to send with this turn and records it
// on conv. A single-message conversation has no summary.
func (s *Service) refreshSummary(ctx context.Context, sender aiconnectors.Sender, conv *models.Conversation) (string, error) {
	if !s.summary.Enabled || len(conv.Messages) <= 1 {
		return "", nil
	}

	added := len(conv.Messages) - conv.SummarizedCount
	if conv.Summary != "" && added < s.summary.RefreshEvery {
		return conv.Summary, nil
	}

	summary, err := sender.Summarize(ctx, conv.Messages)
	if err != nil {
		return "", fmt.Errorf("failed to summarize conversation: %w", err)
	}
	conv.Summary = summary
	conv.SummarizedCount = len(conv.Messages)
	log.Debug().
		Str("conversation_id", conv.ID).
		Int("summarized_count", conv.SummarizedCount).
		Msg("Conversation summary refreshed")
	return summary, nil
}

// SendPrompt sends a single prompt with no stored state and returns the text
// of the reply
func (s *Service) SendPrompt(ctx context.Context, prompt, provider string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	sender, err := s.providers.Sender(provider)
	if err != nil {
		return "", err
	}
	reply, err := sender.Send(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}}, "")
	if err != nil {
		return "", fmt.Errorf("failed to get provider response: %w", err)
	}
	return reply.Content, nil
}
