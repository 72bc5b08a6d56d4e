// Package analysis builds the context the AI assistant sees and runs the
// room analysis flow. It is shared by the realtime pipeline and the admin CLI.
package analysis

import (
	"accord/backend/internal/aibridge"
	"accord/backend/internal/config"
	"accord/backend/internal/models"
	"accord/backend/internal/storage"
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Assistant is the part of the AI bridge the relay depends on.
type Assistant interface {
	Ask(ctx context.Context, req aibridge.Request) (*aibridge.Response, error)
}

// Service produces question contexts and room analyses.
type Service struct {
	Store storage.Storage
	AI    Assistant

	// Window caps the history sent for an analysis.
	Window int
	// ContextWindow caps the history used as question context when the room
	// has no usable analysis.
	ContextWindow int
	// MaxAge makes stored analyses stale; zero never expires them.
	MaxAge time.Duration

	now func() time.Time
}

// NewService builds a Service from the relay settings.
func NewService(store storage.Storage, ai Assistant, cfg config.RelayConfig) *Service {
	return &Service{
		Store:         store,
		AI:            ai,
		Window:        cfg.AnalysisWindow,
		ContextWindow: cfg.AIContextWindow,
		MaxAge:        cfg.AnalysisMaxAge,
		now:           time.Now,
	}
}

// Transcript renders messages as "senderName: text" lines.
func Transcript(seq iter.Seq2[models.Message, error]) (string, error) {
	var b strings.Builder
	for msg, err := range seq {
		if err != nil {
			return "", err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.SenderName)
		b.WriteString(": ")
		b.WriteString(msg.Text)
	}
	return b.String(), nil
}

// QuestionContext picks the context for an @ai question: the room's latest
// analysis while it is fresh, else its recent transcript, else a fixed line.
func (s *Service) QuestionContext(ctx context.Context, chatID string) (string, error) {
	latest, err := s.Store.GetLatestAnalysis(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !latest.IsStale(s.now(), s.MaxAge) && strings.TrimSpace(latest.AnalysisText) != "" {
		return latest.AnalysisText, nil
	}

	transcript, err := Transcript(s.Store.FetchHistory(ctx, chatID, s.ContextWindow, models.OrderOldestFirst))
	if err != nil {
		return "", err
	}
	if transcript == "" {
		return config.DefaultQuestionContext, nil
	}
	return transcript, nil
}

// Answer asks the assistant a question about the room.
func (s *Service) Answer(ctx context.Context, chatID, question string) (*aibridge.Response, error) {
	history, err := s.QuestionContext(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("build question context for %s: %w", chatID, err)
	}
	resp, err := s.AI.Ask(ctx, aibridge.Request{Context: history, Question: question, Mode: aibridge.ModeQuestion})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Answer) == "" {
		resp.Answer = config.FallbackAnswer
	}
	return resp, nil
}

// Analyze summarizes the room's recent history and stores the result as the
// room's latest analysis. An empty room is analyzed with an empty context.
func (s *Service) Analyze(ctx context.Context, chatID string) (*models.AnalysisResult, error) {
	transcript, err := Transcript(s.Store.FetchHistory(ctx, chatID, s.Window, models.OrderOldestFirst))
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", chatID, err)
	}

	resp, err := s.AI.Ask(ctx, aibridge.Request{Context: transcript, Mode: aibridge.ModeAnalysis})
	if err != nil {
		return nil, err
	}

	text := resp.Answer
	if strings.TrimSpace(text) == "" {
		text = config.FallbackAnalysis
	}
	result := &models.AnalysisResult{
		RoomID:       chatID,
		AnalysisText: text,
		ProducedAt:   s.now().UTC(),
	}
	if err := s.Store.SaveAnalysis(ctx, result); err != nil {
		return nil, fmt.Errorf("save analysis of %s: %w", chatID, err)
	}
	return result, nil
}
