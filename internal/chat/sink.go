// Package chat delivers plain-text system messages produced by game
// transitions.
package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink receives system messages. Delivery is best effort.
type Sink interface {
	Post(ctx context.Context, gameID, text string) error
}

// NewSink returns the HTTP client when baseURL is set, a LogSink otherwise.
func NewSink(baseURL string, logger *zap.Logger, opts ...Option) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		logger.Info("chat_sink_log_only")
		return &LogSink{logger: logger}
	}
	return &loggingSink{next: NewClient(baseURL, opts...), logger: logger}
}

// LogSink only logs messages.
type LogSink struct{ logger *zap.Logger }

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Post(_ context.Context, gameID, text string) error {
	s.logger.Info("chat_system_message", zap.String("game_id", gameID), zap.String("text", text))
	return nil
}

type loggingSink struct {
	next   Sink
	logger *zap.Logger
}

func (s *loggingSink) Post(ctx context.Context, gameID, text string) error {
	if err := s.next.Post(ctx, gameID, text); err != nil {
		s.logger.Warn("chat_post_error", zap.String("game_id", gameID), zap.Error(err))
		return err
	}
	return nil
}

// Message is one recorded post.
type Message struct {
	Game string
	Text string
}

// Memory keeps posts in memory, for dry runs and tests.
type Memory struct {
	mu   sync.Mutex
	msgs []Message
}

func (m *Memory) Post(_ context.Context, gameID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, Message{Game: gameID, Text: text})
	return nil
}

func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.msgs))
	copy(out, m.msgs)
	return out
}
