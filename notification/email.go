package notification

import (
	"context"
	"log/slog"
)

// EmailSender is the outbound email collaborator. Implementations deliver a
// human-readable rendering of the notification; delivery failures never
// propagate back into the lifecycle engine.
type EmailSender interface {
	Send(ctx context.Context, recipientID string, kind Kind, payload map[string]any) error
}

// FallbackSender tries a primary sender and falls back to a secondary one when
// the primary fails. The fallback strategy is injected at construction rather
// than swapped through shared mutable state.
type FallbackSender struct {
	primary  EmailSender
	fallback EmailSender
	logger   *slog.Logger
}

func NewFallbackSender(primary, fallback EmailSender, logger *slog.Logger) *FallbackSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackSender{primary: primary, fallback: fallback, logger: logger}
}

func (s *FallbackSender) Send(ctx context.Context, recipientID string, kind Kind, payload map[string]any) error {
	err := s.primary.Send(ctx, recipientID, kind, payload)
	if err == nil {
		return nil
	}
	s.logger.Warn("notification: primary email sender failed", "kind", kind, "err", err)
	if s.fallback == nil {
		return err
	}
	return s.fallback.Send(ctx, recipientID, kind, payload)
}

// LogSender records outbound email intents without delivering anything. Used
// in development and as the default fallback.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, recipientID string, kind Kind, payload map[string]any) error {
	s.logger.Info("notification: email", "recipient", recipientID, "kind", kind)
	return nil
}
