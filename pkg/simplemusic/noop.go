package simplemusic

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) SongCreated(ctx context.Context, song *Song) error { return nil }

func (n *NoopEventSink) SongUpdated(ctx context.Context, song *Song) error { return nil }

func (n *NoopEventSink) SongDeleted(ctx context.Context, songID uuid.UUID) error { return nil }

func (n *NoopEventSink) PlayRecorded(ctx context.Context, event *PlayEvent) error { return nil }

func (n *NoopEventSink) CompensationRan(ctx context.Context, op string, class ContentClass, err error) error {
	return nil
}

func (n *NoopEventSink) CascadeCompleted(ctx context.Context, result *CascadeResult) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) SongCreated(ctx context.Context, song *Song) error {
	l.logger.InfoContext(ctx, "song created", "song_id", song.ID, "owner_id", song.OwnerID, "title", song.Title)
	return nil
}

func (l *LoggingEventSink) SongUpdated(ctx context.Context, song *Song) error {
	l.logger.InfoContext(ctx, "song updated", "song_id", song.ID)
	return nil
}

func (l *LoggingEventSink) SongDeleted(ctx context.Context, songID uuid.UUID) error {
	l.logger.InfoContext(ctx, "song deleted", "song_id", songID)
	return nil
}

func (l *LoggingEventSink) PlayRecorded(ctx context.Context, event *PlayEvent) error {
	l.logger.DebugContext(ctx, "play recorded", "song_id", event.SongID, "user_id", event.UserID)
	return nil
}

func (l *LoggingEventSink) CompensationRan(ctx context.Context, op string, class ContentClass, err error) error {
	if err != nil {
		l.logger.ErrorContext(ctx, "compensation failed", "op", op, "class", class, "error", err)
		return nil
	}
	l.logger.InfoContext(ctx, "compensation ran", "op", op, "class", class)
	return nil
}

func (l *LoggingEventSink) CascadeCompleted(ctx context.Context, result *CascadeResult) error {
	l.logger.InfoContext(ctx, "cascade completed",
		"user_id", result.UserID, "role", result.Role,
		"attempted", result.Attempted, "succeeded", result.Succeeded, "failed", result.Failed)
	return nil
}

// MultiEventSink fans every event out to several sinks and returns the
// first error.
type MultiEventSink []EventSink

func (m MultiEventSink) each(fn func(EventSink) error) error {
	var first error
	for _, sink := range m {
		if err := fn(sink); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiEventSink) SongCreated(ctx context.Context, song *Song) error {
	return m.each(func(s EventSink) error { return s.SongCreated(ctx, song) })
}

func (m MultiEventSink) SongUpdated(ctx context.Context, song *Song) error {
	return m.each(func(s EventSink) error { return s.SongUpdated(ctx, song) })
}

func (m MultiEventSink) SongDeleted(ctx context.Context, songID uuid.UUID) error {
	return m.each(func(s EventSink) error { return s.SongDeleted(ctx, songID) })
}

func (m MultiEventSink) PlayRecorded(ctx context.Context, event *PlayEvent) error {
	return m.each(func(s EventSink) error { return s.PlayRecorded(ctx, event) })
}

func (m MultiEventSink) CompensationRan(ctx context.Context, op string, class ContentClass, err error) error {
	return m.each(func(s EventSink) error { return s.CompensationRan(ctx, op, class, err) })
}

func (m MultiEventSink) CascadeCompleted(ctx context.Context, result *CascadeResult) error {
	return m.each(func(s EventSink) error { return s.CascadeCompleted(ctx, result) })
}
