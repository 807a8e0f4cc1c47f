// Package logging defines the structured, context-aware logger used across
// gophtalk and its log/slog implementation.
package logging

import "context"

// Logger takes key/value pairs after the message:
//
//	log.Info(ctx, "message posted", "room_id", roomID, "message_id", id)
//
// Message text, attachment bytes and key material must never be passed as
// values. Values under the keys in redactedKeys are masked regardless.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
