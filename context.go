package eventcore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

// Define constants for context keys
const (
	envelopeKey      ctxKey = "envelope"
	correlationIDKey ctxKey = "correlationID"
	causationIDKey   ctxKey = "causationID"
)

// WithEnvelope adds the envelope of the event being handled to the context.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey, env)
}

// EnvelopeFromContext returns the envelope or nil if not present
func EnvelopeFromContext(ctx context.Context) *Envelope {
	if v := ctx.Value(envelopeKey); v != nil {
		if env, ok := v.(*Envelope); ok {
			return env
		}
	}
	return nil
}

// StreamIDFromContext returns the StreamID or "" if not present
func StreamIDFromContext(ctx context.Context) string {
	if env := EnvelopeFromContext(ctx); env != nil {
		return env.StreamID
	}
	return ""
}

// EventIDFromContext returns the EventID or uuid.Nil if not present
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if env := EnvelopeFromContext(ctx); env != nil {
		return env.EventID
	}
	return uuid.Nil
}

// VersionFromContext returns the Version or 0 if not present
func VersionFromContext(ctx context.Context) uint64 {
	if env := EnvelopeFromContext(ctx); env != nil {
		return env.Version
	}
	return 0
}

// PositionFromContext returns the global Position or 0 if not present
func PositionFromContext(ctx context.Context) uint64 {
	if env := EnvelopeFromContext(ctx); env != nil {
		return env.Position
	}
	return 0
}

// OccurredAtFromContext returns OccurredAt or zero time if not present
func OccurredAtFromContext(ctx context.Context) time.Time {
	if env := EnvelopeFromContext(ctx); env != nil {
		return env.OccurredAt
	}
	return time.Time{}
}

// MetadataFromContext returns the envelope metadata or an empty map if not present
func MetadataFromContext(ctx context.Context) map[string]any {
	if env := EnvelopeFromContext(ctx); env != nil && env.Metadata != nil {
		return env.Metadata
	}
	return map[string]any{}
}

// WithCorrelationID threads the correlation id of a command through ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation id. Inside an event
// handler the id of the envelope being handled wins.
func CorrelationIDFromContext(ctx context.Context) string {
	if env := EnvelopeFromContext(ctx); env != nil && env.CorrelationID != "" {
		return env.CorrelationID
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCausationID records the id of the command or event that caused the
// events about to be produced.
func WithCausationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, causationIDKey, id)
}

// CausationIDFromContext returns the causation id or "" if not present.
func CausationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(causationIDKey).(string); ok {
		return v
	}
	return ""
}
