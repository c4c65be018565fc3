// Package audit attributes core operations to the caller that triggered them
// and records the outcome in the audit trail.
package audit

import (
	"context"

	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/models"
)

// Recorder persists audit log entries
type Recorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Nop discards every entry. It is used when no database is configured.
type Nop struct{}

// Create implements Recorder
func (Nop) Create(context.Context, *models.AuditLog) error { return nil }

// Actor identifies the origin of a request
type Actor struct {
	Source string
	ID     string
}

type actorKey struct{}

// WithActor returns a context carrying the request origin
func WithActor(ctx context.Context, source, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, Actor{Source: source, ID: id})
}

// ActorFrom returns the origin stored in ctx, or an unknown actor
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{Source: "unknown", ID: "unknown"}
}

// Trail records entries on behalf of the actor found in the context.
// Write failures are logged and never returned: the audit trail must not
// change the outcome of the operation being audited.
type Trail struct {
	recorder Recorder
	logger   logging.Logger
}

// NewTrail creates a trail over recorder. A nil recorder discards entries.
func NewTrail(recorder Recorder, logger logging.Logger) *Trail {
	if recorder == nil {
		recorder = Nop{}
	}
	return &Trail{recorder: recorder, logger: logger}
}

// Record fills Actor and Source from ctx and stores entry
func (t *Trail) Record(ctx context.Context, entry *models.AuditLog) {
	actor := ActorFrom(ctx)
	if entry.Actor == "" {
		entry.Actor = actor.ID
	}
	if entry.Source == "" {
		entry.Source = actor.Source
	}

	if err := t.recorder.Create(ctx, entry); err != nil {
		t.logger.Error(ctx, "failed to write audit log",
			"action", entry.Action, "username", entry.Username, "error", err)
	}
}
