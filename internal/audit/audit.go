package audit

import (
	"context"
	"strings"
	"time"

	"scorecard.org/internal/auth"
	"scorecard.org/internal/ids"
	"scorecard.org/internal/obs"
)

// Entry is one append-only record of a mutating action. Entries are never
// updated or deleted.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    *string        `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Store appends immutable entries.
type Store interface {
	AppendAudit(ctx context.Context, entry *Entry) error
}

// Recorder writes audit entries. Persistence failures are absorbed: the
// business operation already committed, so the trail must never roll it back.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// WithClock overrides the time source. Only intended for tests.
func (r *Recorder) WithClock(fn func() time.Time) *Recorder {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Record appends one entry, resolving the actor from the request context.
// A nil actor means the action had no authenticated caller (e.g. login).
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID string, detail map[string]any) {
	if r == nil || strings.TrimSpace(action) == "" {
		return
	}
	entry := &Entry{
		ID:         ids.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OccurredAt: r.now().UTC(),
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		actorID := principal.User.ID
		entry.ActorID = &actorID
	}
	if len(detail) > 0 {
		entry.Detail = make(map[string]any, len(detail))
		for k, v := range detail {
			entry.Detail[k] = v
		}
	}

	line := map[string]any{
		"ts":          entry.OccurredAt.Format(time.RFC3339Nano),
		"type":        "audit",
		"action":      entry.Action,
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
	}
	if entry.ActorID != nil {
		line["actor_id"] = *entry.ActorID
	}
	obs.LogRequest(line)

	if r.store == nil {
		return
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		obs.AuditDropped()
		obs.LogError("audit append failed", err, map[string]any{
			"action":    entry.Action,
			"entity_id": entry.EntityID,
		})
	}
}
