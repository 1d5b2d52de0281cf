package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"scorecard.org/internal/audit"
)

// AppendAudit inserts one entry into the append-only log. There is no update
// or delete path for audit_log anywhere in the store.
func (s *Store) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	var detail []byte
	if len(entry.Detail) > 0 {
		data, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		detail = data
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, entity_type, entity_id, detail, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, detail, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
