// Package outbox implements the transactional outbox: events are appended
// in the same transaction as the business mutation and delivered later by
// a polling dispatcher, so an event exists if and only if its transaction
// committed.
package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Append records a pending event inside the caller's transaction. It is
// never called outside a command transaction.
func Append(ctx context.Context, tx pgx.Tx, tenantID, aggregateID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (tenant_id, aggregate_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, 'PENDING')`,
		tenantID, aggregateID, eventType, payload)
	return err
}
