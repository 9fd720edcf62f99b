// Package audit records state-changing actions after the business
// transaction commits. Writes are best-effort: a failed audit row is
// logged and never fails or rolls back the command that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Entry struct {
	TenantID   string
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Detail     any
}

type Log struct{ DB *pgxpool.Pool }

func (l *Log) Record(ctx context.Context, e Entry) {
	if l == nil || l.DB == nil {
		return
	}
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		detail = []byte(`{}`)
	}
	_, err = l.DB.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, actor, action, entity_type, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.TenantID, e.Actor, e.Action, e.EntityType, e.EntityID, detail)
	if err != nil {
		log.Printf("audit write failed action=%s entity=%s/%s: %v", e.Action, e.EntityType, e.EntityID, err)
	}
}
