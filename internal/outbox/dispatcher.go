package outbox

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher delivers one event to the bus, synchronously. A nil return
// means the broker acknowledged the write.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, eventType string) error
}

// Dispatcher polls pending rows and delivers them at-least-once. Rows are
// claimed with FOR UPDATE SKIP LOCKED so multiple dispatchers do not fight;
// per-aggregate order is preserved two ways: after a failed publish the
// aggregate's later rows in the batch are held back, and an aggregate whose
// earliest pending row is claimed by another dispatcher is skipped for the
// whole poll.
type Dispatcher struct {
	DB        *pgxpool.Pool
	Publisher Publisher
	Batch     int
	Interval  time.Duration
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	log.Printf("outbox dispatcher started: interval=%s batch=%d", d.Interval, d.Batch)
	for {
		select {
		case <-ctx.Done():
			log.Println("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if n, err := d.Dispatch(ctx); err != nil {
				log.Printf("outbox dispatch: %v", err)
			} else if n > 0 {
				log.Printf("outbox dispatched %d events", n)
			}
		}
	}
}

type pendingEvent struct {
	ID        int64
	Aggregate string
	EventType string
	Payload   []byte
}

// Dispatch delivers one batch. Failed rows keep status PENDING with an
// incremented attempt count and are retried on a later poll; delivery
// failures are never surfaced to the command that produced the event.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, d.Batch)
	if err != nil {
		return 0, err
	}

	var batch []pendingEvent
	for rows.Next() {
		var p pendingEvent
		if err := rows.Scan(&p.ID, &p.Aggregate, &p.EventType, &p.Payload); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, tx.Commit(ctx)
	}

	held, err := heldAggregates(ctx, tx, batch)
	if err != nil {
		return 0, err
	}

	published, err := deliver(ctx, d.Publisher, batch, held,
		func(p pendingEvent) error {
			_, err := tx.Exec(ctx, `
				UPDATE outbox_events
				SET status = 'PUBLISHED', published_at = now(), attempts = attempts + 1
				WHERE id = $1`, p.ID)
			return err
		},
		func(p pendingEvent, perr error) error {
			_, err := tx.Exec(ctx, `
				UPDATE outbox_events
				SET attempts = attempts + 1, last_error = $2
				WHERE id = $1`, p.ID, perr.Error())
			return err
		})
	if err != nil {
		return published, err
	}
	return published, tx.Commit(ctx)
}

// deliver publishes a claimed batch in id order. The first failure of an
// aggregate holds back its later rows (they stay PENDING untouched, no
// attempt counted), so the aggregate's run is retried in order next poll.
// Aggregates in held are skipped entirely.
func deliver(ctx context.Context, pub Publisher, batch []pendingEvent, held map[string]bool,
	onPublished func(pendingEvent) error, onFailed func(pendingEvent, error) error) (int, error) {

	failed := map[string]bool{}
	published := 0
	for _, p := range batch {
		if held[p.Aggregate] || failed[p.Aggregate] {
			continue
		}
		if perr := pub.Publish(ctx, []byte(p.Aggregate), p.Payload, p.EventType); perr != nil {
			log.Printf("outbox publish id=%d type=%s: %v", p.ID, p.EventType, perr)
			failed[p.Aggregate] = true
			if err := onFailed(p, perr); err != nil {
				return published, err
			}
			continue
		}
		if err := onPublished(p); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// heldAggregates finds aggregates in the batch whose earliest pending row
// is not ours: another dispatcher claimed it, and publishing our later rows
// first would reorder the aggregate's stream.
func heldAggregates(ctx context.Context, tx pgx.Tx, batch []pendingEvent) (map[string]bool, error) {
	minClaimed := map[string]int64{}
	var aggs []string
	for _, p := range batch {
		if _, ok := minClaimed[p.Aggregate]; !ok {
			minClaimed[p.Aggregate] = p.ID
			aggs = append(aggs, p.Aggregate)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT aggregate_id, MIN(id)
		FROM outbox_events
		WHERE status = 'PENDING' AND aggregate_id = ANY($1)
		GROUP BY aggregate_id`, aggs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	held := map[string]bool{}
	for rows.Next() {
		var agg string
		var minPending int64
		if err := rows.Scan(&agg, &minPending); err != nil {
			return nil, err
		}
		if minPending < minClaimed[agg] {
			held[agg] = true
		}
	}
	return held, rows.Err()
}
