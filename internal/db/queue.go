package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thevtm/baker-news/internal/events"
	"github.com/thevtm/baker-news/internal/models"
	"github.com/thevtm/baker-news/internal/store"
)

const pollSQL = `
UPDATE event_facts
SET visible_at = now() + make_interval(secs => ?), read_count = read_count + 1
WHERE id IN (
	SELECT id FROM event_facts
	WHERE visible_at <= now()
	ORDER BY id
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING id, kind, payload, read_count, enqueued_at, visible_at`

const archiveSQL = `
WITH moved AS (
	DELETE FROM event_facts
	WHERE id = ? AND read_count = ?
	RETURNING id, kind, payload, read_count, enqueued_at
)
INSERT INTO archived_facts (id, kind, payload, read_count, enqueued_at, archived_at)
SELECT id, kind, payload, read_count, enqueued_at, now() FROM moved`

// Queue implements store.Queue over the event_facts table
type Queue struct {
	db *gorm.DB
}

// Queue returns the consumer side of the durable event log
func (d *DB) Queue() *Queue {
	return &Queue{db: d.DB}
}

// Poll leases up to max visible facts. Rows leased by a concurrent poller are skipped.
func (q *Queue) Poll(ctx context.Context, lease time.Duration, max int) ([]store.LeasedFact, error) {
	var rows []models.EventFact
	if err := q.db.WithContext(ctx).Raw(pollSQL, lease.Seconds(), max).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to poll event facts: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	leased := make([]store.LeasedFact, 0, len(rows))
	for _, row := range rows {
		leased = append(leased, store.LeasedFact{
			Receipt:    store.Receipt{FactID: row.ID, ReadCount: row.ReadCount},
			Kind:       events.Kind(row.Kind),
			Payload:    row.Payload,
			EnqueuedAt: row.EnqueuedAt,
		})
	}
	return leased, nil
}

// Archive moves the fact to archived_facts if the receipt still owns its lease
func (q *Queue) Archive(ctx context.Context, receipt store.Receipt) (bool, error) {
	res := q.db.WithContext(ctx).Exec(archiveSQL, receipt.FactID, receipt.ReadCount)
	if res.Error != nil {
		return false, fmt.Errorf("failed to archive fact %d: %w", receipt.FactID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Listener wakes the relay when a fact is appended
type Listener struct {
	listener *pq.Listener
	logger   *zap.Logger
}

// NewListener subscribes to the facts channel on a dedicated connection
func NewListener(dsn string, logger *zap.Logger) (*Listener, error) {
	logger = logger.With(zap.String("channel", FactsChannel))

	l := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Fact listener connection event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(FactsChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", FactsChannel, err)
	}

	logger.Info("Listening for appended facts")
	return &Listener{listener: l, logger: logger}, nil
}

// Wait blocks until a notification arrives, max elapses, or ctx ends
func (l *Listener) Wait(ctx context.Context, max time.Duration) {
	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-l.listener.Notify:
	}
}

// Close releases the listener connection
func (l *Listener) Close() error {
	return l.listener.Close()
}

var (
	_ store.Queue = (*Queue)(nil)
	_ store.Waker = (*Listener)(nil)
)
