package supabase

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"slide2video/internal/events"
)

// RowInserter writes a row into a table. *Client implements it.
type RowInserter interface {
	Insert(table string, row interface{}) error
}

// EventRow is the wizard_events row shape. Supabase Realtime broadcasts
// inserts on this table to subscribed browsers.
type EventRow struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// RealtimePublisher forwards wizard events to Supabase. Inserts happen on a
// background goroutine so the wizard never waits on the network; when the
// queue is full, events are dropped and logged.
type RealtimePublisher struct {
	inserter  RowInserter
	table     string
	sessionID uuid.UUID
	logger    *slog.Logger

	queue     chan events.Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewRealtimePublisher(inserter RowInserter, table string, sessionID uuid.UUID, logger *slog.Logger) *RealtimePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RealtimePublisher{
		inserter:  inserter,
		table:     table,
		sessionID: sessionID,
		logger:    logger,
		queue:     make(chan events.Event, 256),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *RealtimePublisher) Publish(e events.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("realtime queue full, dropping event", "type", e.Type)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (p *RealtimePublisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		<-p.done
	})
}

func (p *RealtimePublisher) run() {
	defer close(p.done)
	for e := range p.queue {
		if err := p.inserter.Insert(p.table, p.row(e)); err != nil {
			p.logger.Error("failed to publish realtime event",
				"type", e.Type,
				"error", err,
			)
		}
	}
}

func (p *RealtimePublisher) row(e events.Event) EventRow {
	return EventRow{
		ID:        e.ID.String(),
		SessionID: p.sessionID.String(),
		Type:      string(e.Type),
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}
