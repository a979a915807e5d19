// Package events publishes loan lifecycle events to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	LoanCreated       Type = "loan.created"
	LoanUpdated       Type = "loan.updated"
	LoanDeleted       Type = "loan.deleted"
	LoanDecided       Type = "loan.decided"
	LoanStatusChanged Type = "loan.status_changed"
	RepaymentPosted   Type = "repayment.posted"
)

// Event is the envelope written to the bus. Key is the partitioning key; all
// events for one loan share it so consumers see them in order.
type Event struct {
	Type       Type                   `json:"type"`
	Key        string                 `json:"key"`
	Actor      string                 `json:"actor,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// LogPublisher writes events to the structured log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		p.logger.Info("domain event",
			zap.String("type", string(e.Type)),
			zap.String("key", e.Key),
			zap.String("actor", e.Actor),
			zap.Time("occurred_at", e.OccurredAt),
			zap.Any("data", e.Data),
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
