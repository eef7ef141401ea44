package domain

import (
	"context"
	"time"
)

// EventType names an engine event.
type EventType string

const (
	EventCyclePlaced   EventType = "cycle_placed"
	EventCyclePartial  EventType = "cycle_partial"
	EventOrderFilled   EventType = "order_filled"
	EventOrderCanceled EventType = "order_canceled"
	EventPlanPromoted  EventType = "plan_promoted"
	EventTickFailed    EventType = "tick_failed"
)

// Event is emitted by the engine for external consumers (stream, notifier).
type Event struct {
	Type    EventType         `json:"type"`
	Cycle   string            `json:"cycle"`
	GroupID string            `json:"group_id,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

// EventSink receives engine events. Implementations must not block the
// caller for long; delivery is best-effort.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}
