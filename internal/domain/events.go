package domain

import (
	"context"
	"time"
)

type ActionEventKind string

const (
	EventActionCreate  ActionEventKind = "action.create"
	EventActionUpdate  ActionEventKind = "action.update"
	EventActionExecute ActionEventKind = "action.execute"
)

// ActionEvent is the outbound notification emitted when a handler's
// business effect is (or may be) carried out by an external subscriber.
// Delivery confirmation is out of scope; publication is fire-and-forget
// except for execute actions, where the event is the side effect itself.
type ActionEvent struct {
	Kind       ActionEventKind
	AuditID    string
	UserID     string
	Collection string
	RecordID   string
	Name       string
	Payload    map[string]any
	OccurredAt time.Time
}

type EventPublisher interface {
	Publish(ctx context.Context, event ActionEvent) error
}
