package events

import (
	"context"
	"log"

	"steward/internal/domain"
)

// LogPublisher stands in when no broker is configured; events are written
// to the process log so nothing is silently dropped during development.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event domain.ActionEvent) error {
	log.Printf("event %s audit=%s collection=%s record=%s", event.Kind, event.AuditID, event.Collection, event.RecordID)
	return nil
}
