package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditStore persists the event log durably.
type AuditStore interface {
	Insert(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
}
