package model

import "context"

// Writer defines a generic interface for persisting or publishing the
// result of a correlation run.
type Writer interface {
	// Name identifies the writer in logs.
	Name() string

	// Write takes the final snapshot and persists it. The snapshot must be
	// treated as read-only: several writers receive it concurrently.
	Write(ctx context.Context, snapshot *Snapshot) error

	// Close releases connections or files held by the writer.
	Close() error
}
