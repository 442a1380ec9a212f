// Package database holds deadline helpers shared by the persistent key-value backends.
package database

import (
	"context"
	"time"
)

const (
	// ReadTimeout bounds single-key lookups.
	ReadTimeout = 5 * time.Second

	// WriteTimeout bounds upserts and deletes.
	WriteTimeout = 10 * time.Second

	// ScanTimeout bounds prefix listings, which may walk the whole keyspace.
	ScanTimeout = 30 * time.Second
)

// ReadContext derives a context for a single-key read.
// A parent deadline that is already tighter is kept.
func ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withBound(parent, ReadTimeout)
}

func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withBound(parent, WriteTimeout)
}

func ScanContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withBound(parent, ScanTimeout)
}

func withBound(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok && time.Until(deadline) <= d {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
