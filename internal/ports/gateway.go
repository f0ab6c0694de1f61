package ports

import (
	"context"

	"marginbot/internal/domain"
)

// SnapshotGateway persists and restores the full system state: every
// user with their ledger balance and ordered positions, closed ones
// included. Crash consistency of the underlying store is the
// implementation's concern, not the core's.
type SnapshotGateway interface {
	// Load reads the last saved snapshot. An empty store yields an
	// empty snapshot, not an error.
	Load(ctx context.Context) (*domain.Snapshot, error)
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, snap *domain.Snapshot) error
}
