package cli

import (
	"fmt"

	"github.com/memyselfandm/chronicle-sub000/internal/storage/sqlite"
)

// RunCleanup performs a one-shot retention pass against the database,
// returning the number of sessions removed. It opens its own store so
// it works whether or not the daemon is running (WAL allows both).
func RunCleanup(dbPath string, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("days must be positive, got %d", days)
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	n, err := store.CleanupOldData(days)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if err := store.CheckpointWAL(); err != nil {
		return n, fmt.Errorf("checkpoint after cleanup: %w", err)
	}
	return n, nil
}
