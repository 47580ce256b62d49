package sqlite

import (
	"context"
	"log"
	"time"
)

// maintainable is the slice of the store the maintainer needs; both
// *Store and *ResilientStore satisfy it.
type maintainable interface {
	CheckpointWAL() error
	CleanupOldData(retentionDays int) (int64, error)
}

// Maintainer runs the background housekeeping loops: periodic WAL
// checkpoints so the -wal file does not grow without bound under a
// steady event stream, and a daily retention sweep of old terminated
// sessions.
type Maintainer struct {
	store              maintainable
	checkpointInterval time.Duration
	retentionDays      int
	cancel             context.CancelFunc
	done               chan struct{}
}

// NewMaintainer creates a Maintainer. Call Start() to begin. A
// retentionDays of zero disables the retention sweep; the checkpoint
// loop always runs.
func NewMaintainer(store maintainable, checkpointInterval time.Duration, retentionDays int) *Maintainer {
	if checkpointInterval <= 0 {
		checkpointInterval = 5 * time.Minute
	}
	return &Maintainer{
		store:              store,
		checkpointInterval: checkpointInterval,
		retentionDays:      retentionDays,
		done:               make(chan struct{}),
	}
}

// Start launches the background maintenance goroutine.
func (m *Maintainer) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.done)

		checkpoint := time.NewTicker(m.checkpointInterval)
		defer checkpoint.Stop()
		retention := time.NewTicker(24 * time.Hour)
		defer retention.Stop()

		// Startup sweep so a daemon that is restarted daily still
		// enforces retention.
		m.runRetention()

		for {
			select {
			case <-ctx.Done():
				return
			case <-checkpoint.C:
				if err := m.store.CheckpointWAL(); err != nil {
					log.Printf("maintenance: wal checkpoint: %v", err)
				}
			case <-retention.C:
				m.runRetention()
			}
		}
	}()
}

// Stop cancels the maintenance goroutine and waits for it to finish.
func (m *Maintainer) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

func (m *Maintainer) runRetention() {
	if m.retentionDays <= 0 {
		return
	}
	n, err := m.store.CleanupOldData(m.retentionDays)
	if err != nil {
		log.Printf("maintenance: retention sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("maintenance: removed %d session(s) past %d-day retention", n, m.retentionDays)
	}
}
