// Package broadcast tails the event store and pushes new events through
// a filter/transformer pipeline into the connection hub. The store is
// the source of truth: the broadcaster never sees an event that was not
// first persisted.
package broadcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

const (
	defaultInterval = 100 * time.Millisecond
	defaultBatch    = 100
	maxErrBackoff   = 5 * time.Second
)

// Tail is the slice of the store the broadcaster reads.
type Tail interface {
	LatestEventID() (int64, error)
	EventsSince(cursor int64, limit int) ([]core.Event, error)
}

// Publisher receives envelopes that survived the pipeline. The hub
// implements this; Publish must never block.
type Publisher interface {
	Publish(env core.Envelope)
}

// Filter decides whether an envelope is pushed. An error fails the
// stage, not the event.
type Filter interface {
	Name() string
	Allow(env core.Envelope) (bool, error)
}

// Transformer rewrites an envelope before delivery.
type Transformer interface {
	Name() string
	Transform(env core.Envelope) (core.Envelope, error)
}

// Broadcaster polls the store tail on a short interval and feeds the
// publisher. The cursor starts at the current latest id so a daemon
// restart does not replay history at connected dashboards.
type Broadcaster struct {
	tail         Tail
	pub          Publisher
	interval     time.Duration
	batch        int
	filters      []Filter
	transformers []Transformer

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.batch = n
		}
	}
}

func WithFilters(fs ...Filter) Option {
	return func(b *Broadcaster) { b.filters = append(b.filters, fs...) }
}

func WithTransformers(ts ...Transformer) Option {
	return func(b *Broadcaster) { b.transformers = append(b.transformers, ts...) }
}

func New(tail Tail, pub Publisher, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		tail:     tail,
		pub:      pub,
		interval: defaultInterval,
		batch:    defaultBatch,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the poll loop.
func (b *Broadcaster) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	go func() {
		defer close(b.done)

		cursor, err := b.tail.LatestEventID()
		if err != nil {
			// Degraded start: live events flow once the store recovers,
			// at the cost of replaying whatever landed meanwhile.
			log.Printf("broadcast: init cursor: %v", err)
			cursor = 0
		}

		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		errBackoff := b.interval

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			events, err := b.tail.EventsSince(cursor, b.batch)
			if err != nil {
				log.Printf("broadcast: tail read: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(errBackoff):
				}
				errBackoff *= 2
				if errBackoff > maxErrBackoff {
					errBackoff = maxErrBackoff
				}
				continue
			}
			errBackoff = b.interval

			for _, ev := range events {
				b.dispatch(core.NewEnvelope(ev))
			}
			if len(events) > 0 {
				// Advance once the batch is handed off; delivery to any
				// one subscriber is not the cursor's concern.
				cursor = events[len(events)-1].ID
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	<-b.done
}

// dispatch runs one envelope through the pipeline. A failing or
// panicking stage is skipped; the event still flows.
func (b *Broadcaster) dispatch(env core.Envelope) {
	for _, f := range b.filters {
		allow, err := runFilter(f, env)
		if err != nil {
			log.Printf("broadcast: filter %s: %v", f.Name(), err)
			continue
		}
		if !allow {
			return
		}
	}
	for _, tr := range b.transformers {
		next, err := runTransformer(tr, env)
		if err != nil {
			log.Printf("broadcast: transformer %s: %v", tr.Name(), err)
			continue
		}
		env = next
	}
	b.pub.Publish(env)
}

func runFilter(f Filter, env core.Envelope) (allow bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			allow, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Allow(env)
}

func runTransformer(tr Transformer, env core.Envelope) (out core.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = env, fmt.Errorf("panic: %v", r)
		}
	}()
	return tr.Transform(env)
}
