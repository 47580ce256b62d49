package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

// fakeTail serves scripted event batches above a cursor.
type fakeTail struct {
	mu      sync.Mutex
	events  []core.Event
	latest  int64
	tailErr error
	reads   int
}

func (f *fakeTail) LatestEventID() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeTail) EventsSince(cursor int64, limit int) ([]core.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.tailErr != nil {
		return nil, f.tailErr
	}
	var out []core.Event
	for _, ev := range f.events {
		if ev.ID > cursor {
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeTail) append(ev core.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeTail) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tailErr = err
}

// capturePub records published envelopes.
type capturePub struct {
	mu   sync.Mutex
	envs []core.Envelope
}

func (p *capturePub) Publish(env core.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
}

func (p *capturePub) snapshot() []core.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Envelope, len(p.envs))
	copy(out, p.envs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestBroadcasterSkipsPreexistingEvents(t *testing.T) {
	tail := &fakeTail{latest: 3}
	tail.append(core.Event{ID: 1, SessionID: "s", EventType: core.EventToolUse})
	tail.append(core.Event{ID: 2, SessionID: "s", EventType: core.EventToolUse})
	tail.append(core.Event{ID: 3, SessionID: "s", EventType: core.EventToolUse})
	pub := &capturePub{}

	b := New(tail, pub, WithInterval(5*time.Millisecond))
	b.Start(context.Background())
	defer b.Stop()

	tail.append(core.Event{ID: 4, SessionID: "s", EventType: core.EventUserPrompt})

	waitFor(t, func() bool { return len(pub.snapshot()) >= 1 })
	envs := pub.snapshot()
	if len(envs) != 1 || envs[0].ID != 4 {
		t.Fatalf("expected only event 4, got %+v", envs)
	}
}

func TestBroadcasterAdvancesCursor(t *testing.T) {
	tail := &fakeTail{}
	pub := &capturePub{}
	b := New(tail, pub, WithInterval(5*time.Millisecond))
	b.Start(context.Background())
	defer b.Stop()

	tail.append(core.Event{ID: 1, SessionID: "s", EventType: core.EventToolUse})
	waitFor(t, func() bool { return len(pub.snapshot()) == 1 })

	tail.append(core.Event{ID: 2, SessionID: "s", EventType: core.EventToolUse})
	waitFor(t, func() bool { return len(pub.snapshot()) == 2 })

	envs := pub.snapshot()
	if envs[0].ID != 1 || envs[1].ID != 2 {
		t.Fatalf("events delivered out of order or duplicated: %+v", envs)
	}
}

func TestBroadcasterRecoversFromTailErrors(t *testing.T) {
	tail := &fakeTail{}
	tail.setErr(errors.New("database is locked"))
	pub := &capturePub{}
	b := New(tail, pub, WithInterval(5*time.Millisecond))
	b.Start(context.Background())
	defer b.Stop()

	waitFor(t, func() bool {
		tail.mu.Lock()
		defer tail.mu.Unlock()
		return tail.reads >= 2
	})

	tail.setErr(nil)
	tail.append(core.Event{ID: 1, SessionID: "s", EventType: core.EventToolUse})
	waitFor(t, func() bool { return len(pub.snapshot()) == 1 })
}

func TestBroadcasterFilterDropsEvent(t *testing.T) {
	tail := &fakeTail{}
	pub := &capturePub{}
	b := New(tail, pub,
		WithInterval(5*time.Millisecond),
		WithFilters(NewTypeFilter(core.EventToolUse)),
	)
	b.Start(context.Background())
	defer b.Stop()

	tail.append(core.Event{ID: 1, SessionID: "s", EventType: core.EventNotification})
	tail.append(core.Event{ID: 2, SessionID: "s", EventType: core.EventToolUse})

	waitFor(t, func() bool { return len(pub.snapshot()) >= 1 })
	envs := pub.snapshot()
	if len(envs) != 1 || envs[0].ID != 2 {
		t.Fatalf("filter did not drop notification: %+v", envs)
	}
}

type failingStage struct{ panics bool }

func (s failingStage) Name() string { return "failing" }

func (s failingStage) Allow(core.Envelope) (bool, error) {
	if s.panics {
		panic("boom")
	}
	return false, errors.New("stage broken")
}

func (s failingStage) Transform(env core.Envelope) (core.Envelope, error) {
	if s.panics {
		panic("boom")
	}
	return core.Envelope{}, errors.New("stage broken")
}

func TestBroadcasterFailingStageDoesNotDropEvent(t *testing.T) {
	for _, tc := range []struct {
		name   string
		panics bool
	}{
		{"error", false},
		{"panic", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tail := &fakeTail{}
			pub := &capturePub{}
			b := New(tail, pub,
				WithInterval(5*time.Millisecond),
				WithFilters(failingStage{panics: tc.panics}),
				WithTransformers(failingStage{panics: tc.panics}),
			)
			b.Start(context.Background())
			defer b.Stop()

			tail.append(core.Event{ID: 1, SessionID: "s", EventType: core.EventToolUse, Metadata: core.Metadata{"k": "v"}})
			waitFor(t, func() bool { return len(pub.snapshot()) == 1 })

			env := pub.snapshot()[0]
			if env.ID != 1 {
				t.Fatalf("wrong event delivered: %+v", env)
			}
			if env.Data["k"] != "v" {
				t.Fatalf("failing transformer mutated envelope: %+v", env)
			}
		})
	}
}

func TestBroadcasterTransformersRunInOrder(t *testing.T) {
	tail := &fakeTail{}
	pub := &capturePub{}
	b := New(tail, pub,
		WithInterval(5*time.Millisecond),
		WithTransformers(NewCategoryTagger(), NewSecretRedactor()),
	)
	b.Start(context.Background())
	defer b.Stop()

	tail.append(core.Event{
		ID:        1,
		SessionID: "s",
		EventType: core.EventToolUse,
		ToolName:  "Bash",
		Metadata:  core.Metadata{"command": "git push https://ghp_abcdefghijklmnopqrstuv123456@github.com/x/y"},
	})
	waitFor(t, func() bool { return len(pub.snapshot()) == 1 })

	env := pub.snapshot()[0]
	if env.Category != "tool" {
		t.Fatalf("category = %q, want tool", env.Category)
	}
	cmd, _ := env.Data["command"].(string)
	if cmd != "git push https://<redacted>@github.com/x/y" {
		t.Fatalf("token not redacted: %q", cmd)
	}
}

func TestBroadcasterStopWaitsForLoop(t *testing.T) {
	tail := &fakeTail{}
	b := New(tail, &capturePub{}, WithInterval(5*time.Millisecond))
	b.Start(context.Background())

	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
