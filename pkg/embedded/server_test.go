package embedded

import (
	"context"
	"testing"
	"time"

	"github.com/memyselfandm/chronicle-sub000/client"
)

func TestEmbeddedRoundTrip(t *testing.T) {
	srv, err := Start(Config{AdminKey: "embedded-admin"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	api := srv.Client()

	sess, err := api.SaveSession(ctx, client.SessionRecord{
		SessionID:   "embedded-1",
		ProjectPath: "/home/dev/project",
	})
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	if !sess.OK || sess.ID == "" {
		t.Fatalf("session response %+v", sess)
	}

	ev, err := api.SaveEvent(ctx, client.EventRecord{
		SessionID: "embedded-1",
		EventType: "tool_use",
		ToolName:  "Bash",
	})
	if err != nil {
		t.Fatalf("save event: %v", err)
	}
	if ev.ID == 0 {
		t.Fatalf("event response %+v", ev)
	}

	health, err := api.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "ok" || health.Backend != "local" {
		t.Fatalf("health %+v", health)
	}

	events, err := api.ListEvents(ctx, client.ListEventsOptions{SessionID: "embedded-1"})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].ToolName != "Bash" {
		t.Fatalf("events %+v", events)
	}
}

func TestEmbeddedUsesSuppliedDBPath(t *testing.T) {
	db := t.TempDir() + "/capture.db"
	srv, err := Start(Config{DBPath: db})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := srv.Client().SaveSession(ctx, client.SessionRecord{SessionID: "persist-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The database must survive the instance.
	again, err := Start(Config{DBPath: db})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer again.Stop()
	sess, err := again.Client().GetSession(ctx, "persist-1")
	if err != nil {
		t.Fatalf("session did not persist: %v", err)
	}
	if sess.ExternalSessionID != "persist-1" {
		t.Fatalf("wrong session %+v", sess)
	}
}
