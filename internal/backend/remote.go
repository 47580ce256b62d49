package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/memyselfandm/chronicle-sub000/client"
	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

// Remote persists through a hosted chronicle HTTP API. Timeouts are
// short: the selector treats a slow remote as a failed one and falls
// back to local rather than stalling hook scripts.
type Remote struct {
	api *client.Client
}

func NewRemote(baseURL, apiKey string) *Remote {
	return &Remote{
		api: client.New(baseURL,
			client.WithAPIKey(apiKey),
			client.WithTimeout(5*time.Second),
		),
	}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) SaveSession(ctx context.Context, rec core.SessionRecord) (core.Session, error) {
	if err := rec.Validate(); err != nil {
		return core.Session{}, err
	}
	resp, err := r.api.SaveSession(ctx, client.SessionRecord{
		SessionID:   rec.SessionID,
		ProjectPath: rec.ProjectPath,
		GitBranch:   rec.GitBranch,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
		Metadata:    rec.Metadata,
	})
	if err != nil {
		return core.Session{}, fmt.Errorf("remote: %w", err)
	}
	return core.Session{
		ID:                resp.ID,
		ExternalSessionID: rec.SessionID,
		ProjectPath:       rec.ProjectPath,
		GitBranch:         rec.GitBranch,
		StartTime:         rec.StartTime,
		EndTime:           rec.EndTime,
		Metadata:          rec.Metadata,
	}, nil
}

func (r *Remote) SaveEvent(ctx context.Context, rec core.EventRecord) (core.Event, error) {
	if err := rec.Validate(); err != nil {
		return core.Event{}, err
	}
	eventType, _ := core.NormalizeEventType(rec.EventType)
	resp, err := r.api.SaveEvent(ctx, client.EventRecord{
		SessionID:  rec.SessionID,
		EventType:  rec.EventType,
		Timestamp:  rec.Timestamp,
		Data:       rec.Data,
		ToolName:   rec.ToolName,
		DurationMS: rec.DurationMS,
	})
	if err != nil {
		return core.Event{}, fmt.Errorf("remote: %w", err)
	}
	return core.Event{
		ID:         resp.ID,
		SessionID:  CanonicalSessionID(rec.SessionID),
		EventType:  eventType,
		Timestamp:  rec.Timestamp,
		Metadata:   rec.Data,
		ToolName:   rec.ToolName,
		DurationMS: rec.DurationMS,
	}, nil
}

func (r *Remote) Health(ctx context.Context) error {
	status, err := r.api.Health(ctx)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if status.Status != "ok" {
		return fmt.Errorf("remote: unhealthy status %q", status.Status)
	}
	return nil
}

func (r *Remote) Close() error {
	r.api.HTTP.CloseIdleConnections()
	return nil
}
