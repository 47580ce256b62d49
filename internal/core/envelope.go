package core

import "time"

// Envelope is the JSON shape pushed to WebSocket and SSE subscribers.
// Data carries the event's open metadata; Category is stamped by the
// broadcast pipeline and absent on raw store reads.
type Envelope struct {
	ID        int64     `json:"id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	ToolName  string    `json:"tool_name,omitempty"`
	Data      Metadata  `json:"data"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEnvelope projects a stored event into its wire shape.
func NewEnvelope(ev Event) Envelope {
	data := ev.Metadata
	if data == nil {
		data = Metadata{}
	}
	return Envelope{
		ID:        ev.ID,
		EventType: ev.EventType,
		Timestamp: ev.Timestamp,
		SessionID: ev.SessionID,
		ToolName:  ev.ToolName,
		Data:      data,
		CreatedAt: ev.CreatedAt,
	}
}
