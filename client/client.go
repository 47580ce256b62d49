// Package client provides a Go client for the chronicle daemon: an HTTP
// client for recording and querying, and a WebSocket subscriber for the
// live event stream. Hook scripts and the daemon's own remote backend
// both go through this package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	APIKey  string
}

type Option func(*Client)

// WithAPIKey sets the key sent as a bearer token. Only destructive admin
// routes require it.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = strings.TrimSpace(key)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.HTTP.Timeout = d
	}
}

// SessionRecord is the ingest payload for POST /api/sessions. SessionID
// is the caller's own identifier (for Claude Code hooks, the session id
// from the hook payload).
type SessionRecord struct {
	SessionID   string         `json:"session_id"`
	ProjectPath string         `json:"project_path,omitempty"`
	GitBranch   string         `json:"git_branch,omitempty"`
	StartTime   time.Time      `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EventRecord is the ingest payload for POST /api/events.
type EventRecord struct {
	SessionID  string         `json:"session_id"`
	EventType  string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
}

// Session mirrors the server's stored session shape.
type Session struct {
	ID                string         `json:"id"`
	ExternalSessionID string         `json:"external_session_id"`
	ProjectPath       string         `json:"project_path,omitempty"`
	GitBranch         string         `json:"git_branch,omitempty"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           *time.Time     `json:"end_time,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	EventCount        int64          `json:"event_count"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Event mirrors the server's stored event shape.
type Event struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	EventType  string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type SaveSessionResponse struct {
	OK        bool   `json:"ok"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

type SaveEventResponse struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

// HealthStatus is the GET /api/health response.
type HealthStatus struct {
	Status         string  `json:"status"`
	SchemaVersion  int     `json:"schema_version"`
	Backend        string  `json:"backend"`
	CircuitBreaker string  `json:"circuit_breaker"`
	Connections    int     `json:"connections"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// MetricsSummary is the GET /api/metrics/summary response.
type MetricsSummary struct {
	Window            string      `json:"window"`
	TotalSessions     int64       `json:"total_sessions"`
	ActiveSessions    int64       `json:"active_sessions"`
	TotalEvents       int64       `json:"total_events"`
	EventsByType      []TypeCount `json:"events_by_type"`
	TopTools          []NameCount `json:"top_tools"`
	TopProjects       []NameCount `json:"top_projects"`
	AvgSessionSeconds float64     `json:"avg_session_seconds"`
	EventsPerHour     []HourCount `json:"events_per_hour"`
	GeneratedAt       time.Time   `json:"generated_at"`
}

// ListSessionsOptions narrows GET /api/sessions.
type ListSessionsOptions struct {
	ActiveOnly  bool
	ProjectPath string
	Limit       int
	Offset      int
}

// ListEventsOptions narrows GET /api/events.
type ListEventsOptions struct {
	SessionID string
	EventType string
	ToolName  string
	Limit     int
	Offset    int
	OrderBy   string // "field:direction", e.g. "id:asc"
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveSession records (or updates) a session. Duplicate in the response
// means the external id was already known.
func (c *Client) SaveSession(ctx context.Context, rec SessionRecord) (SaveSessionResponse, error) {
	resp, err := c.postJSON(ctx, "/api/sessions", rec)
	if err != nil {
		return SaveSessionResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SaveSessionResponse{}, apiError("save session", resp)
	}
	var out SaveSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SaveSessionResponse{}, err
	}
	return out, nil
}

// SaveEvent records a single event.
func (c *Client) SaveEvent(ctx context.Context, rec EventRecord) (SaveEventResponse, error) {
	resp, err := c.postJSON(ctx, "/api/events", rec)
	if err != nil {
		return SaveEventResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SaveEventResponse{}, apiError("save event", resp)
	}
	var out SaveEventResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SaveEventResponse{}, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	resp, err := c.get(ctx, "/api/health")
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, apiError("health", resp)
	}
	var out HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HealthStatus{}, err
	}
	return out, nil
}

// GetSession accepts either the internal id or the caller's external id.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	resp, err := c.get(ctx, "/api/sessions/"+url.PathEscape(id))
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Session{}, apiError("get session", resp)
	}
	var out Session
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, err
	}
	return out, nil
}

func (c *Client) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]Session, error) {
	values := url.Values{}
	if opts.ActiveOnly {
		values.Set("active", "true")
	}
	if opts.ProjectPath != "" {
		values.Set("project_path", opts.ProjectPath)
	}
	addPaging(values, opts.Limit, opts.Offset)

	resp, err := c.get(ctx, "/api/sessions?"+values.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list sessions", resp)
	}
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) SessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	endpoint := "/api/sessions/" + url.PathEscape(sessionID) + "/events"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("session events", resp)
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) ListEvents(ctx context.Context, opts ListEventsOptions) ([]Event, error) {
	values := url.Values{}
	if opts.SessionID != "" {
		values.Set("session_id", opts.SessionID)
	}
	if opts.EventType != "" {
		values.Set("event_type", opts.EventType)
	}
	if opts.ToolName != "" {
		values.Set("tool_name", opts.ToolName)
	}
	if opts.OrderBy != "" {
		values.Set("order_by", opts.OrderBy)
	}
	addPaging(values, opts.Limit, opts.Offset)

	resp, err := c.get(ctx, "/api/events?"+values.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list events", resp)
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) MetricsSummary(ctx context.Context) (MetricsSummary, error) {
	resp, err := c.get(ctx, "/api/metrics/summary")
	if err != nil {
		return MetricsSummary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return MetricsSummary{}, apiError("metrics", resp)
	}
	var out MetricsSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MetricsSummary{}, err
	}
	return out, nil
}

// DeleteEvent removes one event. Requires the admin key.
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	endpoint := "/api/admin/events/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+endpoint, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError("delete event", resp)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	return c.HTTP.Do(req)
}

func (c *Client) applyHeaders(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func addPaging(values url.Values, limit, offset int) {
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
}

// apiError surfaces the server's {"error": "..."} body when present.
func apiError(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", op, body.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s failed: status %d", op, resp.StatusCode)
}
