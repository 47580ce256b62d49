package broadcast

import (
	"fmt"
	"time"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
	"github.com/memyselfandm/chronicle-sub000/internal/pattern"
)

// TypeFilter allows only the listed event types. An empty allowlist
// allows everything.
type TypeFilter struct {
	allowed map[core.EventType]bool
}

func NewTypeFilter(types ...core.EventType) *TypeFilter {
	f := &TypeFilter{allowed: make(map[core.EventType]bool, len(types))}
	for _, t := range types {
		f.allowed[t] = true
	}
	return f
}

func (f *TypeFilter) Name() string { return "event_type" }

func (f *TypeFilter) Allow(env core.Envelope) (bool, error) {
	if len(f.allowed) == 0 {
		return true, nil
	}
	return f.allowed[env.EventType], nil
}

// MaxAgeFilter drops events whose timestamp is older than the cutoff,
// keeping a lagging tail read from flooding dashboards with stale rows.
type MaxAgeFilter struct {
	maxAge time.Duration
	now    func() time.Time
}

func NewMaxAgeFilter(maxAge time.Duration) *MaxAgeFilter {
	return &MaxAgeFilter{maxAge: maxAge, now: time.Now}
}

func (f *MaxAgeFilter) Name() string { return "max_age" }

func (f *MaxAgeFilter) Allow(env core.Envelope) (bool, error) {
	if f.maxAge <= 0 {
		return true, nil
	}
	return f.now().Sub(env.Timestamp) <= f.maxAge, nil
}

// ToolFilter allows events whose tool name matches a glob pattern.
// Events without a tool name always pass; the filter narrows tool
// traffic, it does not hide the rest of the stream.
type ToolFilter struct {
	glob string
}

func NewToolFilter(glob string) (*ToolFilter, error) {
	if err := pattern.Validate(glob); err != nil {
		return nil, fmt.Errorf("tool filter: %w", err)
	}
	return &ToolFilter{glob: glob}, nil
}

func (f *ToolFilter) Name() string { return "tool_name" }

func (f *ToolFilter) Allow(env core.Envelope) (bool, error) {
	if env.ToolName == "" {
		return true, nil
	}
	return pattern.Match(f.glob, env.ToolName)
}
