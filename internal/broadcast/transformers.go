package broadcast

import (
	"regexp"

	"github.com/memyselfandm/chronicle-sub000/internal/core"
)

// CategoryTagger stamps each envelope with a coarse category so
// dashboards can bucket the stream without knowing every event type.
type CategoryTagger struct{}

func NewCategoryTagger() *CategoryTagger { return &CategoryTagger{} }

func (t *CategoryTagger) Name() string { return "category" }

func (t *CategoryTagger) Transform(env core.Envelope) (core.Envelope, error) {
	switch env.EventType {
	case core.EventSessionStart, core.EventSessionEnd:
		env.Category = "lifecycle"
	case core.EventToolUse:
		env.Category = "tool"
	case core.EventUserPrompt:
		env.Category = "prompt"
	default:
		env.Category = "other"
	}
	return env, nil
}

// SecretRedactor scrubs secret-looking substrings from metadata string
// values before they reach any subscriber. Hook payloads routinely
// carry command lines and prompt text, which is exactly where leaked
// tokens show up.
type SecretRedactor struct {
	secretLike []*regexp.Regexp
}

func NewSecretRedactor() *SecretRedactor {
	return &SecretRedactor{
		secretLike: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bghp_[A-Za-z0-9]{20,}\b`),
			regexp.MustCompile(`(?i)\bgithub_pat_[A-Za-z0-9_]{20,}\b`),
			regexp.MustCompile(`(?i)\bAKIA[0-9A-Z]{16}\b`),
			regexp.MustCompile(`(?i)\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
			regexp.MustCompile(`(?i)\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
		},
	}
}

func (t *SecretRedactor) Name() string { return "redact" }

func (t *SecretRedactor) Transform(env core.Envelope) (core.Envelope, error) {
	if len(env.Data) == 0 {
		return env, nil
	}
	clean := make(core.Metadata, len(env.Data))
	for k, v := range env.Data {
		clean[k] = t.redactValue(v)
	}
	env.Data = clean
	return env, nil
}

// redactValue walks nested maps and slices; only string leaves are
// rewritten.
func (t *SecretRedactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return t.redactText(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = t.redactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = t.redactValue(inner)
		}
		return out
	default:
		return v
	}
}

func (t *SecretRedactor) redactText(s string) string {
	out := s
	for _, re := range t.secretLike {
		out = re.ReplaceAllString(out, "<redacted>")
	}
	return out
}
