// Package triage turns a classified conversation into a CaseSummary for
// the expert lead funnel.
package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/kontify-triage/internal/models"
)

// Builder produces CaseSummary values. The zero value is not usable; use
// NewBuilder.
type Builder struct {
	topics []Topic
	now    func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithTopics replaces the default topic groups.
func WithTopics(topics []Topic) Option {
	return func(b *Builder) { b.topics = topics }
}

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		topics: DefaultTopics,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build never fails: an empty history still yields a summary carrying the
// general consulting tag and an empty user query.
func (b *Builder) Build(history []models.Message, level models.SeverityLevel) models.CaseSummary {
	if !level.Valid() {
		level = models.SeverityGreen
	}
	transcript := Transcript(history)

	return models.CaseSummary{
		Level:               level,
		DetectedSpecialties: b.detectSpecialties(strings.ToLower(transcript)),
		UserQuery:           LastUserQuery(history),
		ConversationContext: transcript,
		Urgency:             level.Urgency(),
		GeneratedAt:         b.now(),
	}
}

func (b *Builder) detectSpecialties(text string) []models.Specialty {
	seen := make(map[models.Specialty]struct{})
	var out []models.Specialty
	for _, topic := range b.topics {
		if _, dup := seen[topic.Specialty]; dup {
			continue
		}
		for _, keyword := range topic.Keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				seen[topic.Specialty] = struct{}{}
				out = append(out, topic.Specialty)
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, models.SpecialtyGeneralAdvice)
	}
	return out
}

// LastUserQuery returns the content of the most recent user message.
func LastUserQuery(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// Transcript renders the conversation one "role: content" line per message.
func Transcript(history []models.Message) string {
	var sb strings.Builder
	for i, m := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", m.Role, m.Content)
	}
	return sb.String()
}
