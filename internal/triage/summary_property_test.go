package triage

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/xaenox/kontify-triage/internal/models"
)

// Property: detected specialties are never empty and never repeat.
func TestProperty_SpecialtiesNonEmptyAndUnique(t *testing.T) {
	b := NewBuilder()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		history := make([]models.Message, n)
		for i := range history {
			history[i] = models.Message{
				Role:    rapid.SampledFrom([]models.Role{models.RoleUser, models.RoleAssistant}).Draw(t, "role"),
				Content: rapid.String().Draw(t, "content"),
			}
		}
		level := rapid.SampledFrom([]models.SeverityLevel{models.SeverityGreen, models.SeverityYellow, models.SeverityRed}).Draw(t, "level")

		s := b.Build(history, level)
		if len(s.DetectedSpecialties) == 0 {
			t.Fatalf("empty specialties for %d messages", n)
		}
		seen := map[models.Specialty]bool{}
		for _, sp := range s.DetectedSpecialties {
			if seen[sp] {
				t.Fatalf("duplicate specialty %s", sp)
			}
			seen[sp] = true
		}
		if s.Urgency != level.Urgency() {
			t.Fatalf("urgency %s does not match level %s", s.Urgency, level)
		}
	})
}
