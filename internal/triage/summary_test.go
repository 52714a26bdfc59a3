package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/kontify-triage/internal/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(WithClock(func() time.Time { return fixedNow }))
	history := []models.Message{
		msg(models.RoleAssistant, "¡Hola! Soy tu asistente fiscal."),
		msg(models.RoleUser, "Me llegó un requerimiento por mi declaración anual"),
		msg(models.RoleAssistant, "Te recomiendo revisar el plazo."),
		msg(models.RoleUser, "También tengo dudas de nómina"),
	}

	s := b.Build(history, models.SeverityRed)

	assert.Equal(t, models.SeverityRed, s.Level)
	assert.Equal(t, models.UrgencyHigh, s.Urgency)
	assert.Equal(t, "También tengo dudas de nómina", s.UserQuery)
	assert.Equal(t, fixedNow, s.GeneratedAt)
	assert.Equal(t, []models.Specialty{
		models.SpecialtyAuditDefense,
		models.SpecialtyAnnualFiling,
		models.SpecialtyPayroll,
	}, s.DetectedSpecialties)
	assert.Contains(t, s.ConversationContext, "user: Me llegó un requerimiento por mi declaración anual")
	assert.Contains(t, s.ConversationContext, "assistant: ¡Hola! Soy tu asistente fiscal.")
}

func TestBuilder_Build_EmptyHistory(t *testing.T) {
	s := NewBuilder().Build(nil, models.SeverityGreen)

	require.Len(t, s.DetectedSpecialties, 1)
	assert.Equal(t, models.SpecialtyGeneralAdvice, s.DetectedSpecialties[0])
	assert.Empty(t, s.UserQuery)
	assert.Empty(t, s.ConversationContext)
	assert.Equal(t, models.UrgencyLow, s.Urgency)
	assert.False(t, s.GeneratedAt.IsZero())
}

func TestBuilder_Build_NoTopicMatch(t *testing.T) {
	s := NewBuilder().Build([]models.Message{msg(models.RoleUser, "hola, buenas tardes")}, models.SeverityYellow)

	assert.Equal(t, []models.Specialty{models.SpecialtyGeneralAdvice}, s.DetectedSpecialties)
	assert.Equal(t, models.UrgencyMedium, s.Urgency)
	assert.Equal(t, "hola, buenas tardes", s.UserQuery)
}

func TestBuilder_Build_InvalidLevelFallsBackToGreen(t *testing.T) {
	s := NewBuilder().Build(nil, models.SeverityLevel("purple"))
	assert.Equal(t, models.SeverityGreen, s.Level)
	assert.Equal(t, models.UrgencyLow, s.Urgency)
}

func TestBuilder_Build_NoDuplicateTags(t *testing.T) {
	topics := []Topic{
		{Specialty: models.SpecialtyVAT, Keywords: []string{"iva"}},
		{Specialty: models.SpecialtyVAT, Keywords: []string{"isr"}},
	}
	s := NewBuilder(WithTopics(topics)).Build([]models.Message{msg(models.RoleUser, "iva e isr")}, models.SeverityGreen)
	assert.Equal(t, []models.Specialty{models.SpecialtyVAT}, s.DetectedSpecialties)
}

func TestLastUserQuery_OnlyAssistant(t *testing.T) {
	assert.Empty(t, LastUserQuery([]models.Message{msg(models.RoleAssistant, "hola")}))
}
