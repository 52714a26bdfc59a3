package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/llm"
	"github.com/xaenox/kontify-triage/internal/metrics"
	"github.com/xaenox/kontify-triage/internal/models"
)

type fakeClient struct {
	content string
	err     error
	delay   time.Duration
	got     []llm.Message
}

func (f *fakeClient) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	f.got = messages
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content, Model: "fake"}, nil
}

func TestGenerate_ParsesReply(t *testing.T) {
	client := &fakeClient{content: `{"answer":"Debes presentar tu declaración antes del 30 de abril.","caseLevel":"yellow"}`}
	g := NewGenerator(client, zap.NewNop())

	history := []models.Message{
		{Role: models.RoleAssistant, Content: "Hola"},
	}
	reply := g.Generate(context.Background(), Request{
		Message:       "¿Cuándo vence la anual?",
		History:       history,
		QuestionIndex: 1,
		MaxQuestions:  3,
	})

	assert.False(t, reply.Fallback)
	assert.Equal(t, models.SeverityYellow, reply.Level)
	assert.Equal(t, "Debes presentar tu declaración antes del 30 de abril.", reply.Content)

	require.Len(t, client.got, 3)
	assert.Equal(t, llm.RoleSystem, client.got[0].Role)
	assert.Equal(t, llm.RoleAssistant, client.got[1].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "¿Cuándo vence la anual?"}, client.got[2])
	assert.NotContains(t, client.got[0].Content, "última pregunta gratuita")
}

func TestGenerate_AcceptsCodeFence(t *testing.T) {
	client := &fakeClient{content: "```json\n{\"answer\":\"Sí\",\"caseLevel\":\"RED\"}\n```"}
	reply := NewGenerator(client, nil).Generate(context.Background(), Request{Message: "x"})

	assert.False(t, reply.Fallback)
	assert.Equal(t, models.SeverityRed, reply.Level)
	assert.Equal(t, "Sí", reply.Content)
}

func TestGenerate_LastQuestionNudge(t *testing.T) {
	client := &fakeClient{content: `{"answer":"ok","caseLevel":"green"}`}
	NewGenerator(client, nil).Generate(context.Background(), Request{
		Message:       "x",
		QuestionIndex: 3,
		MaxQuestions:  3,
		UserContext:   map[string]string{"regimen": "RESICO", "actividad": "diseño"},
	})

	require.NotEmpty(t, client.got)
	system := client.got[0].Content
	assert.Contains(t, system, "última pregunta gratuita del usuario (3 de 3)")
	assert.True(t, strings.Index(system, "- actividad: diseño") < strings.Index(system, "- regimen: RESICO"))
}

func TestGenerate_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		reason string
	}{
		{"nil client", nil, "credential"},
		{"missing credential", &fakeClient{err: llm.ErrMissingCredential}, "credential"},
		{"network error", &fakeClient{err: errors.New("connection reset")}, "request"},
		{"not json", &fakeClient{content: "Claro, aquí tienes tu respuesta"}, "parse"},
		{"empty answer", &fakeClient{content: `{"answer":"  ","caseLevel":"green"}`}, "parse"},
		{"unknown level", &fakeClient{content: `{"answer":"hola","caseLevel":"orange"}`}, "parse"},
		{"missing level", &fakeClient{content: `{"answer":"hola"}`}, "parse"},
		{"level not lower case", &fakeClient{content: `{"answer":"hola","caseLevel":"RED"}`}, "parse"},
		{"level with spaces", &fakeClient{content: `{"answer":"hola","caseLevel":" red "}`}, "parse"},
		{"wrong type", &fakeClient{content: `{"answer":42,"caseLevel":"red"}`}, "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.LLMFallbacks.WithLabelValues(tt.reason))

			reply := NewGenerator(tt.client, zap.NewNop()).Generate(context.Background(), Request{Message: "hola"})

			assert.True(t, reply.Fallback)
			assert.Equal(t, FallbackMessage, reply.Content)
			assert.Equal(t, models.SeverityGreen, reply.Level)
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.LLMFallbacks.WithLabelValues(tt.reason)))
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	client := &fakeClient{content: `{"answer":"tarde","caseLevel":"red"}`, delay: time.Second}
	g := NewGenerator(client, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	reply := g.Generate(context.Background(), Request{Message: "hola"})

	assert.True(t, reply.Fallback)
	assert.Equal(t, models.SeverityGreen, reply.Level)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1} "))
}
