// Package assistant produces the AI advisor's replies through an LLM
// delegate and never lets a delegate failure reach the caller.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/llm"
	"github.com/xaenox/kontify-triage/internal/metrics"
	"github.com/xaenox/kontify-triage/internal/models"
)

// FallbackMessage replaces the reply whenever the delegate fails.
const FallbackMessage = "Lo siento, en este momento no pude procesar tu consulta. " +
	"Por favor intenta de nuevo en unos minutos o déjanos tus datos para que un experto fiscal te contacte."

const (
	defaultTimeout      = 30 * time.Second
	defaultJurisdiction = "México (leyes y reglas del SAT)"
)

// Request is one question put to the advisor.
type Request struct {
	Message string
	// History holds the messages before Message, oldest first.
	History []models.Message
	// QuestionIndex is the 1-based number of this free question.
	QuestionIndex int
	MaxQuestions  int
	UserContext   map[string]string
}

// Reply is the advisor's answer and its case level.
type Reply struct {
	Content  string
	Level    models.SeverityLevel
	Fallback bool
}

// delegateReply is the only accepted shape of a delegate answer.
type delegateReply struct {
	Answer    string `json:"answer"`
	CaseLevel string `json:"caseLevel"`
}

type Generator struct {
	client       llm.Client
	logger       *zap.Logger
	timeout      time.Duration
	jurisdiction string
}

type Option func(*Generator)

// WithTimeout bounds each delegate round trip.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithJurisdiction(j string) Option {
	return func(g *Generator) {
		if strings.TrimSpace(j) != "" {
			g.jurisdiction = j
		}
	}
}

func NewGenerator(client llm.Client, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		client:       client,
		logger:       logger,
		timeout:      defaultTimeout,
		jurisdiction: defaultJurisdiction,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the delegate for an answer. It never returns an error: any
// failure yields FallbackMessage at level green.
func (g *Generator) Generate(ctx context.Context, req Request) Reply {
	if g.client == nil {
		return g.fallback("credential", llm.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: buildSystemPrompt(g.jurisdiction, req.QuestionIndex, req.MaxQuestions, req.UserContext),
	})
	for _, m := range req.History {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	start := time.Now()
	resp, err := g.client.Generate(ctx, messages)
	if err != nil {
		metrics.LLMLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, llm.ErrMissingCredential) {
			return g.fallback("credential", err)
		}
		return g.fallback("request", err)
	}
	metrics.LLMLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	reply, err := parseDelegateReply(resp.Content)
	if err != nil {
		g.logger.Error("Failed to parse assistant response",
			zap.Error(err),
			zap.String("response", resp.Content))
		return g.fallback("parse", err)
	}

	g.logger.Debug("Assistant reply",
		zap.String("model", resp.Model),
		zap.String("level", string(reply.Level)),
		zap.Int("question_index", req.QuestionIndex),
		zap.Int("total_tokens", resp.TotalTokens))
	return reply
}

func (g *Generator) fallback(reason string, err error) Reply {
	metrics.LLMFallbacks.WithLabelValues(reason).Inc()
	g.logger.Warn("Assistant fallback reply",
		zap.String("reason", reason),
		zap.Error(err))
	return Reply{Content: FallbackMessage, Level: models.SeverityGreen, Fallback: true}
}

func parseDelegateReply(raw string) (Reply, error) {
	var d delegateReply
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &d); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	answer := strings.TrimSpace(d.Answer)
	if answer == "" {
		return Reply{}, errors.New("reply has no answer")
	}
	level, err := models.ParseSeverity(d.CaseLevel)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Content: answer, Level: level}, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add even
// when asked not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
