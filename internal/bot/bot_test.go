package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/kontify-triage/internal/assistant"
	"github.com/xaenox/kontify-triage/internal/leads"
	"github.com/xaenox/kontify-triage/internal/llm"
	"github.com/xaenox/kontify-triage/internal/session"
	"github.com/xaenox/kontify-triage/internal/storage"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.mu.Lock()
		f.sent = append(f.sent, m)
		f.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeSender) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type staticLLM struct{ content string }

func (s staticLLM) Generate(context.Context, []llm.Message) (llm.Response, error) {
	return llm.Response{Content: s.content}, nil
}

func newTestBot(t *testing.T, delay time.Duration, answer string) (*Bot, *fakeSender) {
	t.Helper()
	store := storage.NewMemoryStorage()
	manager := session.NewManager(session.Deps{
		Store:     store,
		Generator: assistant.NewGenerator(staticLLM{content: answer}, nil),
		Funnel:    leads.NewService(store, nil),
	}, session.Config{MaxQuestions: 3, ContactRequestDelay: delay})
	t.Cleanup(manager.CloseAll)

	sender := &fakeSender{}
	return NewWithSender(sender, manager, nil), sender
}

const greenAnswer = `{"answer":"El RFC es tu registro ante el SAT.","caseLevel":"green"}`

func text(chat int64, body string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		Text:      body,
		Chat:      &tgbotapi.Chat{ID: chat},
		From:      &tgbotapi.User{ID: chat},
	}
}

func command(chat int64, body string) *tgbotapi.Message {
	m := text(chat, body)
	name := strings.SplitN(body, " ", 2)[0]
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return m
}

func TestStartSendsGreeting(t *testing.T) {
	b, sender := newTestBot(t, 0, greenAnswer)
	b.handleMessage(context.Background(), command(1, "/start"))

	texts := sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "3 preguntas gratuitas")
}

func TestQuestionReplyAndContactPromptOrder(t *testing.T) {
	b, sender := newTestBot(t, 0, greenAnswer)
	ctx := context.Background()

	b.handleMessage(ctx, text(1, "¿Qué es el RFC?"))
	reply := sender.last()
	assert.Equal(t, 10, reply.ReplyToMessageID)
	assert.Contains(t, reply.Text, "El RFC es tu registro ante el SAT.")
	assert.Contains(t, reply.Text, "restantes: 2 de 3")

	b.handleMessage(ctx, text(1, "¿Y la e.firma?"))
	b.handleMessage(ctx, text(1, "¿Y el buzón?"))

	texts := sender.texts()
	require.Len(t, texts, 4)
	assert.Contains(t, texts[2], "última pregunta gratuita")
	assert.Equal(t, contactPrompt, texts[3])

	b.handleMessage(ctx, text(1, "¿Otra?"))
	assert.Contains(t, sender.last().Text, contactUsage)
	assert.Len(t, sender.texts(), 5)
}

func TestDelayedContactPrompt(t *testing.T) {
	b, sender := newTestBot(t, 20*time.Millisecond, greenAnswer)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.handleMessage(ctx, text(7, "pregunta"))
	}
	require.Len(t, sender.texts(), 3)

	require.Eventually(t, func() bool {
		texts := sender.texts()
		return len(texts) == 4 && texts[3] == contactPrompt
	}, time.Second, 5*time.Millisecond)
}

func TestContactCommand(t *testing.T) {
	b, sender := newTestBot(t, 0, greenAnswer)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.handleMessage(ctx, text(1, "pregunta"))
	}

	b.handleMessage(ctx, command(1, "/contact Ana"))
	assert.Equal(t, contactUsage, sender.last().Text)

	b.handleMessage(ctx, command(1, "/contact ; ana@; 123"))
	bad := sender.last().Text
	assert.Contains(t, bad, "El nombre es obligatorio.")
	assert.Contains(t, bad, "El correo no tiene un formato válido.")
	assert.Contains(t, bad, "El WhatsApp debe tener entre 10 y 13 dígitos.")

	b.handleMessage(ctx, command(1, "/contact Ana Ruiz; ana@example.com; 55 1234 5678"))
	assert.Contains(t, sender.last().Text, "¡Gracias, Ana Ruiz!")
	assert.Contains(t, sender.last().Text, "Folio:")

	b.handleMessage(ctx, text(1, "¿Puedo preguntar otra cosa?"))
	assert.Contains(t, sender.last().Text, "Un experto fiscal te contactará pronto")
}

func TestEscalateCommand(t *testing.T) {
	t.Run("general question", func(t *testing.T) {
		b, sender := newTestBot(t, 0, greenAnswer)
		b.handleMessage(context.Background(), text(1, "¿Qué es el RFC?"))
		b.handleMessage(context.Background(), command(1, "/escalate"))
		assert.Contains(t, sender.last().Text, "Tu consulta parece general")
	})

	t.Run("urgent question without contact", func(t *testing.T) {
		b, sender := newTestBot(t, 0, `{"answer":"Atiende el requerimiento en plazo.","caseLevel":"red"}`)
		b.handleMessage(context.Background(), text(1, "Me llegó un requerimiento"))
		assert.Contains(t, sender.last().Text, "🔴 urgente")

		b.handleMessage(context.Background(), command(1, "/escalate"))
		assert.Equal(t, contactPrompt, sender.last().Text)
	})

	t.Run("already waiting for contact data", func(t *testing.T) {
		b, sender := newTestBot(t, 0, `{"answer":"Atiende la auditoría con un experto.","caseLevel":"red"}`)
		ctx := context.Background()
		b.handleMessage(ctx, command(1, "/start"))
		for i := 0; i < 3; i++ {
			b.handleMessage(ctx, text(1, "Tengo una auditoría"))
		}
		require.Len(t, sender.texts(), 5)
		require.Equal(t, contactPrompt, sender.last().Text)

		b.handleMessage(ctx, command(1, "/escalate"))
		texts := sender.texts()
		require.Len(t, texts, 6)
		assert.Equal(t, contactPrompt, texts[5])
	})

	t.Run("case already handed off", func(t *testing.T) {
		b, sender := newTestBot(t, 0, `{"answer":"Revisa tu buzón tributario.","caseLevel":"red"}`)
		ctx := context.Background()
		b.handleMessage(ctx, command(1, "/contact Ana Ruiz; ana@example.com; 55 1234 5678"))
		b.handleMessage(ctx, text(1, "Me embargaron la cuenta"))

		b.handleMessage(ctx, command(1, "/escalate"))
		first := sender.last().Text
		assert.Contains(t, first, "Folio:")

		b.handleMessage(ctx, command(1, "/escalate"))
		assert.Equal(t, first, sender.last().Text)
	})
}

func TestStatusAndReset(t *testing.T) {
	b, sender := newTestBot(t, 0, greenAnswer)
	ctx := context.Background()
	b.handleMessage(ctx, text(1, "pregunta"))

	b.handleMessage(ctx, command(1, "/status"))
	status := sender.last()
	assert.Equal(t, "MarkdownV2", status.ParseMode)
	assert.Contains(t, status.Text, "usadas: 1 de 3")

	b.handleMessage(ctx, command(1, "/reset"))
	assert.Contains(t, sender.last().Text, "empezamos de nuevo")

	b.handleMessage(ctx, command(1, "/status"))
	assert.Contains(t, sender.last().Text, "usadas: 0 de 3")
}

func TestUnknownCommandAndEmptyText(t *testing.T) {
	b, sender := newTestBot(t, 0, greenAnswer)
	b.handleMessage(context.Background(), command(1, "/tags"))
	assert.Contains(t, sender.last().Text, "Comando desconocido")

	b.handleMessage(context.Background(), text(1, "   "))
	assert.Contains(t, sender.last().Text, "solo puedo leer mensajes de texto")
}

func TestSessionIDMapping(t *testing.T) {
	id := sessionID(-100123)
	assert.Equal(t, "tg:-100123", id)
	chat, ok := chatID(id)
	assert.True(t, ok)
	assert.Equal(t, int64(-100123), chat)

	_, ok = chatID("web:abc")
	assert.False(t, ok)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `Folio: a\-b\.c`, escapeMarkdown("Folio: a-b.c"))
}
