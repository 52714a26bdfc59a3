package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/models"
	"github.com/xaenox/kontify-triage/internal/session"
)

const sessionPrefix = "tg:"

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type chatState struct {
	busy          int
	needsContact  bool
	promptPending bool
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	sessions *session.Manager
	logger   *zap.Logger
	timeout  int

	mu    sync.Mutex
	chats map[int64]*chatState
}

func New(token string, debug bool, timeout int, sessions *session.Manager, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = debug

	b := NewWithSender(api, sessions, logger)
	b.api = api
	if timeout > 0 {
		b.timeout = timeout
	}
	return b, nil
}

// NewWithSender builds a bot that only sends; Start needs New.
func NewWithSender(sender Sender, sessions *session.Manager, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		sender:   sender,
		sessions: sessions,
		logger:   logger,
		timeout:  60,
		chats:    make(map[int64]*chatState),
	}
	sessions.SetObserver(b.Notify)
	return b
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no telegram api")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func sessionID(chatID int64) string {
	return sessionPrefix + strconv.FormatInt(chatID, 10)
}

func chatID(sessionID string) (int64, bool) {
	raw, ok := strings.CutPrefix(sessionID, sessionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	chat := message.Chat.ID
	b.begin(chat)
	defer b.end(chat)

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(chat, "Por ahora solo puedo leer mensajes de texto. Escribe tu pregunta fiscal.")
		return
	}

	var out session.Outcome
	err := b.withSession(ctx, chat, func(s *session.Session) error {
		var err error
		out, err = s.SendMessage(ctx, content)
		return err
	})
	if err != nil {
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.Int64("chat_id", chat))
		b.sendErrorMessage(chat, "No pude procesar tu mensaje. Intenta de nuevo.")
		return
	}

	if !out.Accepted {
		b.sendMessage(chat, rejectionText(out))
		return
	}
	b.sendReply(chat, message.MessageID, replyText(out))
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.sendMessage(message.Chat.ID, helpText)
	case "status":
		b.handleStatus(ctx, message)
	case "reset":
		b.handleReset(ctx, message)
	case "contact":
		b.handleContact(ctx, message)
	case "escalate":
		b.handleEscalate(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Comando desconocido. Usa /help para ver los comandos disponibles.")
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	var st session.State
	err := b.withSession(ctx, message.Chat.ID, func(s *session.Session) error {
		var err error
		st, err = s.Greet(ctx)
		return err
	})
	if err != nil {
		b.logger.Error("Failed to start session", zap.Error(err), zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "No pude iniciar la conversación. Intenta de nuevo.")
		return
	}
	b.sendMessage(message.Chat.ID, greetingOf(st))
}

func (b *Bot) handleStatus(ctx context.Context, message *tgbotapi.Message) {
	var st session.State
	err := b.withSession(ctx, message.Chat.ID, func(s *session.Session) error {
		st = s.State()
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to read session", zap.Error(err), zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "No pude consultar tu estado. Intenta más tarde.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "*Tu consulta*\n"+escapeMarkdown(statusText(st)))
	msg.ParseMode = "MarkdownV2"
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send status message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleReset(ctx context.Context, message *tgbotapi.Message) {
	var st session.State
	err := b.withSession(ctx, message.Chat.ID, func(s *session.Session) error {
		if _, err := s.Reset(ctx); err != nil {
			return err
		}
		var err error
		st, err = s.Greet(ctx)
		return err
	})
	if err != nil {
		b.logger.Error("Failed to reset session", zap.Error(err), zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "No pude reiniciar la conversación. Intenta de nuevo.")
		return
	}
	b.sendMessage(message.Chat.ID, "Listo, empezamos de nuevo.\n\n"+greetingOf(st))
}

func (b *Bot) handleContact(ctx context.Context, message *tgbotapi.Message) {
	data, ok := parseContact(message.CommandArguments())
	if !ok {
		b.sendMessage(message.Chat.ID, contactUsage)
		return
	}

	var st session.State
	err := b.withSession(ctx, message.Chat.ID, func(s *session.Session) error {
		var err error
		st, err = s.SaveContactData(ctx, data)
		return err
	})

	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		b.sendMessage(message.Chat.ID, validationText(verr))
	case err != nil:
		b.logger.Error("Failed to save contact data", zap.Error(err), zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "No pude guardar tus datos. Intenta de nuevo.")
	case st.LeadID != "":
		b.sendMessage(message.Chat.ID, fmt.Sprintf(
			"¡Gracias, %s! Un experto fiscal de Kontify+ te contactará pronto. Folio: %s", st.Contact.Name, st.LeadID))
	default:
		b.sendMessage(message.Chat.ID, fmt.Sprintf("¡Gracias, %s! Guardamos tus datos de contacto.", st.Contact.Name))
	}
}

func (b *Bot) handleEscalate(ctx context.Context, message *tgbotapi.Message) {
	asked := b.awaitingContact(message.Chat.ID)
	var st session.State
	err := b.withSession(ctx, message.Chat.ID, func(s *session.Session) error {
		var err error
		st, err = s.Escalate(ctx)
		return err
	})

	switch {
	case errors.Is(err, session.ErrNotEscalatable):
		b.sendMessage(message.Chat.ID, "Tu consulta parece general; puedo seguir ayudándote aquí. Si tu caso se complica, usa /escalate de nuevo.")
	case err != nil:
		b.logger.Error("Failed to escalate", zap.Error(err), zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "No pude enviar tu caso a un experto. Intenta de nuevo.")
	case st.NeedsContactData:
		// Notify only prompts when the request is new.
		if asked {
			b.sendMessage(message.Chat.ID, contactPrompt)
		}
	case st.LeadID != "":
		b.sendMessage(message.Chat.ID, "Enviamos tu caso a un experto fiscal. Folio: "+st.LeadID)
	default:
		b.sendErrorMessage(message.Chat.ID, "No pude enviar tu caso a un experto. Intenta de nuevo.")
	}
}

// withSession runs fn against the chat's session, reopening it once if it
// was evicted in between.
func (b *Bot) withSession(ctx context.Context, chat int64, fn func(*session.Session) error) error {
	for attempt := 0; ; attempt++ {
		s, err := b.sessions.Open(ctx, sessionID(chat))
		if err != nil {
			return err
		}
		err = fn(s)
		if errors.Is(err, session.ErrSessionClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

// Notify is the session observer. It sends the contact-data prompt when a
// session starts waiting for it, after any reply still being handled.
func (b *Bot) Notify(sessionID string, st session.State) {
	chat, ok := chatID(sessionID)
	if !ok {
		return
	}

	b.mu.Lock()
	cs := b.chatLocked(chat)
	rising := st.NeedsContactData && !cs.needsContact
	cs.needsContact = st.NeedsContactData
	if rising && cs.busy > 0 {
		cs.promptPending = true
		rising = false
	}
	if !st.NeedsContactData {
		cs.promptPending = false
	}
	b.mu.Unlock()

	if rising {
		b.sendMessage(chat, contactPrompt)
	}
}

func (b *Bot) awaitingContact(chat int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs, ok := b.chats[chat]
	return ok && cs.needsContact
}

func (b *Bot) chatLocked(chat int64) *chatState {
	cs, ok := b.chats[chat]
	if !ok {
		cs = &chatState{}
		b.chats[chat] = cs
	}
	return cs
}

func (b *Bot) begin(chat int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatLocked(chat).busy++
}

func (b *Bot) end(chat int64) {
	b.mu.Lock()
	cs := b.chatLocked(chat)
	cs.busy--
	send := cs.busy == 0 && cs.promptPending
	if send {
		cs.promptPending = false
	}
	if cs.busy == 0 && !cs.needsContact {
		delete(b.chats, chat)
	}
	b.mu.Unlock()

	if send {
		b.sendMessage(chat, contactPrompt)
	}
}

func greetingOf(st session.State) string {
	for _, m := range st.Messages {
		if m.Role == models.RoleAssistant {
			return m.Content
		}
	}
	return helpText
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendReply(chatID int64, replyToID int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
