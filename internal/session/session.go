// Package session implements the lifecycle of one triage conversation:
// greeting, free questions behind the quota gate, the contact-data request
// and the handoff to the lead funnel.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/assistant"
	"github.com/xaenox/kontify-triage/internal/classifier"
	"github.com/xaenox/kontify-triage/internal/conversation"
	"github.com/xaenox/kontify-triage/internal/metrics"
	"github.com/xaenox/kontify-triage/internal/models"
	"github.com/xaenox/kontify-triage/internal/quota"
	"github.com/xaenox/kontify-triage/internal/storage"
	"github.com/xaenox/kontify-triage/internal/triage"
)

// Responder produces the assistant's reply. It must not fail.
type Responder interface {
	Generate(ctx context.Context, req assistant.Request) assistant.Reply
}

// Funnel receives escalated cases. contact may be nil.
type Funnel interface {
	Submit(ctx context.Context, sessionID string, summary models.CaseSummary, contact *models.ContactData) (string, error)
}

// Observer is told about every state change, including the ones made by
// the delayed contact-data request.
type Observer func(sessionID string, st State)

type Config struct {
	MaxQuestions int
	// ContactRequestDelay separates the last free answer from the
	// contact-data request. Zero raises it immediately.
	ContactRequestDelay time.Duration
	PersistTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = quota.DefaultMax
	}
	if c.ContactRequestDelay < 0 {
		c.ContactRequestDelay = 0
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	return c
}

type Deps struct {
	Store      storage.KV
	Generator  Responder
	Classifier classifier.Classifier
	Summaries  *triage.Builder
	Funnel     Funnel
	Logger     *zap.Logger
	Clock      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = storage.NewMemoryStorage()
	}
	if d.Classifier == nil {
		d.Classifier = classifier.NewKeywordClassifier()
	}
	if d.Summaries == nil {
		d.Summaries = triage.NewBuilder()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	return d
}

type RejectReason string

const (
	ReasonQuotaExhausted  RejectReason = "quota_exhausted"
	ReasonAwaitingContact RejectReason = "awaiting_contact"
)

// Outcome is the result of SendMessage. A closed gate is reported with
// Accepted=false, not with an error.
type Outcome struct {
	Accepted bool
	Reason   RejectReason
	Reply    *models.Message
	Fallback bool
	State    State
}

// Session is safe for concurrent use. Calls are serialized, and the lock is
// held across the generator round trip so the quota cannot be raced.
type Session struct {
	id       string
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	observer func() Observer

	mu           sync.Mutex
	conv         *conversation.Store
	gate         *quota.Gate
	hasGreeted   bool
	level        models.SeverityLevel
	contact      *models.ContactData
	needsContact bool
	leadID       string
	lastSummary  *models.CaseSummary
	timer        *time.Timer
	epoch        uint64
	closed       bool

	lastActive atomic.Int64 // unix nanos
}

// New returns a fresh session in the greeting phase. Use Load to pick up
// persisted state.
func New(id string, deps Deps, cfg Config) *Session {
	deps = deps.withDefaults()
	cfg = cfg.withDefaults()
	s := &Session{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.With(zap.String("session_id", id)),
		observer: func() Observer { return nil },
	}
	s.resetLocked()
	return s
}

func (s *Session) ID() string { return s.id }

// Load replaces the in-memory state with the persisted one. Missing,
// unreadable or corrupt state leaves a fresh session; Load never fails.
func (s *Session) Load(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.restoreLocked(ctx)
	return s.stateLocked()
}

func (s *Session) restoreLocked(ctx context.Context) {
	s.cancelTimerLocked()
	s.resetLocked()

	raw, ok, err := s.deps.Store.Get(ctx, StorageKey(s.id))
	if err != nil {
		s.logger.Error("Failed to read session state, starting fresh", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	p, err := decodeState(raw)
	if err != nil {
		s.logger.Warn("Corrupt session state, starting fresh", zap.Error(err))
		return
	}

	s.conv = conversation.Restore(p.Messages, s.deps.Clock)
	s.gate = quota.Restore(p.QuestionsUsed, s.cfg.MaxQuestions)
	s.hasGreeted = p.HasGreeted
	s.level = p.CaseLevel
	s.contact = p.Contact
	s.needsContact = p.NeedsContactData
	s.leadID = p.LeadID
	s.lastSummary = p.LastSummary

	// A pending delayed request does not survive a restart.
	if s.gate.Closed() && s.contact == nil && !s.needsContact {
		s.needsContact = true
		s.persistLocked(ctx)
	}
}

// Greet emits the welcome message once per session lifetime.
func (s *Session) Greet(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	changed := s.greetLocked()
	if changed {
		s.persistLocked(ctx)
	}
	st := s.stateLocked()
	s.mu.Unlock()

	if changed {
		s.notify(st)
	}
	return st, nil
}

func (s *Session) greetLocked() bool {
	s.touchLocked()
	if s.hasGreeted {
		return false
	}
	s.conv.Append(models.RoleAssistant, greetingText(s.gate.Max()))
	s.hasGreeted = true
	return true
}

// SendMessage runs one question through the gate, the classifier and the
// generator. On a closed gate nothing is appended and no quota is used.
func (s *Session) SendMessage(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}
	if s.greetLocked() {
		s.persistLocked(ctx)
	}

	if s.gate.Closed() {
		out := s.rejectLocked(ctx)
		s.mu.Unlock()
		s.notify(out.State)
		return out, nil
	}

	history := s.conv.Messages()
	q, _ := s.gate.Consume()
	s.conv.Append(models.RoleUser, text)
	s.persistLocked(ctx)

	keywordLevel := s.deps.Classifier.Classify(text, history)
	reply := s.generateLocked(ctx, text, history, q)
	level := models.MaxSeverity(keywordLevel, reply.Level)

	msg := s.conv.Append(models.RoleAssistant, reply.Content)
	s.level = level
	metrics.CaseLevels.WithLabelValues(string(level)).Inc()

	if s.gate.Closed() {
		s.gateClosedLocked(ctx)
	}
	s.persistLocked(ctx)
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("Question answered",
		zap.Int("question", q.Used),
		zap.String("keyword_level", string(keywordLevel)),
		zap.String("assistant_level", string(reply.Level)),
		zap.String("level", string(level)),
		zap.Bool("fallback", reply.Fallback))

	s.notify(st)
	return Outcome{Accepted: true, Reply: &msg, Fallback: reply.Fallback, State: st}, nil
}

func (s *Session) generateLocked(ctx context.Context, text string, history []models.Message, q models.QuestionQuota) assistant.Reply {
	if s.deps.Generator == nil {
		return assistant.Reply{Content: assistant.FallbackMessage, Level: models.SeverityGreen, Fallback: true}
	}
	return s.deps.Generator.Generate(ctx, assistant.Request{
		Message:       text,
		History:       history,
		QuestionIndex: q.Used,
		MaxQuestions:  q.Max,
	})
}

// gateClosedLocked escalates a session whose free questions just ran out:
// with contact data on file the case goes to the funnel now, otherwise the
// contact-data request is scheduled.
func (s *Session) gateClosedLocked(ctx context.Context) {
	switch {
	case s.contact != nil && s.leadID == "":
		s.handoffLocked(ctx)
	case s.contact == nil && !s.needsContact:
		s.scheduleContactRequestLocked()
	}
}

func (s *Session) rejectLocked(ctx context.Context) Outcome {
	metrics.QuotaRejections.Inc()

	switch {
	case s.contact != nil && s.leadID == "":
		// An earlier submission failed.
		s.handoffLocked(ctx)
		s.persistLocked(ctx)
	case s.contact == nil && !s.needsContact && s.timer == nil:
		s.needsContact = true
		s.persistLocked(ctx)
	}
	reason := ReasonQuotaExhausted
	if s.needsContact {
		reason = ReasonAwaitingContact
	}
	s.logger.Debug("Question rejected", zap.String("reason", string(reason)))
	return Outcome{Accepted: false, Reason: reason, State: s.stateLocked()}
}

func (s *Session) scheduleContactRequestLocked() {
	s.cancelTimerLocked()
	if s.cfg.ContactRequestDelay == 0 {
		s.needsContact = true
		return
	}
	epoch := s.epoch
	s.timer = time.AfterFunc(s.cfg.ContactRequestDelay, func() {
		s.fireContactRequest(epoch)
	})
}

func (s *Session) fireContactRequest(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.contact != nil || s.needsContact || s.gate.CanAccept() {
		s.mu.Unlock()
		return
	}
	s.needsContact = true
	s.persistLocked(context.Background())
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("Contact data requested")
	s.notify(st)
}

// cancelTimerLocked stops a pending request and invalidates any callback
// that already started.
func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
}

// SaveContactData validates and stores the user's contact data. When the
// session was waiting for it, or the gate closed before the request went
// out, the case is handed to the funnel and the session returns to active.
// The quota gate stays as it is.
func (s *Session) SaveContactData(ctx context.Context, data models.ContactData) (State, error) {
	data = data.Normalize()
	if err := data.Validate(); err != nil {
		return s.State(), err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	s.touchLocked()
	s.cancelTimerLocked()
	s.contact = &data
	if s.needsContact || (s.gate.Closed() && s.leadID == "") {
		s.needsContact = false
		s.handoffLocked(ctx)
	}
	s.persistLocked(ctx)
	st := s.stateLocked()
	s.mu.Unlock()

	s.notify(st)
	return st, nil
}

// Escalate hands the case to an expert on the user's request. It needs a
// yellow or red case, or an exhausted gate. Without contact data the
// session asks for it first. A case already handed off keeps its lead.
func (s *Session) Escalate(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	if !s.level.AtLeast(models.SeverityYellow) && s.gate.CanAccept() {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, ErrNotEscalatable
	}
	if s.leadID != "" {
		s.touchLocked()
		st := s.stateLocked()
		s.mu.Unlock()
		return st, nil
	}

	s.touchLocked()
	if s.contact != nil {
		s.handoffLocked(ctx)
	} else {
		s.cancelTimerLocked()
		s.needsContact = true
	}
	s.persistLocked(ctx)
	st := s.stateLocked()
	s.mu.Unlock()

	s.notify(st)
	return st, nil
}

// handoffLocked builds the case summary and submits it. Funnel failures
// are logged; the conversation carries on.
func (s *Session) handoffLocked(ctx context.Context) {
	summary := s.deps.Summaries.Build(s.conv.Messages(), s.level)
	s.lastSummary = &summary
	if s.deps.Funnel == nil {
		return
	}

	var contact *models.ContactData
	if s.contact != nil {
		c := *s.contact
		contact = &c
	}
	leadID, err := s.deps.Funnel.Submit(ctx, s.id, summary, contact)
	if err != nil {
		s.logger.Error("Failed to submit lead", zap.Error(err))
		return
	}
	s.leadID = leadID
	s.logger.Info("Case escalated",
		zap.String("lead_id", leadID),
		zap.String("level", string(summary.Level)),
		zap.String("urgency", string(summary.Urgency)))
}

// Reset clears the conversation, quota, level and contact data and
// returns the session to the greeting phase.
func (s *Session) Reset(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	s.cancelTimerLocked()
	s.resetLocked()
	s.persistLocked(ctx)
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("Session reset")
	s.notify(st)
	return st, nil
}

func (s *Session) resetLocked() {
	s.conv = conversation.New(s.deps.Clock)
	s.gate = quota.New(s.cfg.MaxQuestions)
	s.hasGreeted = false
	s.level = models.SeverityGreen
	s.contact = nil
	s.needsContact = false
	s.leadID = ""
	s.lastSummary = nil
	s.touchLocked()
}

// Close tears the session down: the pending contact request is cancelled
// and later calls fail with ErrSessionClosed. Persisted state is kept.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	s.closed = true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		SessionID:          s.id,
		Phase:              s.phaseLocked(),
		Messages:           s.conv.Messages(),
		QuestionsUsed:      s.gate.Used(),
		MaxQuestions:       s.gate.Max(),
		QuestionsRemaining: s.gate.Remaining(),
		CanAskMore:         s.gate.CanAccept(),
		SeverityLevel:      s.level,
		NeedsContactData:   s.needsContact,
		LeadID:             s.leadID,
	}
	if s.contact != nil {
		c := *s.contact
		st.Contact = &c
	}
	if s.lastSummary != nil {
		sum := *s.lastSummary
		st.LastSummary = &sum
	}
	return st
}

func (s *Session) phaseLocked() Phase {
	switch {
	case !s.hasGreeted:
		return PhaseGreeting
	case s.needsContact:
		return PhaseAwaitingContact
	default:
		return PhaseActive
	}
}

// persistLocked writes the full state. Failures are logged only.
func (s *Session) persistLocked(ctx context.Context) {
	raw, err := encodeState(persistedState{
		Messages:         s.conv.Messages(),
		QuestionsUsed:    s.gate.Used(),
		HasGreeted:       s.hasGreeted,
		CaseLevel:        s.level,
		Contact:          s.contact,
		NeedsContactData: s.needsContact,
		LeadID:           s.leadID,
		LastSummary:      s.lastSummary,
	})
	if err != nil {
		s.logger.Error("Failed to encode session state", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.deps.Store.Set(ctx, StorageKey(s.id), raw); err != nil {
		s.logger.Error("Failed to persist session state", zap.Error(err))
	}
}

func (s *Session) touchLocked() {
	s.lastActive.Store(s.deps.Clock().UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) notify(st State) {
	if obs := s.observer(); obs != nil {
		obs(s.id, st)
	}
}

// IsValidationError reports whether err came from contact-data validation.
func IsValidationError(err error) bool {
	var v *models.ValidationError
	return errors.As(err, &v)
}
