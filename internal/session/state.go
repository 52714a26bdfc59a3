package session

import (
	"encoding/json"
	"fmt"

	"github.com/xaenox/kontify-triage/internal/models"
)

// KeyPrefix namespaces session blobs in the key-value store.
const KeyPrefix = "kontify:session:"

func StorageKey(sessionID string) string {
	return KeyPrefix + sessionID
}

type Phase string

const (
	PhaseGreeting        Phase = "greeting"
	PhaseActive          Phase = "active"
	PhaseAwaitingContact Phase = "awaiting_contact"
)

// State is a read-only snapshot of a session for UI collaborators.
type State struct {
	SessionID          string               `json:"session_id"`
	Phase              Phase                `json:"phase"`
	Messages           []models.Message     `json:"messages"`
	QuestionsUsed      int                  `json:"questions_used"`
	MaxQuestions       int                  `json:"max_questions"`
	QuestionsRemaining int                  `json:"questions_remaining"`
	CanAskMore         bool                 `json:"can_ask_more"`
	SeverityLevel      models.SeverityLevel `json:"severity_level"`
	NeedsContactData   bool                 `json:"needs_contact_data"`
	Contact            *models.ContactData  `json:"contact,omitempty"`
	LeadID             string               `json:"lead_id,omitempty"`
	LastSummary        *models.CaseSummary  `json:"last_summary,omitempty"`
}

const stateVersion = 1

// persistedState is the JSON blob stored under StorageKey.
type persistedState struct {
	Version          int                  `json:"version"`
	Messages         []models.Message     `json:"messages"`
	QuestionsUsed    int                  `json:"questions_used"`
	HasGreeted       bool                 `json:"has_greeted"`
	CaseLevel        models.SeverityLevel `json:"case_level"`
	Contact          *models.ContactData  `json:"contact,omitempty"`
	NeedsContactData bool                 `json:"needs_contact_data"`
	LeadID           string               `json:"lead_id,omitempty"`
	LastSummary      *models.CaseSummary  `json:"last_summary,omitempty"`
}

func encodeState(p persistedState) (string, error) {
	p.Version = stateVersion
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode session state: %w", err)
	}
	return string(raw), nil
}

// decodeState rejects anything a session could not have written itself.
func decodeState(raw string) (persistedState, error) {
	var p persistedState
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return persistedState{}, fmt.Errorf("decode session state: %w", err)
	}
	if p.Version != stateVersion {
		return persistedState{}, fmt.Errorf("unsupported session state version %d", p.Version)
	}
	if p.QuestionsUsed < 0 {
		return persistedState{}, fmt.Errorf("negative questions_used %d", p.QuestionsUsed)
	}
	if p.CaseLevel == "" {
		p.CaseLevel = models.SeverityGreen
	}
	if !p.CaseLevel.Valid() {
		return persistedState{}, fmt.Errorf("unknown case level %q", p.CaseLevel)
	}
	for i, m := range p.Messages {
		if !m.Role.Valid() {
			return persistedState{}, fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	if !p.HasGreeted && len(p.Messages) > 0 {
		return persistedState{}, fmt.Errorf("messages present before greeting")
	}
	return p, nil
}
