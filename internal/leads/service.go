// Package leads hands escalated cases to the expert funnel.
package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/kontify-triage/internal/metrics"
	"github.com/xaenox/kontify-triage/internal/models"
	"github.com/xaenox/kontify-triage/internal/storage"
)

// Service turns a case summary into a persisted lead with status "new".
type Service struct {
	store  storage.LeadStore
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store storage.LeadStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Submit records the lead and returns its id. contact may be nil.
func (s *Service) Submit(ctx context.Context, sessionID string, summary models.CaseSummary, contact *models.ContactData) (string, error) {
	lead := &models.Lead{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Summary:   summary,
		Status:    models.LeadStatusNew,
		CreatedAt: s.now(),
	}
	if contact != nil {
		c := *contact
		lead.Contact = &c
	}

	if err := s.store.SaveLead(ctx, lead); err != nil {
		metrics.LeadHandoffs.WithLabelValues("error").Inc()
		return "", fmt.Errorf("save lead: %w", err)
	}
	metrics.LeadHandoffs.WithLabelValues("ok").Inc()

	s.logger.Info("Lead created",
		zap.String("lead_id", lead.ID),
		zap.String("session_id", sessionID),
		zap.String("level", string(summary.Level)),
		zap.Any("specialties", summary.DetectedSpecialties))
	return lead.ID, nil
}

// Recent lists the newest leads first.
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.Lead, error) {
	return s.store.RecentLeads(ctx, limit)
}
