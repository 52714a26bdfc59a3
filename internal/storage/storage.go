package storage

import (
	"context"

	"github.com/xaenox/kontify-triage/internal/models"
)

type Storage interface {
	KV
	LeadStore
	Close() error
}

// KV is the durable key-value store session state lives in. Get reports
// a missing key with ok=false and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type LeadStore interface {
	SaveLead(ctx context.Context, lead *models.Lead) error
	// RecentLeads returns up to limit leads, newest first.
	RecentLeads(ctx context.Context, limit int) ([]*models.Lead, error)
}

const defaultRecentLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return limit
}
