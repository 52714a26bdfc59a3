package storage

import (
	"encoding/json"
	"fmt"

	"github.com/xaenox/kontify-triage/internal/models"
)

// The SQL backends keep summary and contact as JSON columns.

func encodeLeadColumns(lead *models.Lead) (summary string, contact *string, err error) {
	raw, err := json.Marshal(lead.Summary)
	if err != nil {
		return "", nil, fmt.Errorf("encode summary: %w", err)
	}
	if lead.Contact != nil {
		c, err := json.Marshal(lead.Contact)
		if err != nil {
			return "", nil, fmt.Errorf("encode contact: %w", err)
		}
		s := string(c)
		contact = &s
	}
	return string(raw), contact, nil
}

func decodeLeadColumns(lead *models.Lead, summary string, contact *string) error {
	if err := json.Unmarshal([]byte(summary), &lead.Summary); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}
	if contact != nil && *contact != "" {
		lead.Contact = &models.ContactData{}
		if err := json.Unmarshal([]byte(*contact), lead.Contact); err != nil {
			return fmt.Errorf("decode contact: %w", err)
		}
	}
	return nil
}
