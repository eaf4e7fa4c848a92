package crm

import (
	"context"
	"fmt"
)

// AddLead stores a new lead in stage "new".
func (s *Store) AddLead(ctx context.Context, l Lead) (*Lead, error) {
	l.ID = newID("LEAD")
	l.Stage = LeadStages[0]
	if l.Source == "" {
		l.Source = "call"
	}
	now := s.now()
	l.CreatedAt = now
	l.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&l).Error; err != nil {
		return nil, fmt.Errorf("crm: add lead: %w", err)
	}
	s.logger.Info("lead captured", "lead_id", l.ID, "model", l.InterestedModel)
	return &l, nil
}

// ListLeads returns leads, optionally filtered by stage.
func (s *Store) ListLeads(ctx context.Context, stage string) ([]Lead, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	var out []Lead
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("crm: list leads: %w", err)
	}
	return out, nil
}
