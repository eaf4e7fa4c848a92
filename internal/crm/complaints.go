package crm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// RegisterComplaint stores a complaint with its priority derived from the
// category.
func (s *Store) RegisterComplaint(ctx context.Context, c Complaint) (*Complaint, error) {
	if !contains(ComplaintCategories, c.Category) {
		return nil, ErrInvalidCategory
	}
	c.ID = newID("COMP")
	c.Priority = ComplaintPriority(c.Category)
	c.Status = ComplaintOpen
	c.CreatedAt = s.now()
	c.ResolvedAt = nil
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("crm: register complaint: %w", err)
	}
	s.logger.Info("complaint registered", "complaint_id", c.ID, "category", c.Category, "priority", c.Priority)
	return &c, nil
}

// UpdateComplaintStatus moves a complaint to status. Resolving or closing
// stamps the resolution time.
func (s *Store) UpdateComplaintStatus(ctx context.Context, id, status string) (*Complaint, error) {
	switch status {
	case ComplaintOpen, ComplaintInProgress, ComplaintResolved, ComplaintClosed:
	default:
		return nil, ErrInvalidStatus
	}

	var c Complaint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return err
		}
		c.Status = status
		if status == ComplaintResolved || status == ComplaintClosed {
			now := s.now()
			c.ResolvedAt = &now
		}
		return tx.Save(&c).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("crm: update complaint: %w", err)
	}
	return &c, nil
}

// ListComplaints returns complaints, optionally filtered by status.
func (s *Store) ListComplaints(ctx context.Context, status string) ([]Complaint, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Complaint
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("crm: list complaints: %w", err)
	}
	return out, nil
}
