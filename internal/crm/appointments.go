package crm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AvailableSlots lists the time slots on date not held by a non-cancelled
// appointment.
func (s *Store) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	if !validDate(date) {
		return nil, ErrInvalidDate
	}
	var booked []string
	err := s.db.WithContext(ctx).Model(&Appointment{}).
		Where("date = ? AND status <> ?", date, AppointmentCancelled).
		Pluck("time_slot", &booked).Error
	if err != nil {
		return nil, fmt.Errorf("crm: available slots: %w", err)
	}

	free := make([]string, 0, len(TimeSlots))
	for _, slot := range TimeSlots {
		if !contains(booked, slot) {
			free = append(free, slot)
		}
	}
	return free, nil
}

// Book stores a new appointment after checking the slot is free. ID, status
// and creation time are assigned here.
func (s *Store) Book(ctx context.Context, a Appointment) (*Appointment, error) {
	if !validDate(a.Date) {
		return nil, ErrInvalidDate
	}
	if !contains(TimeSlots, a.TimeSlot) {
		return nil, ErrInvalidSlot
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&Appointment{}).
			Where("date = ? AND time_slot = ? AND status <> ?", a.Date, a.TimeSlot, AppointmentCancelled).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrSlotUnavailable
		}

		a.ID = newID("APT")
		a.Status = AppointmentScheduled
		a.CreatedAt = s.now()
		if a.BookedVia == "" {
			a.BookedVia = "ai_call"
		}
		return tx.Create(&a).Error
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("crm: book appointment: %w", err)
	}

	s.logger.Info("appointment booked", "appointment_id", a.ID, "type", a.Type, "date", a.Date, "slot", a.TimeSlot)
	return &a, nil
}

// ListAppointments returns appointments, optionally restricted to one date.
func (s *Store) ListAppointments(ctx context.Context, date string) ([]Appointment, error) {
	q := s.db.WithContext(ctx).Order("date, time_slot")
	if date != "" {
		q = q.Where("date = ?", date)
	}
	var out []Appointment
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("crm: list appointments: %w", err)
	}
	return out, nil
}

// MarkReminders flags every scheduled appointment on date that has not yet
// been reminded and returns the flagged appointments.
func (s *Store) MarkReminders(ctx context.Context, date string) ([]Appointment, error) {
	var due []Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date = ? AND status = ? AND reminder_sent = ?", date, AppointmentScheduled, false).
			Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		ids := make([]string, len(due))
		for i, a := range due {
			ids[i] = a.ID
		}
		return tx.Model(&Appointment{}).Where("id IN ?", ids).Update("reminder_sent", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("crm: mark reminders: %w", err)
	}
	return due, nil
}
