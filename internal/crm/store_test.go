package crm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var testNow = time.Date(2026, 1, 14, 10, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "crm.db"), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return s
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Seed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second seed inserted %d rows, want 0", n)
	}
	vehicles, err := s.ListVehicles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(vehicles) != len(seedVehicles) {
		t.Errorf("vehicles = %d, want %d", len(vehicles), len(seedVehicles))
	}
}

func TestSearchVehicles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		query   string
		wantMin int
		check   func(Vehicle) bool
	}{
		{"nexon", 5, func(v Vehicle) bool { return v.Model == "Nexon" || v.Model == "Nexon EV" }},
		{"ELECTRIC", 5, func(v Vehicle) bool { return v.FuelType == "Electric" }},
		{"Accomplished", 1, func(v Vehicle) bool { return v.Model == "Safari" }},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.SearchVehicles(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) < tt.wantMin {
				t.Fatalf("got %d vehicles, want >= %d", len(got), tt.wantMin)
			}
			for _, v := range got {
				if !tt.check(v) {
					t.Errorf("unexpected match %+v", v)
				}
			}
		})
	}

	none, err := s.SearchVehicles(ctx, "Lamborghini")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}

func TestCurrentOffers(t *testing.T) {
	s := newTestStore(t)
	offers, err := s.CurrentOffers(context.Background(), "harrier")
	if err != nil {
		t.Fatal(err)
	}
	if offers.VehicleOffers["Harrier"] != "Exchange bonus Rs 40,000" {
		t.Errorf("harrier offer = %q", offers.VehicleOffers["Harrier"])
	}
	if len(offers.VehicleOffers) != 1 {
		t.Errorf("vehicle offers = %v, want only Harrier", offers.VehicleOffers)
	}
	if len(offers.GeneralOffers) != len(GeneralOffers) {
		t.Errorf("general offers = %d", len(offers.GeneralOffers))
	}

	all, err := s.CurrentOffers(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := all.VehicleOffers["Punch EV"]; ok {
		t.Error("model without offer should be omitted")
	}
}

func TestBookAndAvailableSlots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	free, err := s.AvailableSlots(ctx, "2026-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != len(TimeSlots) {
		t.Fatalf("free = %d, want %d", len(free), len(TimeSlots))
	}

	apt, err := s.Book(ctx, Appointment{
		CustomerName:  "Amit Patel",
		CustomerPhone: "+91 76543 21098",
		Type:          AppointmentTestDrive,
		VehicleModel:  "Safari",
		Date:          "2026-01-15",
		TimeSlot:      TimeSlots[4],
		CallID:        "CALL-1",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if apt.Status != AppointmentScheduled || apt.BookedVia != "ai_call" || apt.ID[:4] != "APT-" {
		t.Errorf("appointment = %+v", apt)
	}

	free, _ = s.AvailableSlots(ctx, "2026-01-15")
	if len(free) != len(TimeSlots)-1 {
		t.Errorf("free after booking = %d, want %d", len(free), len(TimeSlots)-1)
	}
	for _, slot := range free {
		if slot == TimeSlots[4] {
			t.Error("booked slot still listed as free")
		}
	}

	_, err = s.Book(ctx, Appointment{Date: "2026-01-15", TimeSlot: TimeSlots[4]})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("double booking err = %v, want ErrSlotUnavailable", err)
	}
	if _, err := s.Book(ctx, Appointment{Date: "2026-01-15", TimeSlot: "midnight"}); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("bad slot err = %v", err)
	}
	if _, err := s.Book(ctx, Appointment{Date: "15/01/2026", TimeSlot: TimeSlots[0]}); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("bad date err = %v", err)
	}
	if _, err := s.AvailableSlots(ctx, "tomorrow"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("bad date err = %v", err)
	}
}

func TestComplaintLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		category string
		priority string
	}{
		{"vehicle_defect", "high"},
		{"warranty_claims", "high"},
		{"delivery_delay", "high"},
		{"service_quality", "medium"},
		{"billing_issue", "medium"},
		{"staff_behavior", "low"},
		{"other", "low"},
	}
	for _, tt := range tests {
		c, err := s.RegisterComplaint(ctx, Complaint{CustomerName: "X", CustomerPhone: "1", Category: tt.category, Description: "d"})
		if err != nil {
			t.Fatalf("%s: %v", tt.category, err)
		}
		if c.Priority != tt.priority || c.Status != ComplaintOpen {
			t.Errorf("%s: priority=%s status=%s", tt.category, c.Priority, c.Status)
		}
	}

	if _, err := s.RegisterComplaint(ctx, Complaint{Category: "rude_car"}); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("err = %v, want ErrInvalidCategory", err)
	}

	open, err := s.ListComplaints(ctx, ComplaintOpen)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != len(tests) {
		t.Fatalf("open complaints = %d", len(open))
	}

	updated, err := s.UpdateComplaintStatus(ctx, open[0].ID, ComplaintResolved)
	if err != nil {
		t.Fatal(err)
	}
	if updated.ResolvedAt == nil || !updated.ResolvedAt.Equal(testNow) {
		t.Errorf("resolved_at = %v", updated.ResolvedAt)
	}
	if _, err := s.UpdateComplaintStatus(ctx, "COMP-missing", ComplaintClosed); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateComplaintStatus(ctx, open[0].ID, "lost"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestLeadsAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lead, err := s.AddLead(ctx, Lead{Name: "Vikram", Phone: "+91 95432 10987", InterestedModel: "Nexon EV"})
	if err != nil {
		t.Fatal(err)
	}
	if lead.Stage != "new" || lead.Source != "call" {
		t.Errorf("lead = %+v", lead)
	}
	leads, err := s.ListLeads(ctx, "new")
	if err != nil || len(leads) != 1 {
		t.Fatalf("leads = %v, err = %v", leads, err)
	}

	phone := "+91 98765 43210"
	if _, err := s.Book(ctx, Appointment{CustomerName: "Rajesh", CustomerPhone: phone, Type: AppointmentService, Date: "2026-01-16", TimeSlot: TimeSlots[1]}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RegisterComplaint(ctx, Complaint{CustomerName: "Rajesh", CustomerPhone: phone, Category: "spare_parts", Description: "late"}); err != nil {
		t.Fatal(err)
	}

	h, err := s.CustomerHistory(ctx, phone)
	if err != nil {
		t.Fatal(err)
	}
	if h.Customer == nil || h.Customer.Name != "Rajesh Kumar" {
		t.Errorf("customer = %+v", h.Customer)
	}
	if len(h.Appointments) != 1 || len(h.Complaints) != 1 {
		t.Errorf("history = %d appointments, %d complaints", len(h.Appointments), len(h.Complaints))
	}

	unknown, err := s.CustomerHistory(ctx, "+91 00000 00000")
	if err != nil {
		t.Fatal(err)
	}
	if unknown.Customer != nil || len(unknown.Appointments) != 0 {
		t.Errorf("unknown history = %+v", unknown)
	}
}

func TestDashboard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.AddLead(ctx, Lead{Name: "a", Phone: "1"})
	_, _ = s.RegisterComplaint(ctx, Complaint{Category: "other", Description: "x"})
	_, _ = s.Book(ctx, Appointment{Date: testNow.Format(dateLayout), TimeSlot: TimeSlots[0]})

	stats, err := s.Dashboard(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LeadsByStage["new"] != 1 || stats.ComplaintsByStatus["open"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AppointmentsToday != 1 {
		t.Errorf("appointments today = %d, want 1", stats.AppointmentsToday)
	}
	if stats.TotalCustomers != int64(len(seedCustomers)) {
		t.Errorf("customers = %d", stats.TotalCustomers)
	}
}

func TestReminderJobRunOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tomorrow := testNow.Add(24 * time.Hour).Format(dateLayout)
	for _, slot := range TimeSlots[:2] {
		if _, err := s.Book(ctx, Appointment{Date: tomorrow, TimeSlot: slot}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Book(ctx, Appointment{Date: "2026-02-01", TimeSlot: TimeSlots[0]}); err != nil {
		t.Fatal(err)
	}

	job, err := NewReminderJob(s, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := job.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("flagged = %d, want 2", n)
	}
	n, _ = job.RunOnce(ctx)
	if n != 0 {
		t.Errorf("second sweep flagged = %d, want 0", n)
	}

	apts, _ := s.ListAppointments(ctx, tomorrow)
	for _, a := range apts {
		if !a.ReminderSent {
			t.Errorf("appointment %s not flagged", a.ID)
		}
	}
}

func TestNewReminderJobBadSpec(t *testing.T) {
	s := newTestStore(t)
	if _, err := NewReminderJob(s, "every tuesday", nil); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
