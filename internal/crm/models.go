// Package crm holds the dealership's business records (customers, vehicles,
// leads, appointments, complaints) that call actions read and write.
package crm

import (
	"time"
)

// Appointment types.
const (
	AppointmentTestDrive    = "test_drive"
	AppointmentService      = "service"
	AppointmentConsultation = "consultation"
)

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// Complaint statuses.
const (
	ComplaintOpen       = "open"
	ComplaintInProgress = "in_progress"
	ComplaintResolved   = "resolved"
	ComplaintClosed     = "closed"
)

// Lead stages, in funnel order.
var LeadStages = []string{"new", "contacted", "qualified", "appointment_set", "visited", "negotiation", "converted", "lost"}

// ComplaintCategories is the fixed category set accepted by RegisterComplaint.
var ComplaintCategories = []string{
	"vehicle_defect", "service_quality", "delivery_delay", "billing_issue",
	"staff_behavior", "spare_parts", "warranty_claims", "other",
}

// TimeSlots are the bookable appointment windows for a single day.
var TimeSlots = []string{
	"09:00 AM - 10:00 AM",
	"10:00 AM - 11:00 AM",
	"11:00 AM - 12:00 PM",
	"12:00 PM - 01:00 PM",
	"02:00 PM - 03:00 PM",
	"03:00 PM - 04:00 PM",
	"04:00 PM - 05:00 PM",
	"05:00 PM - 06:00 PM",
}

// GeneralOffers apply to every model.
var GeneralOffers = []string{
	"Exchange Bonus: Up to ₹50,000",
	"Corporate Discount: ₹15,000",
	"First-time buyer: ₹10,000 off",
	"Special Finance: 7.99% interest",
}

// Customer is a known caller.
type Customer struct {
	ID        string    `json:"customer_id" gorm:"primaryKey;size:40"`
	Name      string    `json:"name" gorm:"size:200"`
	Phone     string    `json:"phone" gorm:"size:40;index"`
	Email     string    `json:"email,omitempty" gorm:"size:200"`
	City      string    `json:"city,omitempty" gorm:"size:100"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Vehicle is one catalog entry (model + variant).
type Vehicle struct {
	ID              string  `json:"vehicle_id" gorm:"primaryKey;size:40"`
	Model           string  `json:"model" gorm:"size:100;index"`
	Variant         string  `json:"variant" gorm:"size:100"`
	FuelType        string  `json:"fuel_type" gorm:"size:40"`
	PriceExShowroom float64 `json:"price_ex_showroom"`
	PriceOnRoad     float64 `json:"price_on_road"`
	Engine          string  `json:"engine,omitempty" gorm:"size:100"`
	Mileage         string  `json:"mileage,omitempty" gorm:"size:60"`
	Features        string  `json:"features,omitempty"`
	InStock         bool    `json:"in_stock"`
	CurrentOffer    string  `json:"current_offer,omitempty"`
	ImageURL        string  `json:"image_url,omitempty"`
}

// Lead is a prospective buyer captured during a call.
type Lead struct {
	ID              string    `json:"lead_id" gorm:"primaryKey;size:40"`
	Name            string    `json:"name" gorm:"size:200"`
	Phone           string    `json:"phone" gorm:"size:40;index"`
	InterestedModel string    `json:"interested_model,omitempty" gorm:"size:100"`
	Budget          string    `json:"budget,omitempty" gorm:"size:100"`
	Source          string    `json:"source" gorm:"size:40"`
	Stage           string    `json:"stage" gorm:"size:40;index"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Appointment is a booked test drive, service or consultation.
type Appointment struct {
	ID            string    `json:"appointment_id" gorm:"primaryKey;size:40"`
	CustomerName  string    `json:"customer_name" gorm:"size:200"`
	CustomerPhone string    `json:"customer_phone" gorm:"size:40;index"`
	Type          string    `json:"type" gorm:"size:40"`
	VehicleModel  string    `json:"vehicle_model,omitempty" gorm:"size:100"`
	VehicleRegNo  string    `json:"vehicle_reg_no,omitempty" gorm:"size:40"`
	ServiceType   string    `json:"service_type,omitempty" gorm:"size:100"`
	Date          string    `json:"date" gorm:"size:10;index"`
	TimeSlot      string    `json:"time_slot" gorm:"size:40"`
	Status        string    `json:"status" gorm:"size:20;index"`
	BookedVia     string    `json:"booked_via" gorm:"size:20"`
	CallID        string    `json:"call_id,omitempty" gorm:"size:60"`
	ReminderSent  bool      `json:"reminder_sent"`
	CreatedAt     time.Time `json:"created_at"`
}

// Complaint is a customer grievance.
type Complaint struct {
	ID            string     `json:"complaint_id" gorm:"primaryKey;size:40"`
	CustomerName  string     `json:"customer_name" gorm:"size:200"`
	CustomerPhone string     `json:"customer_phone" gorm:"size:40;index"`
	Category      string     `json:"category" gorm:"size:40"`
	Description   string     `json:"description"`
	Priority      string     `json:"priority" gorm:"size:10"`
	Status        string     `json:"status" gorm:"size:20;index"`
	CallID        string     `json:"call_id,omitempty" gorm:"size:60"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// History is everything on file for one phone number.
type History struct {
	Customer     *Customer     `json:"customer,omitempty"`
	Appointments []Appointment `json:"appointments"`
	Complaints   []Complaint   `json:"complaints"`
}

// Offers is the offer sheet for a model (or for all models).
type Offers struct {
	Model         string            `json:"model,omitempty"`
	VehicleOffers map[string]string `json:"vehicle_offers"`
	GeneralOffers []string          `json:"general_offers"`
}

// DashboardStats summarises CRM state for the dashboard.
type DashboardStats struct {
	ComplaintsByStatus map[string]int64 `json:"complaints_by_status"`
	LeadsByStage       map[string]int64 `json:"leads_by_stage"`
	AppointmentsToday  int64            `json:"appointments_today"`
	TotalCustomers     int64            `json:"total_customers"`
}

// ComplaintPriority maps a category to its handling priority.
func ComplaintPriority(category string) string {
	switch category {
	case "vehicle_defect", "warranty_claims", "delivery_delay":
		return "high"
	case "service_quality", "billing_issue":
		return "medium"
	default:
		return "low"
	}
}
