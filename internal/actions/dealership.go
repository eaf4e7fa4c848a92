package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/szaher/dealerline/internal/crm"
)

// Services is the slice of the CRM the dealership actions call into.
type Services interface {
	SearchVehicles(ctx context.Context, query string) ([]crm.Vehicle, error)
	CurrentOffers(ctx context.Context, model string) (*crm.Offers, error)
	AvailableSlots(ctx context.Context, date string) ([]string, error)
	Book(ctx context.Context, a crm.Appointment) (*crm.Appointment, error)
	RegisterComplaint(ctx context.Context, c crm.Complaint) (*crm.Complaint, error)
	AddLead(ctx context.Context, l crm.Lead) (*crm.Lead, error)
	CustomerHistory(ctx context.Context, phone string) (*crm.History, error)
}

type vehicleArgs struct {
	ModelName string `json:"model_name" validate:"required"`
}

type slotArgs struct {
	Date            string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	AppointmentType string `json:"appointment_type" validate:"omitempty,oneof=test_drive service consultation"`
}

type testDriveArgs struct {
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerPhone string `json:"customer_phone" validate:"required"`
	VehicleModel  string `json:"vehicle_model" validate:"required"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot      string `json:"time_slot" validate:"required"`
}

type serviceArgs struct {
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerPhone string `json:"customer_phone" validate:"required"`
	VehicleRegNo  string `json:"vehicle_reg_no"`
	ServiceType   string `json:"service_type"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot      string `json:"time_slot" validate:"required"`
}

type complaintArgs struct {
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerPhone string `json:"customer_phone" validate:"required"`
	Category      string `json:"category" validate:"required,oneof=vehicle_defect service_quality delivery_delay billing_issue staff_behavior spare_parts warranty_claims other"`
	Description   string `json:"description" validate:"required"`
}

type offerArgs struct {
	ModelName string `json:"model_name"`
}

type leadArgs struct {
	Name            string `json:"name" validate:"required"`
	Phone           string `json:"phone" validate:"required"`
	InterestedModel string `json:"interested_model"`
	Budget          string `json:"budget"`
	Notes           string `json:"notes"`
}

type takeoverArgs struct {
	Reason string `json:"reason"`
}

type historyArgs struct {
	Phone string `json:"phone" validate:"required"`
}

// Dealership returns the nine dealership actions backed by svc. now supplies
// the clock used to default appointment dates.
func Dealership(svc Services, now func() time.Time) []Action {
	if now == nil {
		now = time.Now
	}
	return []Action{
		Define(GetVehicleInfo,
			"Get information about a Tata vehicle model including price, specs, and features",
			[]Param{{Name: "model_name", Description: "Name of the vehicle model (e.g., Nexon, Punch, Safari)", Required: true}},
			func(ctx context.Context, a vehicleArgs, _ Call) (Result, error) {
				vehicles, err := svc.SearchVehicles(ctx, a.ModelName)
				if err != nil {
					return nil, err
				}
				if len(vehicles) == 0 {
					return Fail("No vehicle found with name " + a.ModelName), nil
				}
				return OK(fmt.Sprintf("Found %d variants of %s", len(vehicles), a.ModelName),
					map[string]interface{}{"data": vehicles}), nil
			}),

		Define(CheckAppointmentSlots,
			"Check available appointment slots for a specific date",
			[]Param{
				{Name: "date", Description: "Date in YYYY-MM-DD format; defaults to tomorrow"},
				{Name: "appointment_type", Description: "Type of appointment", Enum: []string{crm.AppointmentTestDrive, crm.AppointmentService, crm.AppointmentConsultation}},
			},
			func(ctx context.Context, a slotArgs, _ Call) (Result, error) {
				date := a.Date
				if date == "" {
					date = now().Add(24 * time.Hour).Format("2006-01-02")
				}
				slots, err := svc.AvailableSlots(ctx, date)
				if err != nil {
					if r, ok := businessFailure(err); ok {
						return r, nil
					}
					return nil, err
				}
				return OK(fmt.Sprintf("%d slots available on %s", len(slots), date), map[string]interface{}{
					"date":            date,
					"available_slots": slots,
				}), nil
			}),

		Define(BookTestDrive,
			"Book a test drive appointment for a customer",
			[]Param{
				{Name: "customer_name", Description: "Customer's full name", Required: true},
				{Name: "customer_phone", Description: "Customer's phone number", Required: true},
				{Name: "vehicle_model", Description: "Vehicle model for test drive", Required: true},
				{Name: "date", Description: "Date in YYYY-MM-DD format", Required: true},
				{Name: "time_slot", Description: "Time slot for the appointment", Required: true, Enum: crm.TimeSlots},
			},
			func(ctx context.Context, a testDriveArgs, call Call) (Result, error) {
				apt, err := svc.Book(ctx, crm.Appointment{
					CustomerName:  a.CustomerName,
					CustomerPhone: a.CustomerPhone,
					Type:          crm.AppointmentTestDrive,
					VehicleModel:  a.VehicleModel,
					Date:          a.Date,
					TimeSlot:      a.TimeSlot,
					BookedVia:     "ai_call",
					CallID:        call.SessionID,
				})
				if err != nil {
					if r, ok := businessFailure(err); ok {
						return r, nil
					}
					return nil, err
				}
				return OK(fmt.Sprintf("Test drive booked for %s on %s at %s", a.VehicleModel, a.Date, a.TimeSlot),
					map[string]interface{}{"appointment_id": apt.ID}), nil
			}),

		Define(BookServiceAppointment,
			"Book a service appointment for vehicle maintenance or repair",
			[]Param{
				{Name: "customer_name", Description: "Customer's name", Required: true},
				{Name: "customer_phone", Description: "Customer's phone number", Required: true},
				{Name: "vehicle_reg_no", Description: "Vehicle registration number"},
				{Name: "service_type", Description: "Type of service needed"},
				{Name: "date", Description: "Preferred date (YYYY-MM-DD)", Required: true},
				{Name: "time_slot", Description: "Preferred time slot", Required: true, Enum: crm.TimeSlots},
			},
			func(ctx context.Context, a serviceArgs, call Call) (Result, error) {
				apt, err := svc.Book(ctx, crm.Appointment{
					CustomerName:  a.CustomerName,
					CustomerPhone: a.CustomerPhone,
					Type:          crm.AppointmentService,
					VehicleRegNo:  a.VehicleRegNo,
					ServiceType:   a.ServiceType,
					Date:          a.Date,
					TimeSlot:      a.TimeSlot,
					BookedVia:     "ai_call",
					CallID:        call.SessionID,
				})
				if err != nil {
					if r, ok := businessFailure(err); ok {
						return r, nil
					}
					return nil, err
				}
				return OK(fmt.Sprintf("Service appointment booked for %s at %s", a.Date, a.TimeSlot),
					map[string]interface{}{"appointment_id": apt.ID}), nil
			}),

		Define(RegisterComplaint,
			"Register a customer complaint",
			[]Param{
				{Name: "customer_name", Description: "Customer's name", Required: true},
				{Name: "customer_phone", Description: "Customer's phone number", Required: true},
				{Name: "category", Description: "Category of complaint", Required: true, Enum: crm.ComplaintCategories},
				{Name: "description", Description: "Detailed description of the complaint", Required: true},
			},
			func(ctx context.Context, a complaintArgs, call Call) (Result, error) {
				c, err := svc.RegisterComplaint(ctx, crm.Complaint{
					CustomerName:  a.CustomerName,
					CustomerPhone: a.CustomerPhone,
					Category:      a.Category,
					Description:   a.Description,
					CallID:        call.SessionID,
				})
				if err != nil {
					if r, ok := businessFailure(err); ok {
						return r, nil
					}
					return nil, err
				}
				return OK(fmt.Sprintf("Complaint registered with ID %s. Our team will contact you within 24 hours.", c.ID),
					map[string]interface{}{"complaint_id": c.ID, "priority": c.Priority}), nil
			}),

		Define(GetCurrentOffers,
			"Get current offers and discounts available",
			[]Param{{Name: "model_name", Description: "Optional: specific model to get offers for"}},
			func(ctx context.Context, a offerArgs, _ Call) (Result, error) {
				offers, err := svc.CurrentOffers(ctx, a.ModelName)
				if err != nil {
					return nil, err
				}
				return OK("", map[string]interface{}{
					"offers":         offers.VehicleOffers,
					"general_offers": offers.GeneralOffers,
				}), nil
			}),

		Define(AddLead,
			"Add a new sales lead to the system",
			[]Param{
				{Name: "name", Description: "Lead's name", Required: true},
				{Name: "phone", Description: "Lead's phone number", Required: true},
				{Name: "interested_model", Description: "Vehicle model they're interested in"},
				{Name: "budget", Description: "Customer's budget range"},
				{Name: "notes", Description: "Additional notes about the lead"},
			},
			func(ctx context.Context, a leadArgs, _ Call) (Result, error) {
				lead, err := svc.AddLead(ctx, crm.Lead{
					Name:            a.Name,
					Phone:           a.Phone,
					InterestedModel: a.InterestedModel,
					Budget:          a.Budget,
					Notes:           a.Notes,
					Source:          "call",
				})
				if err != nil {
					return nil, err
				}
				return OK("Lead captured successfully", map[string]interface{}{"lead_id": lead.ID}), nil
			}),

		Define(RequestHumanTakeover,
			"Request transfer to human agent when unable to help or customer requests it",
			[]Param{{Name: "reason", Description: "Reason for requesting human takeover", Required: true}},
			func(_ context.Context, a takeoverArgs, _ Call) (Result, error) {
				reason := strings.TrimSpace(a.Reason)
				if reason == "" {
					reason = DefaultTakeoverReason
				}
				return OK("Transferring to human agent", map[string]interface{}{
					"takeover_requested": true,
					"reason":             reason,
				}), nil
			}),

		Define(GetCustomerHistory,
			"Get customer's history including past purchases and service records",
			[]Param{{Name: "phone", Description: "Customer's phone number", Required: true}},
			func(ctx context.Context, a historyArgs, _ Call) (Result, error) {
				h, err := svc.CustomerHistory(ctx, a.Phone)
				if err != nil {
					return nil, err
				}
				if h.Customer == nil {
					return Fail("No customer found with this phone number"), nil
				}
				return OK("", map[string]interface{}{
					"customer":     h.Customer,
					"appointments": h.Appointments,
					"complaints":   h.Complaints,
				}), nil
			}),
	}
}

// NewDealershipRegistry builds a registry over the full dealership action set.
func NewDealershipRegistry(svc Services, now func() time.Time, opts ...RegistryOption) (*Registry, error) {
	return NewRegistry(Dealership(svc, now), opts...)
}

// businessFailure maps CRM rule violations to success:false results so the
// model can recover within the conversation.
func businessFailure(err error) (Result, bool) {
	switch {
	case errors.Is(err, crm.ErrSlotUnavailable):
		return Fail("That time slot is already booked, please choose another"), true
	case errors.Is(err, crm.ErrInvalidSlot):
		return Fail("Invalid time slot, choose one of: " + strings.Join(crm.TimeSlots, ", ")), true
	case errors.Is(err, crm.ErrInvalidDate), errors.Is(err, crm.ErrInvalidCategory):
		return Fail(err.Error()), true
	}
	return nil, false
}

// DefaultTakeoverReason is recorded when the model asks for a human without
// giving a reason.
const DefaultTakeoverReason = "AI requested"

// TakeoverReason reports whether the invocation of name is a takeover
// request and its reason. Any invocation of request_human_takeover counts,
// including one whose arguments failed to decode.
func TakeoverReason(name string, res Result) (string, bool) {
	if Name(name) != RequestHumanTakeover {
		return "", false
	}
	reason, _ := res["reason"].(string)
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = DefaultTakeoverReason
	}
	return reason, true
}
