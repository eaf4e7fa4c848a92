package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors returned for business-rule violations.
var (
	ErrInvalidSlot     = errors.New("invalid time slot")
	ErrSlotUnavailable = errors.New("time slot not available")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidCategory = errors.New("invalid complaint category")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrNotFound        = errors.New("record not found")
)

const dateLayout = "2006-01-02"

// Store is the CRM database.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Open connects to the CRM database and migrates its schema.
// Supported drivers: "sqlite" (pure Go) and "postgres".
func Open(driver, dsn string, opts ...StoreOption) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("crm: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("crm: open %s: %w", driver, err)
	}
	if driver != "postgres" {
		// SQLite allows a single writer.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return New(db, opts...)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, opts ...StoreOption) (*Store, error) {
	s := &Store{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.AutoMigrate(&Customer{}, &Vehicle{}, &Lead{}, &Appointment{}, &Complaint{}); err != nil {
		return nil, fmt.Errorf("crm: migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

func (s *Store) today() string {
	return s.now().Format(dateLayout)
}

func validDate(d string) bool {
	_, err := time.Parse(dateLayout, d)
	return err == nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// likePattern builds a case-insensitive LIKE pattern.
func likePattern(q string) string {
	return "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
}

// CustomerByPhone returns the customer with the given phone, or nil.
func (s *Store) CustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	var c Customer
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crm: customer by phone: %w", err)
	}
	return &c, nil
}

// ListCustomers returns all customers, newest first.
func (s *Store) ListCustomers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("crm: list customers: %w", err)
	}
	return out, nil
}

// AddCustomer stores a new customer.
func (s *Store) AddCustomer(ctx context.Context, c Customer) (*Customer, error) {
	c.ID = newID("CUST")
	c.CreatedAt = s.now()
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("crm: add customer: %w", err)
	}
	return &c, nil
}

// CustomerHistory gathers the customer record, appointments and complaints
// for a phone number.
func (s *Store) CustomerHistory(ctx context.Context, phone string) (*History, error) {
	cust, err := s.CustomerByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	h := &History{Customer: cust, Appointments: []Appointment{}, Complaints: []Complaint{}}
	db := s.db.WithContext(ctx)
	if err := db.Where("customer_phone = ?", phone).Order("date desc").Find(&h.Appointments).Error; err != nil {
		return nil, fmt.Errorf("crm: history appointments: %w", err)
	}
	if err := db.Where("customer_phone = ?", phone).Order("created_at desc").Find(&h.Complaints).Error; err != nil {
		return nil, fmt.Errorf("crm: history complaints: %w", err)
	}
	return h, nil
}

// Dashboard aggregates CRM counters.
func (s *Store) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{
		ComplaintsByStatus: map[string]int64{},
		LeadsByStage:       map[string]int64{},
	}
	db := s.db.WithContext(ctx)

	type row struct {
		Name  string
		Total int64
	}
	var rows []row
	if err := db.Model(&Complaint{}).Select("status as name, count(*) as total").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("crm: dashboard complaints: %w", err)
	}
	for _, r := range rows {
		stats.ComplaintsByStatus[r.Name] = r.Total
	}
	rows = nil
	if err := db.Model(&Lead{}).Select("stage as name, count(*) as total").Group("stage").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("crm: dashboard leads: %w", err)
	}
	for _, r := range rows {
		stats.LeadsByStage[r.Name] = r.Total
	}
	if err := db.Model(&Appointment{}).Where("date = ? AND status <> ?", s.today(), AppointmentCancelled).Count(&stats.AppointmentsToday).Error; err != nil {
		return nil, fmt.Errorf("crm: dashboard appointments: %w", err)
	}
	if err := db.Model(&Customer{}).Count(&stats.TotalCustomers).Error; err != nil {
		return nil, fmt.Errorf("crm: dashboard customers: %w", err)
	}
	return stats, nil
}
