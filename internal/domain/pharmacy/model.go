package pharmacy

import (
	"errors"
	"time"
)

var (
	ErrMedicineNotFound     = errors.New("medicine not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryExists       = errors.New("a category with that name already exists")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidOrderStatus   = errors.New("invalid order status")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrEmptyCart            = errors.New("please choose at least one medicine")
	ErrInvalidQuantity      = errors.New("quantities must be whole positive numbers")
	ErrOutOfStock           = errors.New("not enough stock")
	ErrMedicineUnavailable  = errors.New("medicine is no longer available")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// Medicine states.
const (
	MedicineActive   = "active"
	MedicineInactive = "inactive"
)

// Order states.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
	OrderFailed     = "failed"
)

// OrderStatuses in display order.
var OrderStatuses = []string{
	OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCompleted, OrderCancelled, OrderFailed,
}

// Payment states.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

var PaymentStatuses = []string{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded}

func validOrderStatus(s string) bool   { return contains(OrderStatuses, s) }
func validPaymentStatus(s string) bool { return contains(PaymentStatuses, s) }

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

type Category struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	MedicineCount int       `json:"medicine_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type Medicine struct {
	ID           int64     `json:"id"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Manufacturer string    `json:"manufacturer"`
	Price        float64   `json:"price"`
	Stock        int       `json:"stock"`
	Image        string    `json:"-"`
	ImageURL     string    `json:"image_url,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m *Medicine) Orderable() bool { return m.Status == MedicineActive && m.Stock > 0 }

// MedicineFilter narrows medicine lists. Zero fields match everything.
type MedicineFilter struct {
	CategoryID int64
	Search     string
	Status     string
}

type Order struct {
	ID              int64        `json:"id"`
	UserID          int64        `json:"user_id"`
	UserName        string       `json:"user_name"`
	Total           float64      `json:"total"`
	Status          string       `json:"status"`
	PaymentStatus   string       `json:"payment_status"`
	ShippingAddress string       `json:"shipping_address"`
	Items           []*OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type OrderItem struct {
	ID           int64   `json:"id"`
	OrderID      int64   `json:"order_id"`
	MedicineID   int64   `json:"medicine_id"`
	MedicineName string  `json:"medicine_name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
}

func (i *OrderItem) Subtotal() float64 { return float64(i.Quantity) * i.UnitPrice }

// OrderFilter narrows order lists. Zero fields match everything.
type OrderFilter struct {
	UserID int64
	Status string
}

// CartLine is one requested medicine.
type CartLine struct {
	MedicineID int64
	Quantity   int
}

type Prescription struct {
	ID              int64     `json:"id"`
	AppointmentID   int64     `json:"appointment_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	DoctorID        int64     `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	PatientID       int64     `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	Medication      string    `json:"medication"`
	Dosage          string    `json:"dosage"`
	Instructions    string    `json:"instructions"`
	CreatedAt       time.Time `json:"created_at"`
}

// AppointmentRef is what prescribing needs to know about an appointment.
type AppointmentRef struct {
	ID        int64
	DoctorID  int64
	PatientID int64
}

type CategoryInput struct {
	Name        string `form:"name" validate:"required,max=120" label:"Name"`
	Description string `form:"description" validate:"max=1000" label:"Description"`
}

type MedicineInput struct {
	CategoryID   int64   `form:"category_id" validate:"omitempty,gt=0" label:"Category"`
	Name         string  `form:"name" validate:"required,max=200" label:"Name"`
	Description  string  `form:"description" validate:"max=2000" label:"Description"`
	Manufacturer string  `form:"manufacturer" validate:"max=200" label:"Manufacturer"`
	Price        float64 `form:"price" validate:"gte=0,lte=1000000" label:"Price"`
	Stock        int     `form:"stock" validate:"gte=0" label:"Stock"`
	Status       string  `form:"status" validate:"omitempty,oneof=active inactive" label:"Status"`
}

type OrderInput struct {
	ShippingAddress string `form:"shipping_address" validate:"required,max=500" label:"Shipping address"`
	Lines           []CartLine
}

type OrderUpdate struct {
	Status        string `form:"status"`
	PaymentStatus string `form:"payment_status"`
}

type PrescriptionInput struct {
	Medication   string `form:"medication" validate:"required,max=200" label:"Medication"`
	Dosage       string `form:"dosage" validate:"max=120" label:"Dosage"`
	Instructions string `form:"instructions" validate:"max=2000" label:"Instructions"`
}
