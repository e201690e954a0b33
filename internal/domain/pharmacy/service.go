package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/blobstore"
	"github.com/chela967/medicare/internal/platform/db"
	"github.com/chela967/medicare/internal/platform/validation"
)

// maxLineQuantity bounds a single cart line.
const maxLineQuantity = 100

type Service struct {
	categories    CategoryRepository
	medicines     MedicineRepository
	orders        OrderRepository
	prescriptions PrescriptionRepository
	appointments  Appointments
	files         blobstore.Store
	tx            db.Transactor
	policy        auth.Policy
	audit         audit.Recorder
	logger        zerolog.Logger
}

func NewService(categories CategoryRepository, medicines MedicineRepository, orders OrderRepository,
	prescriptions PrescriptionRepository, appts Appointments, files blobstore.Store, tx db.Transactor,
	policy auth.Policy, rec audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		categories: categories, medicines: medicines, orders: orders, prescriptions: prescriptions,
		appointments: appts, files: files, tx: tx, policy: policy, audit: rec, logger: logger,
	}
}

// -- Categories --

func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.categories.List(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, actor auth.Actor, in CategoryInput) (*Category, error) {
	if err := s.policy.Authorize(actor, auth.ActManageCatalog, auth.Resource{}); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	c := &Category{Name: in.Name, Description: strings.TrimSpace(in.Description)}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.categories.Create(ctx, c); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: actor.UserID, Action: audit.ActionCategoryCreated, EntityType: "category", EntityID: c.ID,
			Details: map[string]interface{}{"name": c.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// -- Medicines --

// withImageURL resolves the public image address of each medicine.
func (s *Service) withImageURL(ctx context.Context, items ...*Medicine) {
	for _, m := range items {
		if m.Image == "" {
			continue
		}
		u, err := s.files.URL(ctx, m.Image)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", m.Image).Msg("resolve medicine image")
			continue
		}
		m.ImageURL = u
	}
}

// ListMedicines lists the whole inventory.
func (s *Service) ListMedicines(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	items, total, err := s.medicines.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.withImageURL(ctx, items...)
	return items, total, nil
}

// Shop lists the medicines patients may order.
func (s *Service) Shop(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	f.Status = MedicineActive
	return s.ListMedicines(ctx, f, limit, offset)
}

func (s *Service) GetMedicine(ctx context.Context, id int64) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.withImageURL(ctx, m)
	return m, nil
}

func applyMedicineInput(m *Medicine, in MedicineInput) {
	m.Name = in.Name
	m.Description = strings.TrimSpace(in.Description)
	m.Manufacturer = strings.TrimSpace(in.Manufacturer)
	m.Price = roundCents(in.Price)
	m.Stock = in.Stock
	m.CategoryID = nil
	if in.CategoryID > 0 {
		id := in.CategoryID
		m.CategoryID = &id
	}
	if in.Status != "" {
		m.Status = in.Status
	}
}

// CreateMedicine adds a medicine. The image is optional; it is removed
// again when the insert fails.
func (s *Service) CreateMedicine(ctx context.Context, actor auth.Actor, in MedicineInput, image *multipart.FileHeader) (*Medicine, error) {
	if err := s.policy.Authorize(actor, auth.ActManageCatalog, auth.Resource{}); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	m := &Medicine{Status: MedicineActive}
	applyMedicineInput(m, in)
	if image != nil {
		key, err := blobstore.SaveUpload(ctx, s.files, image, blobstore.ImageRules)
		if err != nil {
			return nil, err
		}
		m.Image = key
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.medicines.Create(ctx, m); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: actor.UserID, Action: audit.ActionMedicineCreated, EntityType: "medicine", EntityID: m.ID,
			Details: map[string]interface{}{"name": m.Name, "stock": m.Stock},
		})
	})
	if err != nil {
		s.removeFile(ctx, m.Image)
		return nil, err
	}
	s.withImageURL(ctx, m)
	return m, nil
}

// UpdateMedicine edits a medicine. A new image replaces the old one, which
// is deleted after the change commits.
func (s *Service) UpdateMedicine(ctx context.Context, actor auth.Actor, id int64, in MedicineInput, image *multipart.FileHeader) (*Medicine, error) {
	if err := s.policy.Authorize(actor, auth.ActManageCatalog, auth.Resource{}); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldImage := m.Image
	applyMedicineInput(m, in)
	if image != nil {
		key, err := blobstore.SaveUpload(ctx, s.files, image, blobstore.ImageRules)
		if err != nil {
			return nil, err
		}
		m.Image = key
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.medicines.Update(ctx, m); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: actor.UserID, Action: audit.ActionMedicineUpdated, EntityType: "medicine", EntityID: m.ID,
			Details: map[string]interface{}{"name": m.Name, "stock": m.Stock, "price": m.Price, "status": m.Status},
		})
	})
	if err != nil {
		if m.Image != oldImage {
			s.removeFile(ctx, m.Image)
		}
		return nil, err
	}
	if m.Image != oldImage {
		s.removeFile(ctx, oldImage)
	}
	s.withImageURL(ctx, m)
	return m, nil
}

// DeactivateMedicine hides a medicine from the shop. Order history keeps
// referencing it.
func (s *Service) DeactivateMedicine(ctx context.Context, actor auth.Actor, id int64) error {
	if err := s.policy.Authorize(actor, auth.ActManageCatalog, auth.Resource{}); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.medicines.SetStatus(ctx, id, MedicineInactive)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrMedicineNotFound
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: actor.UserID, Action: audit.ActionMedicineRemoved, EntityType: "medicine", EntityID: id,
		})
	})
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("remove medicine image")
	}
}

// -- Orders --

// mergeLines drops zero quantities and sums repeated medicines.
func mergeLines(lines []CartLine) ([]CartLine, error) {
	qty := make(map[int64]int)
	for _, l := range lines {
		if l.Quantity == 0 {
			continue
		}
		if l.Quantity < 0 || l.MedicineID <= 0 {
			return nil, ErrInvalidQuantity
		}
		qty[l.MedicineID] += l.Quantity
	}
	out := make([]CartLine, 0, len(qty))
	for id, q := range qty {
		if q > maxLineQuantity {
			return nil, ErrInvalidQuantity
		}
		out = append(out, CartLine{MedicineID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MedicineID < out[j].MedicineID })
	return out, nil
}

// PlaceOrder checks stock and takes it in one transaction. A line that
// cannot be filled fails the whole order and nothing is written.
func (s *Service) PlaceOrder(ctx context.Context, actor auth.Actor, in OrderInput) (*Order, error) {
	if err := s.policy.Authorize(actor, auth.ActPlaceOrder, auth.Resource{PatientID: actor.UserID}); err != nil {
		return nil, err
	}
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	lines, err := mergeLines(in.Lines)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.MedicineID
	}

	o := &Order{
		UserID:          actor.UserID,
		UserName:        actor.Name,
		Status:          OrderPending,
		PaymentStatus:   PaymentPending,
		ShippingAddress: in.ShippingAddress,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.medicines.LockForOrder(ctx, ids)
		if err != nil {
			return err
		}
		var cents int64
		for _, l := range lines {
			m, ok := locked[l.MedicineID]
			if !ok || m.Status != MedicineActive {
				return ErrMedicineUnavailable
			}
			if m.Stock < l.Quantity {
				return fmt.Errorf("%w: only %d of %s left", ErrOutOfStock, m.Stock, m.Name)
			}
			cents += toCents(m.Price) * int64(l.Quantity)
			o.Items = append(o.Items, &OrderItem{
				MedicineID: m.ID, MedicineName: m.Name, Quantity: l.Quantity, UnitPrice: m.Price,
			})
		}
		for _, l := range lines {
			if err := s.medicines.DecrementStock(ctx, l.MedicineID, l.Quantity); err != nil {
				return err
			}
		}
		o.Total = float64(cents) / 100
		return s.orders.Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("order_id", o.ID).Int64("user_id", o.UserID).Float64("total", o.Total).Msg("order placed")
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit, offset int) ([]*Order, int, error) {
	if !validOrderStatus(status) {
		status = ""
	}
	return s.orders.List(ctx, OrderFilter{Status: status}, limit, offset)
}

func (s *Service) MyOrders(ctx context.Context, userID int64, limit, offset int) ([]*Order, int, error) {
	return s.orders.List(ctx, OrderFilter{UserID: userID}, limit, offset)
}

// GetOrder returns an order with its items. Patients only see their own.
func (s *Service) GetOrder(ctx context.Context, actor auth.Actor, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && o.UserID != actor.UserID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// UpdateOrderStatus sets both status fields directly; any value from the
// closed sets may follow any other.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor auth.Actor, id int64, in OrderUpdate) error {
	if err := s.policy.Authorize(actor, auth.ActManageOrders, auth.Resource{}); err != nil {
		return err
	}
	if !validOrderStatus(in.Status) {
		return ErrInvalidOrderStatus
	}
	if !validPaymentStatus(in.PaymentStatus) {
		return ErrInvalidPaymentStatus
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.orders.UpdateStatus(ctx, id, in.Status, in.PaymentStatus)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrOrderNotFound
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: actor.UserID, Action: audit.ActionOrderUpdated, EntityType: "order", EntityID: id,
			Details: map[string]interface{}{"status": in.Status, "payment_status": in.PaymentStatus},
		})
	})
}

func (s *Service) CountOrdersByStatus(ctx context.Context) (map[string]int, error) {
	return s.orders.CountByStatus(ctx)
}

// -- Prescriptions --

// Prescribe adds a prescription to an appointment the doctor owns.
func (s *Service) Prescribe(ctx context.Context, actor auth.Actor, appointmentID int64, in PrescriptionInput) (*Prescription, error) {
	ref, err := s.appointments.AppointmentRef(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActPrescribe, auth.Resource{DoctorID: ref.DoctorID, PatientID: ref.PatientID}); err != nil {
		return nil, err
	}
	in.Medication = strings.TrimSpace(in.Medication)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	p := &Prescription{
		AppointmentID: ref.ID,
		DoctorID:      ref.DoctorID,
		PatientID:     ref.PatientID,
		Medication:    in.Medication,
		Dosage:        strings.TrimSpace(in.Dosage),
		Instructions:  strings.TrimSpace(in.Instructions),
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) PrescriptionsForPatient(ctx context.Context, patientID int64) ([]*Prescription, error) {
	return s.prescriptions.ListForPatient(ctx, patientID)
}

// PrescriptionsForAppointment lists an appointment's prescriptions for
// either of its parties.
func (s *Service) PrescriptionsForAppointment(ctx context.Context, actor auth.Actor, appointmentID int64) ([]*Prescription, error) {
	ref, err := s.appointments.AppointmentRef(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, auth.ActViewAppointment, auth.Resource{DoctorID: ref.DoctorID, PatientID: ref.PatientID}); err != nil {
		return nil, err
	}
	return s.prescriptions.ListForAppointment(ctx, appointmentID)
}

// IsUserError reports whether err should be shown to the user as a flash.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrMedicineNotFound, ErrCategoryNotFound, ErrCategoryExists, ErrOrderNotFound,
		ErrInvalidOrderStatus, ErrInvalidPaymentStatus, ErrEmptyCart, ErrInvalidQuantity,
		ErrOutOfStock, ErrMedicineUnavailable, ErrAppointmentNotFound, auth.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return blobstore.IsUploadError(err)
}

func toCents(v float64) int64 { return int64(math.Round(v * 100)) }

func roundCents(v float64) float64 { return float64(toCents(v)) / 100 }
