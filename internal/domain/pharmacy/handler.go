package pharmacy

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/blobstore"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/validation"
	"github.com/chela967/medicare/internal/platform/view"
	"github.com/chela967/medicare/pkg/pagination"
)

const (
	medicinesPath = "/admin/medicines"
	ordersPath    = "/admin/orders"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin, doctor, patient *echo.Group) {
	catalog := session.RequireCSRF(view.CSRFFailure(medicinesPath))
	admin.GET("/medicines", h.AdminMedicines)
	admin.GET("/medicines/new", h.NewMedicine)
	admin.POST("/medicines", h.CreateMedicine, catalog)
	admin.GET("/medicines/:id/edit", h.EditMedicine)
	admin.POST("/medicines/:id", h.UpdateMedicine, catalog)
	admin.POST("/medicines/:id/deactivate", h.DeactivateMedicine, catalog)
	admin.GET("/categories", h.Categories)
	admin.POST("/categories", h.CreateCategory, session.RequireCSRF(view.CSRFFailure("/admin/categories")))

	admin.GET("/orders", h.AdminOrders)
	admin.GET("/orders/:id", h.AdminOrder)
	admin.POST("/orders/:id/status", h.UpdateOrderStatus, session.RequireCSRF(view.CSRFFailure(ordersPath)))

	doctor.GET("/appointments/:id/prescriptions", h.AppointmentPrescriptions)
	doctor.POST("/appointments/:id/prescriptions", h.Prescribe, session.RequireCSRF(view.CSRFFailure("/doctor/appointments")))

	patient.GET("/shop", h.Shop)
	patient.POST("/orders", h.PlaceOrder, session.RequireCSRF(view.CSRFFailure("/patient/shop")))
	patient.GET("/orders", h.MyOrders)
	patient.GET("/orders/:id", h.MyOrder)
	patient.GET("/prescriptions", h.MyPrescriptions)
}

func paramID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// -- Medicines --

type medicinesPage struct {
	Medicines  []*Medicine
	Categories []*Category
	Filter     MedicineFilter
	Pager      pagination.Pager
}

func medicineFilter(c echo.Context) MedicineFilter {
	cat, _ := strconv.ParseInt(c.QueryParam("category"), 10, 64)
	return MedicineFilter{CategoryID: cat, Search: c.QueryParam("q"), Status: c.QueryParam("status")}
}

func (h *Handler) AdminMedicines(c echo.Context) error {
	ctx := c.Request().Context()
	p := pagination.FromContext(c)
	f := medicineFilter(c)
	if f.Status != MedicineActive && f.Status != MedicineInactive {
		f.Status = ""
	}
	items, total, err := h.svc.ListMedicines(ctx, f, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	cats, err := h.svc.ListCategories(ctx)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/medicines", "Medicines", medicinesPage{
		Medicines: items, Categories: cats, Filter: f,
		Pager: pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

type medicineForm struct {
	Medicine   *Medicine
	Categories []*Category
}

func medicineValues(m *Medicine) map[string]string {
	v := map[string]string{
		"name":         m.Name,
		"description":  m.Description,
		"manufacturer": m.Manufacturer,
		"price":        strconv.FormatFloat(m.Price, 'f', 2, 64),
		"stock":        strconv.Itoa(m.Stock),
		"status":       m.Status,
	}
	if m.CategoryID != nil {
		v["category_id"] = strconv.FormatInt(*m.CategoryID, 10)
	}
	return v
}

func (h *Handler) renderMedicineForm(c echo.Context, status int, m *Medicine, errs []string, form map[string]string) error {
	cats, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	title := "New medicine"
	if m != nil {
		title = "Edit " + m.Name
	}
	return view.RenderForm(c, status, "admin/medicine_form", title, medicineForm{Medicine: m, Categories: cats}, errs, form)
}

func (h *Handler) NewMedicine(c echo.Context) error {
	return h.renderMedicineForm(c, http.StatusOK, nil, nil, map[string]string{"status": MedicineActive})
}

func (h *Handler) EditMedicine(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, medicinesPath, session.FlashError, ErrMedicineNotFound.Error())
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), id)
	if errors.Is(err, ErrMedicineNotFound) {
		return view.Redirect(c, medicinesPath, session.FlashError, err.Error())
	}
	if err != nil {
		return err
	}
	return h.renderMedicineForm(c, http.StatusOK, m, nil, medicineValues(m))
}

// medicineFailed re-renders the form for errors the admin can fix.
func (h *Handler) medicineFailed(c echo.Context, m *Medicine, err error) error {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return h.renderMedicineForm(c, http.StatusUnprocessableEntity, m, verrs, view.FormValues(c))
	case blobstore.IsUploadError(err):
		return h.renderMedicineForm(c, http.StatusUnprocessableEntity, m, []string{blobstore.UserMessage(err)}, view.FormValues(c))
	case errors.Is(err, ErrCategoryNotFound):
		return h.renderMedicineForm(c, http.StatusUnprocessableEntity, m, []string{err.Error()}, view.FormValues(c))
	case errors.Is(err, ErrMedicineNotFound), errors.Is(err, auth.ErrForbidden):
		return view.Redirect(c, medicinesPath, session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	image, _ := c.FormFile("image")
	m, err := h.svc.CreateMedicine(c.Request().Context(), auth.ActorFrom(c), in, image)
	if err != nil {
		return h.medicineFailed(c, nil, err)
	}
	return view.Redirect(c, medicinesPath, session.FlashSuccess, m.Name+" added.")
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, medicinesPath, session.FlashError, ErrMedicineNotFound.Error())
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	image, _ := c.FormFile("image")
	m, err := h.svc.UpdateMedicine(c.Request().Context(), auth.ActorFrom(c), id, in, image)
	if err != nil {
		current, _ := h.svc.GetMedicine(c.Request().Context(), id)
		return h.medicineFailed(c, current, err)
	}
	return view.Redirect(c, medicinesPath, session.FlashSuccess, m.Name+" updated.")
}

func (h *Handler) DeactivateMedicine(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, medicinesPath, session.FlashError, ErrMedicineNotFound.Error())
	}
	err := h.svc.DeactivateMedicine(c.Request().Context(), auth.ActorFrom(c), id)
	switch {
	case err == nil:
		return view.Back(c, medicinesPath, session.FlashSuccess, "Medicine deactivated.")
	case IsUserError(err):
		return view.Back(c, medicinesPath, session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) Categories(c echo.Context) error {
	return h.renderCategories(c, http.StatusOK, nil)
}

func (h *Handler) renderCategories(c echo.Context, status int, errs []string) error {
	cats, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	var form map[string]string
	if errs != nil {
		form = view.FormValues(c)
	}
	return view.RenderForm(c, status, "admin/categories", "Categories", cats, errs, form)
}

func (h *Handler) CreateCategory(c echo.Context) error {
	var in CategoryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	cat, err := h.svc.CreateCategory(c.Request().Context(), auth.ActorFrom(c), in)
	var verrs validation.Errors
	switch {
	case err == nil:
		return view.Redirect(c, "/admin/categories", session.FlashSuccess, "Category "+cat.Name+" created.")
	case errors.As(err, &verrs):
		return h.renderCategories(c, http.StatusUnprocessableEntity, verrs)
	case IsUserError(err):
		return h.renderCategories(c, http.StatusUnprocessableEntity, []string{err.Error()})
	}
	return err
}

// -- Orders --

type ordersPage struct {
	Orders   []*Order
	Status   string
	Statuses []string
	Pager    pagination.Pager
}

type orderPage struct {
	Order           *Order
	Statuses        []string
	PaymentStatuses []string
}

func (h *Handler) AdminOrders(c echo.Context) error {
	p := pagination.FromContext(c)
	status := c.QueryParam("status")
	items, total, err := h.svc.ListOrders(c.Request().Context(), status, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/orders", "Orders", ordersPage{
		Orders: items, Status: status, Statuses: OrderStatuses,
		Pager: pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

func (h *Handler) AdminOrder(c echo.Context) error {
	return h.showOrder(c, "admin/order", ordersPath)
}

func (h *Handler) showOrder(c echo.Context, name, back string) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, back, session.FlashError, ErrOrderNotFound.Error())
	}
	o, err := h.svc.GetOrder(c.Request().Context(), auth.ActorFrom(c), id)
	if errors.Is(err, ErrOrderNotFound) {
		return view.Redirect(c, back, session.FlashError, err.Error())
	}
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, name, "Order #"+strconv.FormatInt(o.ID, 10), orderPage{
		Order: o, Statuses: OrderStatuses, PaymentStatuses: PaymentStatuses,
	})
}

func (h *Handler) UpdateOrderStatus(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, ordersPath, session.FlashError, ErrOrderNotFound.Error())
	}
	var in OrderUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	err := h.svc.UpdateOrderStatus(c.Request().Context(), auth.ActorFrom(c), id, in)
	switch {
	case err == nil:
		return view.Back(c, ordersPath, session.FlashSuccess, "Order updated.")
	case IsUserError(err):
		return view.Back(c, ordersPath, session.FlashError, err.Error())
	}
	return err
}

// -- Shop --

func (h *Handler) Shop(c echo.Context) error {
	ctx := c.Request().Context()
	p := pagination.FromContext(c)
	f := medicineFilter(c)
	items, total, err := h.svc.Shop(ctx, f, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	cats, err := h.svc.ListCategories(ctx)
	if err != nil {
		return err
	}
	f.Status = ""
	return view.Render(c, http.StatusOK, "patient/shop", "Pharmacy", medicinesPage{
		Medicines: items, Categories: cats, Filter: f,
		Pager: pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

// cartLines reads the paired medicine_id / quantity fields of the shop form.
func cartLines(c echo.Context) ([]CartLine, error) {
	form, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	ids, qtys := form["medicine_id"], form["quantity"]
	if len(ids) != len(qtys) {
		return nil, ErrInvalidQuantity
	}
	lines := make([]CartLine, 0, len(ids))
	for i := range ids {
		id, err := strconv.ParseInt(ids[i], 10, 64)
		if err != nil {
			return nil, ErrInvalidQuantity
		}
		qty := 0
		if qtys[i] != "" {
			if qty, err = strconv.Atoi(qtys[i]); err != nil {
				return nil, ErrInvalidQuantity
			}
		}
		lines = append(lines, CartLine{MedicineID: id, Quantity: qty})
	}
	return lines, nil
}

func (h *Handler) PlaceOrder(c echo.Context) error {
	lines, err := cartLines(c)
	if err != nil {
		return view.Redirect(c, "/patient/shop", session.FlashError, ErrInvalidQuantity.Error())
	}
	o, err := h.svc.PlaceOrder(c.Request().Context(), auth.ActorFrom(c), OrderInput{
		ShippingAddress: c.FormValue("shipping_address"),
		Lines:           lines,
	})
	var verrs validation.Errors
	switch {
	case err == nil:
		return view.Redirect(c, "/patient/orders/"+strconv.FormatInt(o.ID, 10), session.FlashSuccess, "Order placed.")
	case errors.As(err, &verrs):
		return view.Redirect(c, "/patient/shop", session.FlashError, verrs.Error())
	case IsUserError(err):
		return view.Redirect(c, "/patient/shop", session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) MyOrders(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.MyOrders(c.Request().Context(), auth.ActorFrom(c).UserID, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/orders", "My orders", ordersPage{
		Orders: items,
		Pager:  pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

func (h *Handler) MyOrder(c echo.Context) error {
	return h.showOrder(c, "patient/order", "/patient/orders")
}

// -- Prescriptions --

type prescriptionsPage struct {
	AppointmentID int64
	Prescriptions []*Prescription
}

func (h *Handler) AppointmentPrescriptions(c echo.Context) error {
	return h.renderPrescriptions(c, http.StatusOK, nil)
}

func (h *Handler) renderPrescriptions(c echo.Context, status int, errs []string) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	items, err := h.svc.PrescriptionsForAppointment(c.Request().Context(), auth.ActorFrom(c), id)
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, auth.ErrForbidden) {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	if err != nil {
		return err
	}
	var form map[string]string
	if errs != nil {
		form = view.FormValues(c)
	}
	return view.RenderForm(c, status, "doctor/prescriptions", "Prescriptions",
		prescriptionsPage{AppointmentID: id, Prescriptions: items}, errs, form)
}

func (h *Handler) Prescribe(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	var in PrescriptionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	_, err := h.svc.Prescribe(c.Request().Context(), auth.ActorFrom(c), id, in)
	var verrs validation.Errors
	switch {
	case err == nil:
		return view.Redirect(c, "/doctor/appointments/"+c.Param("id")+"/prescriptions", session.FlashSuccess, "Prescription added.")
	case errors.As(err, &verrs):
		return h.renderPrescriptions(c, http.StatusUnprocessableEntity, verrs)
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, auth.ErrForbidden):
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	return err
}

func (h *Handler) MyPrescriptions(c echo.Context) error {
	items, err := h.svc.PrescriptionsForPatient(c.Request().Context(), auth.ActorFrom(c).UserID)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/prescriptions", "My prescriptions", items)
}
