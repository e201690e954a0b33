package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/validation"
	"github.com/chela967/medicare/internal/platform/view"
	"github.com/chela967/medicare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin, doctor, patient *echo.Group) {
	admin.GET("/appointments", h.AdminList)

	appts := session.RequireCSRF(view.CSRFFailure("/doctor/appointments"))
	doctor.GET("", h.DoctorDashboard)
	doctor.GET("/appointments", h.DoctorList)
	doctor.GET("/appointments/:id", h.Consultation)
	doctor.POST("/appointments/:id/status", h.UpdateStatus, appts)
	doctor.POST("/appointments/:id/meeting", h.GenerateMeetingLink, appts)
	doctor.POST("/appointments/:id/notes", h.SaveNotes, appts)
	doctor.GET("/patients", h.Patients)

	sched := session.RequireCSRF(view.CSRFFailure("/doctor/schedule"))
	doctor.GET("/schedule", h.Schedule)
	doctor.POST("/schedule", h.AddSlot, sched)
	doctor.POST("/schedule/:id/delete", h.DeleteSlot, sched)

	book := session.RequireCSRF(view.CSRFFailure("/patient/appointments"))
	patient.GET("", h.PatientDashboard)
	patient.GET("/appointments", h.PatientList)
	patient.GET("/appointments/:id", h.PatientView)
	patient.POST("/appointments/:id/cancel", h.Cancel, book)
	patient.GET("/book/:doctor", h.BookPage)
	patient.POST("/book", h.Book, book)
}

func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// -- Doctor --

type doctorDashboard struct {
	Today    []*Appointment
	Upcoming []*Appointment
}

func (h *Handler) DoctorDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	actor := auth.ActorFrom(c)
	today, err := h.svc.Today(ctx, actor.DoctorID)
	if err != nil {
		return err
	}
	upcoming, err := h.svc.Upcoming(ctx, Filter{DoctorID: actor.DoctorID}, 10)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "doctor/dashboard", "Dashboard", doctorDashboard{Today: today, Upcoming: upcoming})
}

type listPage struct {
	Appointments []*Appointment
	Status       string
	Statuses     []Status
	Pager        pagination.Pager
}

var allStatuses = []Status{StatusPending, StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

func (h *Handler) DoctorList(c echo.Context) error {
	p := pagination.FromContext(c)
	status := c.QueryParam("status")
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), auth.ActorFrom(c).DoctorID, Status(status), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "doctor/appointments", "Appointments", listPage{
		Appointments: items,
		Status:       status,
		Statuses:     allStatuses,
		Pager:        pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

func (h *Handler) Consultation(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	a, err := h.svc.Get(c.Request().Context(), auth.ActorFrom(c), id)
	if IsUserError(err) {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, err.Error())
	}
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "doctor/consultation", "Consultation", a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Back(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	err := h.svc.UpdateStatus(c.Request().Context(), auth.ActorFrom(c), id, Status(c.FormValue("status")))
	switch {
	case err == nil:
		return view.Back(c, "/doctor/appointments", session.FlashSuccess, "Appointment status updated.")
	case IsUserError(err):
		return view.Back(c, "/doctor/appointments", session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) GenerateMeetingLink(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	back := "/doctor/appointments/" + c.Param("id")
	_, err := h.svc.GenerateMeetingLink(c.Request().Context(), auth.ActorFrom(c), id)
	switch {
	case err == nil:
		return view.Redirect(c, back, session.FlashSuccess, "Meeting link generated. The patient will be reminded before the consultation.")
	case IsUserError(err):
		return view.Redirect(c, back, session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) SaveNotes(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Redirect(c, "/doctor/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	back := "/doctor/appointments/" + c.Param("id")
	err := h.svc.SaveNotes(c.Request().Context(), auth.ActorFrom(c), id, c.FormValue("consultation_notes"))
	switch {
	case err == nil:
		return view.Redirect(c, "/doctor/appointments", session.FlashSuccess, "Consultation notes saved.")
	case errors.Is(err, ErrEmptyNotes):
		return view.Redirect(c, back, session.FlashWarning, "Please enter consultation notes.")
	case IsUserError(err):
		return view.Redirect(c, back, session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) Patients(c echo.Context) error {
	items, err := h.svc.ListPatients(c.Request().Context(), auth.ActorFrom(c).DoctorID)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "doctor/patients", "My patients", items)
}

type schedulePage struct {
	Slots    []*Slot
	Weekdays []string
}

func (h *Handler) Schedule(c echo.Context) error {
	return h.renderSchedule(c, http.StatusOK, nil)
}

func (h *Handler) renderSchedule(c echo.Context, status int, errs []string) error {
	slots, err := h.svc.ListSlots(c.Request().Context(), auth.ActorFrom(c).DoctorID)
	if err != nil {
		return err
	}
	var form map[string]string
	if errs != nil {
		form = view.FormValues(c)
	}
	return view.RenderForm(c, status, "doctor/schedule", "Weekly schedule",
		schedulePage{Slots: slots, Weekdays: Weekdays}, errs, form)
}

func (h *Handler) AddSlot(c echo.Context) error {
	var in SlotInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	_, err := h.svc.AddSlot(c.Request().Context(), auth.ActorFrom(c), in)
	var verrs validation.Errors
	switch {
	case err == nil:
		return view.Redirect(c, "/doctor/schedule", session.FlashSuccess, "Schedule slot added.")
	case errors.As(err, &verrs):
		return h.renderSchedule(c, http.StatusUnprocessableEntity, verrs)
	case IsUserError(err):
		return h.renderSchedule(c, http.StatusUnprocessableEntity, []string{err.Error()})
	}
	return err
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Redirect(c, "/doctor/schedule", session.FlashError, ErrSlotNotFound.Error())
	}
	err := h.svc.DeleteSlot(c.Request().Context(), auth.ActorFrom(c), id)
	switch {
	case err == nil:
		return view.Redirect(c, "/doctor/schedule", session.FlashSuccess, "Schedule slot removed.")
	case IsUserError(err):
		return view.Redirect(c, "/doctor/schedule", session.FlashError, err.Error())
	}
	return err
}

// -- Patient --

func (h *Handler) PatientDashboard(c echo.Context) error {
	upcoming, err := h.svc.Upcoming(c.Request().Context(), Filter{PatientID: auth.ActorFrom(c).UserID}, 5)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/dashboard", "Dashboard", upcoming)
}

func (h *Handler) PatientList(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), auth.ActorFrom(c).UserID, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/appointments", "My appointments", listPage{
		Appointments: items,
		Pager:        pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

func (h *Handler) PatientView(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Redirect(c, "/patient/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	a, err := h.svc.Get(c.Request().Context(), auth.ActorFrom(c), id)
	if IsUserError(err) {
		return view.Redirect(c, "/patient/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/appointment", "Appointment", a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return view.Redirect(c, "/patient/appointments", session.FlashError, ErrAppointmentNotFound.Error())
	}
	err := h.svc.Cancel(c.Request().Context(), auth.ActorFrom(c), id)
	switch {
	case err == nil:
		return view.Redirect(c, "/patient/appointments", session.FlashSuccess, "Appointment cancelled.")
	case IsUserError(err):
		return view.Redirect(c, "/patient/appointments", session.FlashError, err.Error())
	}
	return err
}

type bookPage struct {
	Doctor *BookingDoctor
	Slots  []*Slot
}

func (h *Handler) BookPage(c echo.Context) error {
	id, ok := paramID(c, "doctor")
	if !ok {
		return view.Redirect(c, "/patient/doctors", session.FlashError, ErrDoctorUnavailable.Error())
	}
	return h.renderBook(c, http.StatusOK, id, nil)
}

func (h *Handler) renderBook(c echo.Context, status int, doctorID int64, errs []string) error {
	ctx := c.Request().Context()
	doc, err := h.svc.doctors.BookingInfo(ctx, doctorID)
	if errors.Is(err, ErrDoctorUnavailable) {
		return view.Redirect(c, "/patient/doctors", session.FlashError, err.Error())
	}
	if err != nil {
		return err
	}
	slots, err := h.svc.ListSlots(ctx, doctorID)
	if err != nil {
		return err
	}
	var form map[string]string
	if errs != nil {
		form = view.FormValues(c)
	}
	return view.RenderForm(c, status, "patient/book", "Book an appointment", bookPage{Doctor: doc, Slots: slots}, errs, form)
}

func (h *Handler) Book(c echo.Context) error {
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	_, err := h.svc.Book(c.Request().Context(), auth.ActorFrom(c), in)
	var verrs validation.Errors
	switch {
	case err == nil:
		return view.Redirect(c, "/patient/appointments", session.FlashSuccess,
			"Appointment requested. It stays pending until the doctor schedules it.")
	case errors.Is(err, ErrDoctorUnavailable):
		return view.Redirect(c, "/patient/doctors", session.FlashError, err.Error())
	case errors.As(err, &verrs):
		return h.renderBook(c, http.StatusUnprocessableEntity, in.DoctorID, verrs)
	case IsUserError(err):
		return h.renderBook(c, http.StatusUnprocessableEntity, in.DoctorID, []string{err.Error()})
	}
	return err
}

// -- Admin --

func (h *Handler) AdminList(c echo.Context) error {
	p := pagination.FromContext(c)
	status := c.QueryParam("status")
	items, total, err := h.svc.ListAll(c.Request().Context(), Status(status), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/appointments", "Appointments", listPage{
		Appointments: items,
		Status:       status,
		Statuses:     allStatuses,
		Pager:        pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}
