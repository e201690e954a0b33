package doctor

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/blobstore"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/validation"
	"github.com/chela967/medicare/internal/platform/view"
	"github.com/chela967/medicare/pkg/pagination"
)

const pendingPath = "/admin/doctors/pending"

type Handler struct {
	svc   *Service
	files blobstore.Store
}

func NewHandler(svc *Service, files blobstore.Store) *Handler {
	return &Handler{svc: svc, files: files}
}

func (h *Handler) RegisterRoutes(public, admin, doctor, patient *echo.Group) {
	public.GET("/register/doctor", h.RegisterPage)
	public.POST("/register/doctor", h.Register, session.RequireCSRF(view.CSRFFailure("/register/doctor")))

	review := session.RequireCSRF(view.CSRFFailure(pendingPath))
	admin.GET("/doctors", h.List)
	admin.GET("/doctors/pending", h.ListPending)
	admin.GET("/doctors/:id/document", h.Document)
	admin.POST("/doctors/:id/approve", h.Approve, review)
	admin.POST("/doctors/:id/reject", h.Reject, review)

	catalog := session.RequireCSRF(view.CSRFFailure("/admin/specialties"))
	admin.GET("/specialties", h.Specialties)
	admin.POST("/specialties", h.CreateSpecialty, catalog)
	admin.POST("/specialties/:id/delete", h.DeleteSpecialty, catalog)

	doctor.GET("/profile", h.ProfilePage)
	doctor.POST("/profile", h.UpdateProfile, session.RequireCSRF(view.CSRFFailure("/doctor/profile")))

	patient.GET("/doctors", h.Directory)
}

type registerPage struct {
	Specialties []*Specialty
}

func (h *Handler) RegisterPage(c echo.Context) error {
	specs, err := h.svc.ListSpecialties(c.Request().Context())
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "auth/register_doctor", "Register as a doctor", registerPage{Specialties: specs})
}

func (h *Handler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	// A missing or unreadable file surfaces as blobstore.ErrNoFile.
	doc, _ := c.FormFile("verification_docs")

	_, err := h.svc.Register(ctx, in, doc)
	if err != nil {
		var msgs []string
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			msgs = verrs
		case blobstore.IsUploadError(err):
			msgs = []string{blobstore.UserMessage(err)}
		case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrSpecialtyNotFound):
			msgs = []string{err.Error()}
		default:
			return err
		}
		specs, serr := h.svc.ListSpecialties(ctx)
		if serr != nil {
			return serr
		}
		return view.RenderForm(c, http.StatusUnprocessableEntity, "auth/register_doctor", "Register as a doctor",
			registerPage{Specialties: specs}, msgs, view.FormValues(c))
	}
	return view.Redirect(c, "/login", session.FlashSuccess,
		"Registration received. You can sign in once an administrator approves your account.")
}

type listPage struct {
	Doctors []*Doctor
	Status  string
	Pager   pagination.Pager
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	status := c.QueryParam("status")
	items, total, err := h.svc.List(c.Request().Context(), status, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/doctors", "Doctors", listPage{
		Doctors: items,
		Status:  status,
		Pager:   pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

func (h *Handler) ListPending(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/doctors_pending", "Pending doctors", listPage{
		Doctors: items,
		Status:  StatusPending,
		Pager:   pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return view.Redirect(c, pendingPath, session.FlashError, "Invalid doctor.")
	}
	err = h.svc.Approve(c.Request().Context(), auth.ActorFrom(c), id)
	if err != nil {
		return h.reviewFailed(c, err)
	}
	return view.Redirect(c, pendingPath, session.FlashSuccess, "Doctor approved.")
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return view.Redirect(c, pendingPath, session.FlashError, "Invalid doctor.")
	}
	err = h.svc.Reject(c.Request().Context(), auth.ActorFrom(c), id, c.FormValue("reason"))
	if err != nil {
		return h.reviewFailed(c, err)
	}
	return view.Redirect(c, pendingPath, session.FlashSuccess, "Doctor registration rejected.")
}

func (h *Handler) reviewFailed(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotPending), errors.Is(err, auth.ErrForbidden):
		return view.Redirect(c, pendingPath, session.FlashError, err.Error())
	}
	h.svc.logger.Error().Err(err).Str("doctor_id", c.Param("id")).Msg("doctor review failed")
	return view.Redirect(c, pendingPath, session.FlashError, "The review could not be saved. Please try again.")
}

func (h *Handler) Document(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	ctx := c.Request().Context()
	d, err := h.svc.VerificationDocument(ctx, auth.ActorFrom(c), id)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case err != nil:
		return err
	}

	rc, err := h.files.Open(ctx, d.VerificationDocs)
	if errors.Is(err, blobstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	ct := mime.TypeByExtension(path.Ext(d.VerificationDocs))
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+path.Base(d.VerificationDocs)+`"`)
	return c.Stream(http.StatusOK, ct, rc)
}

func (h *Handler) Specialties(c echo.Context) error {
	specs, err := h.svc.ListSpecialties(c.Request().Context())
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/specialties", "Specialties", specs)
}

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var in SpecialtyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	_, err := h.svc.CreateSpecialty(c.Request().Context(), auth.ActorFrom(c), in)
	var verrs validation.Errors
	switch {
	case err == nil:
		return view.Redirect(c, "/admin/specialties", session.FlashSuccess, "Specialty added.")
	case errors.As(err, &verrs):
		return view.Redirect(c, "/admin/specialties", session.FlashError, verrs.Error())
	case errors.Is(err, ErrSpecialtyExists), errors.Is(err, auth.ErrForbidden):
		return view.Redirect(c, "/admin/specialties", session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) DeleteSpecialty(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return view.Redirect(c, "/admin/specialties", session.FlashError, "Invalid specialty.")
	}
	err = h.svc.DeleteSpecialty(c.Request().Context(), auth.ActorFrom(c), id)
	switch {
	case err == nil:
		return view.Redirect(c, "/admin/specialties", session.FlashSuccess, "Specialty deleted.")
	case errors.Is(err, ErrSpecialtyInUse), errors.Is(err, ErrSpecialtyNotFound), errors.Is(err, auth.ErrForbidden):
		return view.Redirect(c, "/admin/specialties", session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) ProfilePage(c echo.Context) error {
	d, err := h.svc.Get(c.Request().Context(), auth.ActorFrom(c).DoctorID)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "doctor/profile", "My profile", d)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var in ProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	ctx := c.Request().Context()
	actor := auth.ActorFrom(c)
	err := h.svc.UpdateProfile(ctx, actor, in)
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		d, gerr := h.svc.Get(ctx, actor.DoctorID)
		if gerr != nil {
			return gerr
		}
		return view.RenderForm(c, http.StatusUnprocessableEntity, "doctor/profile", "My profile", d, verrs, view.FormValues(c))
	}
	if err != nil {
		return err
	}
	return view.Redirect(c, "/doctor/profile", session.FlashSuccess, "Profile updated.")
}

type directoryPage struct {
	Doctors     []*Doctor
	Specialties []*Specialty
	Filter      DirectoryFilter
}

func (h *Handler) Directory(c echo.Context) error {
	ctx := c.Request().Context()
	f := DirectoryFilter{Search: c.QueryParam("q")}
	f.SpecialtyID, _ = strconv.ParseInt(c.QueryParam("specialty"), 10, 64)

	doctors, err := h.svc.ListBookable(ctx, f)
	if err != nil {
		return err
	}
	specs, err := h.svc.ListSpecialties(ctx)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/doctors", "Find a doctor", directoryPage{
		Doctors: doctors, Specialties: specs, Filter: f,
	})
}
