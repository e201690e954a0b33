package identity

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
	svc        *Service
	sessions   *session.Manager
	loginLimit echo.MiddlewareFunc
}

// NewHandler wires the auth pages. loginLimit guards the credential
// endpoints and may be nil.
func NewHandler(svc *Service, sessions *session.Manager, loginLimit echo.MiddlewareFunc) *Handler {
	if loginLimit == nil {
		loginLimit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return &Handler{svc: svc, sessions: sessions, loginLimit: loginLimit}
}

func (h *Handler) RegisterRoutes(public, admin, patient *echo.Group) {
	csrf := session.RequireCSRF(view.CSRFFailure("/login"))
	public.GET("/", h.Home)
	public.GET("/login", h.LoginPage)
	public.POST("/login", h.Login, h.loginLimit, csrf)
	public.POST("/logout", h.Logout, csrf)
	public.GET("/register", h.RegisterPage)
	public.POST("/register", h.Register, h.loginLimit, session.RequireCSRF(view.CSRFFailure("/register")))

	adminCSRF := session.RequireCSRF(view.CSRFFailure("/admin/users"))
	admin.GET("/users", h.ListUsers)
	admin.POST("/users/:id/role", h.ChangeRole, adminCSRF)
	admin.POST("/users/:id/status", h.ChangeStatus, adminCSRF)

	patientCSRF := session.RequireCSRF(view.CSRFFailure("/patient/profile"))
	patient.GET("/profile", h.ProfilePage)
	patient.POST("/profile", h.UpdateProfile, patientCSRF)
}

func (h *Handler) Home(c echo.Context) error {
	s := session.From(c)
	if s.Authenticated() {
		return c.Redirect(http.StatusSeeOther, auth.HomeFor(s.Role))
	}
	return view.Render(c, http.StatusOK, "home", "Welcome", nil)
}

func (h *Handler) LoginPage(c echo.Context) error {
	s := session.From(c)
	if s.Authenticated() {
		return c.Redirect(http.StatusSeeOther, auth.HomeFor(s.Role))
	}
	return view.Render(c, http.StatusOK, "auth/login", "Sign in", nil)
}

func (h *Handler) Login(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")
	form := map[string]string{"email": email}

	if email == "" || password == "" {
		return view.RenderForm(c, http.StatusUnprocessableEntity, "auth/login", "Sign in", nil,
			[]string{"Email and password are required"}, form)
	}

	res, err := h.svc.Authenticate(c.Request().Context(), email, password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return view.RenderForm(c, http.StatusUnauthorized, "auth/login", "Sign in", nil, []string{err.Error()}, form)
	case errors.Is(err, ErrAccountInactive), errors.Is(err, ErrDoctorPending), errors.Is(err, ErrDoctorRejected):
		return view.Redirect(c, "/login", session.FlashWarning, err.Error())
	case err != nil:
		return err
	}

	s := h.sessions.Renew(c)
	u := res.User
	s.SetUser(u.ID, u.Role, u.Name, u.Email, res.DoctorID)
	session.Attach(c, s)
	return view.Redirect(c, auth.HomeFor(u.Role), session.FlashSuccess, "Welcome back, "+u.Name+".")
}

func (h *Handler) Logout(c echo.Context) error {
	s := h.sessions.Destroy(c)
	s.AddFlash(session.FlashInfo, "You have been signed out.")
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) RegisterPage(c echo.Context) error {
	return view.Render(c, http.StatusOK, "auth/register", "Create an account", nil)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	_, err := h.svc.RegisterPatient(c.Request().Context(), in)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) || errors.Is(err, ErrEmailTaken) || errors.Is(err, auth.ErrPasswordTooShort) {
			return view.RenderForm(c, http.StatusUnprocessableEntity, "auth/register", "Create an account", nil,
				validation.Messages(err), view.FormValues(c))
		}
		return err
	}
	return view.Redirect(c, "/login", session.FlashSuccess, "Registration successful. Please sign in.")
}

type usersPage struct {
	Users    []*User
	Filter   UserFilter
	Pager    pagination.Pager
	Roles    []string
	Statuses []string
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	f := UserFilter{Role: c.QueryParam("role"), Status: c.QueryParam("status"), Search: c.QueryParam("q")}

	users, total, err := h.svc.ListUsers(c.Request().Context(), auth.ActorFrom(c), f, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/users", "Users", usersPage{
		Users:    users,
		Filter:   f,
		Pager:    pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
		Roles:    []string{auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin},
		Statuses: []string{StatusActive, StatusInactive, StatusSuspended},
	})
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return view.Redirect(c, "/admin/users", session.FlashError, "Invalid user.")
	}
	err = h.svc.ChangeRole(c.Request().Context(), auth.ActorFrom(c), id, c.FormValue("role"))
	switch {
	case err == nil:
		return view.Back(c, "/admin/users", session.FlashSuccess, "User role updated.")
	case flashable(err):
		return view.Back(c, "/admin/users", session.FlashError, err.Error())
	}
	return err
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return view.Redirect(c, "/admin/users", session.FlashError, "Invalid user.")
	}
	err = h.svc.ChangeStatus(c.Request().Context(), auth.ActorFrom(c), id, c.FormValue("status"))
	switch {
	case err == nil:
		return view.Back(c, "/admin/users", session.FlashSuccess, "User status updated.")
	case flashable(err):
		return view.Back(c, "/admin/users", session.FlashError, err.Error())
	}
	return err
}

// flashable reports whether err is a user-facing outcome rather than a
// server failure.
func flashable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSelfChange) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, auth.ErrForbidden)
}

type profilePage struct {
	User    *User
	Profile *PatientProfile
}

func (h *Handler) ProfilePage(c echo.Context) error {
	u, p, err := h.svc.GetProfile(c.Request().Context(), auth.ActorFrom(c).UserID)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "patient/profile", "My profile", profilePage{User: u, Profile: p})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var in ProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	actor := auth.ActorFrom(c)
	err := h.svc.UpdateProfile(c.Request().Context(), actor.UserID, in)
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		u, p, gerr := h.svc.GetProfile(c.Request().Context(), actor.UserID)
		if gerr != nil {
			return gerr
		}
		return view.RenderForm(c, http.StatusUnprocessableEntity, "patient/profile", "My profile",
			profilePage{User: u, Profile: p}, verrs, view.FormValues(c))
	}
	if err != nil {
		return err
	}
	s := session.From(c)
	s.SetUser(s.UserID, s.Role, in.Name, s.Email, s.DoctorID)
	return view.Redirect(c, "/patient/profile", session.FlashSuccess, "Profile updated.")
}
