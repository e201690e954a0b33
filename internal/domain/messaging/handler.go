package messaging

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/view"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the JSON endpoints on api and the notification
// pages on inbox, which is expected at /notifications. Both groups require
// a signed-in user.
func (h *Handler) RegisterRoutes(api, inbox *echo.Group) {
	api.GET("/appointments/:id/messages", h.Thread)
	api.POST("/appointments/:id/messages", h.Send, session.RequireCSRF(view.CSRFFailure("/")))
	api.GET("/notifications/unread", h.UnreadCount)

	inbox.GET("", h.Notifications)
	inbox.POST("/read", h.MarkAllRead, session.RequireCSRF(view.CSRFFailure("/notifications")))
}

func appointmentID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// jsonError maps service errors onto the JSON envelope.
func (h *Handler) jsonError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong):
		return view.JSONError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, ErrAppointmentNotFound):
		return view.JSONError(c, http.StatusForbidden, "You do not have access to this conversation.")
	}
	h.svc.logger.Error().Err(err).Str("path", c.Path()).Msg("messaging request failed")
	return view.JSONError(c, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

func (h *Handler) Send(c echo.Context) error {
	id, ok := appointmentID(c)
	if !ok {
		return view.JSONError(c, http.StatusBadRequest, "Invalid appointment.")
	}
	m, err := h.svc.Send(c.Request().Context(), auth.ActorFrom(c), id, c.FormValue("message"))
	if err != nil {
		return h.jsonError(c, err)
	}
	return view.JSONOK(c, "message", m)
}

func (h *Handler) Thread(c echo.Context) error {
	id, ok := appointmentID(c)
	if !ok {
		return view.JSONError(c, http.StatusBadRequest, "Invalid appointment.")
	}
	msgs, err := h.svc.Thread(c.Request().Context(), auth.ActorFrom(c), id)
	if err != nil {
		return h.jsonError(c, err)
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return view.JSONOK(c, "messages", msgs)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	n, err := h.svc.UnreadCount(c.Request().Context(), auth.ActorFrom(c).UserID)
	if err != nil {
		return h.jsonError(c, err)
	}
	return view.JSONOK(c, "unread", n)
}

func (h *Handler) Notifications(c echo.Context) error {
	items, err := h.svc.ListNotifications(c.Request().Context(), auth.ActorFrom(c).UserID)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "notifications", "Notifications", items)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	if _, err := h.svc.MarkAllRead(c.Request().Context(), auth.ActorFrom(c).UserID); err != nil {
		return err
	}
	return view.Redirect(c, "/notifications", session.FlashSuccess, "All notifications marked as read.")
}
