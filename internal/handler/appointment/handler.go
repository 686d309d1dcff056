package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/handler"
	"github.com/jwalitptl/care-scheduling/internal/middleware"
	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/service/appointment"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *appointment.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", h.DeleteAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.POST("/:id/complete", h.auth.RequireRoles(middleware.RoleDoctor, middleware.RoleAdmin), h.CompleteAppointment)
	}

	r.GET("/doctors/:doctor_id/availability", h.Availability)
}

// canAccess: admins see everything, doctors their own bookings, patients
// their own appointments.
func canAccess(p *middleware.Principal, apt *model.Appointment) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleDoctor:
		return p.UserID == apt.DoctorID
	case middleware.RolePatient:
		return p.UserID == apt.PatientID
	}
	return false
}

// load fetches :id and enforces canAccess. Inaccessible appointments are
// reported as missing.
func (h *Handler) load(c *gin.Context) (*model.Appointment, bool) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return nil, false
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return nil, false
	}
	if !canAccess(middleware.CurrentPrincipal(c), apt) {
		handler.Fail(c, errors.NotFound("appointment", nil))
		return nil, false
	}
	return apt, true
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := handler.Bind(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	p := middleware.CurrentPrincipal(c)
	switch p.Role {
	case middleware.RolePatient:
		if req.PatientID == uuid.Nil {
			req.PatientID = p.UserID
		}
		if req.PatientID != p.UserID {
			handler.Fail(c, errors.Forbidden("patients may only book for themselves"))
			return
		}
	case middleware.RoleDoctor:
		if req.DoctorID != p.UserID {
			handler.Fail(c, errors.Forbidden("doctors may only book into their own schedule"))
			return
		}
	}

	apt, err := h.service.CreateAppointment(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondCreated(c, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	apt, ok := h.load(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	var (
		filter model.AppointmentFilter
		err    error
	)
	if filter.PatientID, err = handler.QueryUUID(c, "patient_id"); err != nil {
		handler.Fail(c, err)
		return
	}
	if filter.DoctorID, err = handler.QueryUUID(c, "doctor_id"); err != nil {
		handler.Fail(c, err)
		return
	}
	if status := c.Query("status"); status != "" {
		filter.Status = model.AppointmentStatus(status)
		if !filter.Status.Valid() {
			handler.Fail(c, errors.Validation("invalid status", nil))
			return
		}
	}
	if filter.StartDate, err = handler.QueryDate(c, "start_date"); err != nil {
		handler.Fail(c, err)
		return
	}
	if filter.EndDate, err = handler.QueryDate(c, "end_date"); err != nil {
		handler.Fail(c, err)
		return
	}
	if filter.Pagination, err = handler.QueryPagination(c); err != nil {
		handler.Fail(c, err)
		return
	}

	p := middleware.CurrentPrincipal(c)
	switch p.Role {
	case middleware.RolePatient:
		if filter.PatientID != uuid.Nil && filter.PatientID != p.UserID {
			handler.Fail(c, errors.Forbidden("patients may only list their own appointments"))
			return
		}
		filter.PatientID = p.UserID
	case middleware.RoleDoctor:
		if filter.DoctorID != uuid.Nil && filter.DoctorID != p.UserID {
			handler.Fail(c, errors.Forbidden("doctors may only list their own appointments"))
			return
		}
		filter.DoctorID = p.UserID
	}

	appointments, err := h.service.ListAppointments(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if appointments == nil {
		appointments = []*model.Appointment{}
	}

	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	current, ok := h.load(c)
	if !ok {
		return
	}

	var req model.UpdateAppointmentRequest
	if err := handler.Bind(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	apt, err := h.service.UpdateAppointment(c.Request.Context(), current.ID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	current, ok := h.load(c)
	if !ok {
		return
	}

	if err := h.service.DeleteAppointment(c.Request.Context(), current.ID); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Response{Status: "success", Message: "appointment deleted"})
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	current, ok := h.load(c)
	if !ok {
		return
	}

	var req model.CancelAppointmentRequest
	if err := handler.BindOptional(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	apt, err := h.service.CancelAppointment(c.Request.Context(), current.ID, req.Reason)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	current, ok := h.load(c)
	if !ok {
		return
	}

	var req model.CompleteAppointmentRequest
	if err := handler.BindOptional(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	apt, err := h.service.CompleteAppointment(c.Request.Context(), current.ID, req.Notes)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Availability(c *gin.Context) {
	doctorID, err := handler.ParseID(c, "doctor_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	date := c.Query("date")
	if date == "" {
		handler.Fail(c, errors.Validation("date is required", nil))
		return
	}

	availability, err := h.service.Availability(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, availability)
}
