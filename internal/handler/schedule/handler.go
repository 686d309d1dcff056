package schedule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/care-scheduling/internal/handler"
	"github.com/jwalitptl/care-scheduling/internal/middleware"
	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/internal/service/schedule"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/httputil"
)

type Handler struct {
	service *schedule.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *schedule.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	manage := h.auth.RequireRoles(middleware.RoleDoctor, middleware.RoleAdmin)

	doctors := r.Group("/doctors/:doctor_id/schedules")
	{
		doctors.POST("", manage, h.CreateSchedule)
		doctors.GET("", h.ListSchedules)
		doctors.POST("/block", manage, h.BlockTime)
	}

	schedules := r.Group("/schedules")
	{
		schedules.GET("/:id", h.GetSchedule)
		schedules.PUT("/:id", manage, h.UpdateSchedule)
		schedules.DELETE("/:id", manage, h.DeleteSchedule)
	}
}

// doctorParam reads :doctor_id and checks the caller may manage it.
func (h *Handler) doctorParam(c *gin.Context) (uuid.UUID, bool) {
	doctorID, err := handler.ParseID(c, "doctor_id")
	if err != nil {
		handler.Fail(c, err)
		return uuid.Nil, false
	}
	if !middleware.CurrentPrincipal(c).Owns(doctorID) {
		handler.Fail(c, errors.Forbidden("doctors may only manage their own schedule"))
		return uuid.Nil, false
	}
	return doctorID, true
}

// owned loads the entry at :id and checks the caller may manage it.
func (h *Handler) owned(c *gin.Context) (*model.ScheduleEntry, bool) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return nil, false
	}
	entry, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return nil, false
	}
	if !middleware.CurrentPrincipal(c).Owns(entry.DoctorID) {
		handler.Fail(c, errors.Forbidden("doctors may only manage their own schedule"))
		return nil, false
	}
	return entry, true
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	doctorID, ok := h.doctorParam(c)
	if !ok {
		return
	}

	var req model.CreateScheduleRequest
	if err := handler.Bind(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	entries, err := h.service.CreateSchedule(c.Request.Context(), doctorID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondCreated(c, entries)
}

func (h *Handler) ListSchedules(c *gin.Context) {
	doctorID, err := handler.ParseID(c, "doctor_id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var filter model.ScheduleFilter
	if filter.Date, err = handler.QueryDate(c, "date"); err != nil {
		handler.Fail(c, err)
		return
	}
	if filter.StartDate, err = handler.QueryDate(c, "start_date"); err != nil {
		handler.Fail(c, err)
		return
	}
	if filter.EndDate, err = handler.QueryDate(c, "end_date"); err != nil {
		handler.Fail(c, err)
		return
	}
	if filter.IsAvailable, err = handler.QueryBool(c, "is_available"); err != nil {
		handler.Fail(c, err)
		return
	}
	includePast, err := handler.QueryBool(c, "include_past")
	if err != nil {
		handler.Fail(c, err)
		return
	}
	filter.IncludePast = includePast != nil && *includePast

	entries, err := h.service.ListSchedules(c.Request.Context(), doctorID, filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if entries == nil {
		entries = []*model.ScheduleEntry{}
	}

	httputil.RespondWithSuccess(c, entries)
}

func (h *Handler) GetSchedule(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	entry, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, entry)
}

func (h *Handler) UpdateSchedule(c *gin.Context) {
	entry, ok := h.owned(c)
	if !ok {
		return
	}

	var req model.UpdateScheduleRequest
	if err := handler.Bind(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	updated, err := h.service.UpdateSchedule(c.Request.Context(), entry.ID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) DeleteSchedule(c *gin.Context) {
	entry, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSchedule(c.Request.Context(), entry.ID); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Response{Status: "success", Message: "schedule deleted"})
}

func (h *Handler) BlockTime(c *gin.Context) {
	doctorID, ok := h.doctorParam(c)
	if !ok {
		return
	}

	var req model.BlockTimeRequest
	if err := handler.Bind(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	result, err := h.service.BlockTime(c.Request.Context(), doctorID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result)
}
