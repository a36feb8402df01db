package frontdesk

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc     *Service
	metrics *telemetry.Provider
}

func NewHandler(svc *Service, metrics *telemetry.Provider) *Handler {
	return &Handler{svc: svc, metrics: metrics}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – all clinic roles
	readGroup := api.Group("", auth.RequireRole("admin", "clinician", "nurse", "receptionist"))
	readGroup.GET("/checkins", h.ListCheckIns)
	readGroup.GET("/checkins/:id", h.GetCheckIn)
	readGroup.GET("/queue", h.ListWaiting)
	readGroup.GET("/queue/board", h.Board)
	readGroup.GET("/queue/:id", h.GetQueueEntry)
	readGroup.GET("/queue/:id/history", h.QueueHistory)

	// Admissions and cancellation – front desk and admin
	deskGroup := api.Group("", auth.RequireRole("admin", "receptionist", "nurse"))
	deskGroup.POST("/checkins/walk-in", h.AdmitWalkIn)
	deskGroup.POST("/checkins/appointment", h.AdmitForAppointment)
	deskGroup.POST("/queue/walk-in", h.AddWalkIn)
	deskGroup.PUT("/queue/:id/cancel", h.CancelQueueEntry)

	// Consult flow – clinical staff and admin
	clinicalGroup := api.Group("", auth.RequireRole("admin", "clinician", "nurse"))
	clinicalGroup.POST("/queue/call-next", h.CallNext)
	clinicalGroup.PUT("/queue/:id/start", h.StartQueueEntry)
	clinicalGroup.PUT("/queue/:id/complete", h.CompleteQueueEntry)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.StatusOf(err), echo.Map{
		"error":   apperr.CodeOf(err),
		"message": apperr.MessageOf(err),
	})
}

func (h *Handler) AdmitWalkIn(c echo.Context) error {
	var req WalkInRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	res, err := h.svc.AdmitWalkIn(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("checkin", "admit_walkin")
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) AdmitForAppointment(c echo.Context) error {
	var req AppointmentCheckInRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	res, err := h.svc.AdmitForAppointment(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("checkin", "admit_appointment")
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetCheckIn(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	ci, err := h.svc.GetCheckIn(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ci)
}

// ListCheckIns serves the day's check-ins, today unless ?date= names
// another day.
func (h *Handler) ListCheckIns(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCheckIns(c.Request().Context(), c.QueryParam("date"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ListWaiting serves the live waiting queue in call order, and keeps the
// queue depth gauge current.
func (h *Handler) ListWaiting(c echo.Context) error {
	items, err := h.svc.ListWaiting(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	h.metrics.HealthMetrics().SetQueueWaiting(int64(len(items)))
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pg.Limit, pg.Offset))
}

// Board serves today's entries in every state, the front-desk dashboard feed.
func (h *Handler) Board(c echo.Context) error {
	items, err := h.svc.Board(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pg.Limit, pg.Offset))
}

func (h *Handler) GetQueueEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	qe, err := h.svc.GetQueueEntry(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, qe)
}

func (h *Handler) QueueHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	items, err := h.svc.QueueHistory(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddWalkIn(c echo.Context) error {
	var req WalkInRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	res, err := h.svc.AddWalkIn(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("queue", "walk_in")
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) CallNext(c echo.Context) error {
	var req CallNextRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	qe, err := h.svc.CallNext(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("queue", "call_next")
	return c.JSON(http.StatusOK, qe)
}

type staffRequest struct {
	StaffID uuid.UUID `json:"staff_id"`
}

func (h *Handler) StartQueueEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var req staffRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	qe, err := h.svc.StartQueueEntry(c.Request().Context(), id, req.StaffID)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("queue", "start")
	return c.JSON(http.StatusOK, qe)
}

func (h *Handler) CompleteQueueEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var req staffRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	qe, err := h.svc.CompleteQueueEntry(c.Request().Context(), id, req.StaffID)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("queue", "complete")
	return c.JSON(http.StatusOK, qe)
}

func (h *Handler) CancelQueueEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	qe, err := h.svc.CancelQueueEntry(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("queue", "cancel")
	return c.JSON(http.StatusOK, qe)
}
