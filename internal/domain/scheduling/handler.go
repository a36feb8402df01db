package scheduling

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
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.POST("/appointments/check-conflict", h.CheckConflict)

	// Booking and rescheduling – front desk and admin
	deskGroup := api.Group("", auth.RequireRole("admin", "receptionist"))
	deskGroup.POST("/appointments", h.BookAppointment)
	deskGroup.PUT("/appointments/:id/reschedule", h.RescheduleAppointment)

	// Status overrides – clinical staff and admin
	clinicalGroup := api.Group("", auth.RequireRole("admin", "clinician", "nurse"))
	clinicalGroup.PUT("/appointments/:id/status", h.SetStatus)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.StatusOf(err), echo.Map{
		"error":   apperr.CodeOf(err),
		"message": apperr.MessageOf(err),
	})
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	appt, err := h.svc.BookAppointment(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("appointment", "book")
	return c.JSON(http.StatusCreated, appt)
}

// CheckConflict is the dry-run the desk calls while a slot is being picked;
// booking repeats the check under the lock.
func (h *Handler) CheckConflict(c echo.Context) error {
	var req ConflictRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	res, err := h.svc.CheckConflict(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// ListAppointments serves the day schedule (?clinician_id=&date=) and the
// per-patient history (?patient_id=).
func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)

	if patientID := c.QueryParam("patient_id"); patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return httpError(apperr.Validation(apperr.CodeValidation, "invalid patient_id"))
		}
		items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	clinicianID := c.QueryParam("clinician_id")
	date := c.QueryParam("date")
	if clinicianID == "" || date == "" {
		return httpError(apperr.Validation(apperr.CodeValidation, "clinician_id and date, or patient_id, are required"))
	}
	cid, err := uuid.Parse(clinicianID)
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid clinician_id"))
	}
	items, err := h.svc.ListByClinicianDay(c.Request().Context(), cid, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), pg.Limit, pg.Offset))
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	appt, err := h.svc.RescheduleAppointment(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("appointment", "reschedule")
	return c.JSON(http.StatusOK, appt)
}

type setStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	appt, err := h.svc.SetStatus(c.Request().Context(), id, req.Status, req.Reason)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("appointment", "status_change")
	return c.JSON(http.StatusOK, appt)
}
