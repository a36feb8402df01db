package directory

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
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/staff", h.ListStaff)
	readGroup.GET("/staff/:id", h.GetStaff)
	readGroup.GET("/departments", h.ListDepartments)
	readGroup.GET("/departments/:id", h.GetDepartment)

	// Patient registration – front desk and admin
	deskGroup := api.Group("", auth.RequireRole("admin", "receptionist"))
	deskGroup.POST("/patients", h.CreatePatient)
	deskGroup.PUT("/patients/:id", h.UpdatePatient)

	// Staff and department management – admin only
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/staff", h.CreateStaff)
	adminGroup.PUT("/staff/:id", h.UpdateStaff)
	adminGroup.POST("/departments", h.CreateDepartment)
	adminGroup.PUT("/departments/:id", h.UpdateDepartment)
}

// httpError renders a coded service error as the JSON shape clients key on.
func httpError(err error) error {
	return echo.NewHTTPError(apperr.StatusOf(err), echo.Map{
		"error":   apperr.CodeOf(err),
		"message": apperr.MessageOf(err),
	})
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	created, err := h.svc.CreatePatient(c.Request().Context(), &p)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("patient", "register")
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	if mrn := c.QueryParam("mrn"); mrn != "" {
		p, err := h.svc.GetPatientByMRN(c.Request().Context(), mrn)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse([]*Patient{p}, 1, pg.Limit, pg.Offset))
	}

	params := map[string]string{}
	if v := c.QueryParam("last_name"); v != "" {
		params["last_name"] = v
	}
	if v := c.QueryParam("active"); v != "" {
		params["active"] = v
	}
	if len(params) > 0 {
		items, total, err := h.svc.SearchPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	updated, err := h.svc.UpdatePatient(c.Request().Context(), id, &p)
	if err != nil {
		return httpError(err)
	}
	h.metrics.OperationCounter("patient", "update")
	return c.JSON(http.StatusOK, updated)
}

// -- Staff Handlers --

func (h *Handler) CreateStaff(c echo.Context) error {
	var st Staff
	if err := c.Bind(&st); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	created, err := h.svc.CreateStaff(c.Request().Context(), &st)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	st, err := h.svc.GetStaff(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStaff(c echo.Context) error {
	pg := pagination.FromContext(c)
	if role := c.QueryParam("role"); role != "" {
		items, total, err := h.svc.ListStaffByRole(c.Request().Context(), role, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	items, total, err := h.svc.ListStaff(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateStaff(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var st Staff
	if err := c.Bind(&st); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	updated, err := h.svc.UpdateStaff(c.Request().Context(), id, &st)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// -- Department Handlers --

func (h *Handler) CreateDepartment(c echo.Context) error {
	var d Department
	if err := c.Bind(&d); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	created, err := h.svc.CreateDepartment(c.Request().Context(), &d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDepartments(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid id"))
	}
	var d Department
	if err := c.Bind(&d); err != nil {
		return httpError(apperr.Validation(apperr.CodeValidation, "invalid request body"))
	}
	updated, err := h.svc.UpdateDepartment(c.Request().Context(), id, &d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}
