package audit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.GET("/audit", h.ListEvents)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.StatusOf(err), echo.Map{
		"error":   apperr.CodeOf(err),
		"message": apperr.MessageOf(err),
	})
}

// ListEvents returns the trail newest-first, optionally scoped to one
// entity via ?entity_type=appointment&entity_id=<uuid>.
func (h *Handler) ListEvents(c echo.Context) error {
	pg := pagination.FromContext(c)

	entityType := c.QueryParam("entity_type")
	entityID := c.QueryParam("entity_id")
	if entityType != "" && entityID != "" {
		id, err := uuid.Parse(entityID)
		if err != nil {
			return httpError(apperr.Validation(apperr.CodeValidation, "invalid entity_id"))
		}
		items, total, err := h.svc.ListEventsByEntity(c.Request().Context(), entityType, id, pg.Limit, pg.Offset)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	items, total, err := h.svc.ListEvents(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
