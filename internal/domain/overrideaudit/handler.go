package overrideaudit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/auth"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleSurgeon, auth.RoleProsthodontist))
	g.GET("/episodes/:id/overrides", h.ListByEpisode)
}

func (h *Handler) ListByEpisode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByEpisode(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
