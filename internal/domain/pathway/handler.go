package pathway

import (
	"net/http"
	"time"

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
	g := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleSurgeon, auth.RoleProsthodontist))
	g.GET("/pathways", h.List)
	g.GET("/pathways/:id", h.Get)
	g.POST("/pathways", h.Create)
	g.PUT("/pathways/:id", h.Update)
	g.DELETE("/pathways/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var p Pathway
	if err := c.Bind(&p); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// updateRequest carries the edit plus the updated_at the caller last
// observed, for the optimistic check.
type updateRequest struct {
	Pathway
	ExpectedUpdatedAt time.Time `json:"updated_at"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.JSON(c, apperr.Validation("invalid request body"))
	}
	req.Pathway.ID = id
	p, err := h.svc.Update(c.Request().Context(), &req.Pathway, req.ExpectedUpdatedAt)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.JSON(c, apperr.Validation("invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.JSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
