package analysis

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/salulink/salulink/internal/platform/middleware"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/analyze", h.Analyze)
	api.POST("/authi", h.Authi)
	api.GET("/health", h.Health)
}

func (h *Handler) Analyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		if he, ok := middleware.BodyTooLarge(err); ok {
			return he
		}
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("analyze request rejected")
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":      bindErrorMessage(err),
			"conditions": []string{},
		})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No text provided"})
	}
	return c.JSON(http.StatusOK, h.svc.Analyze(c.Request().Context(), req.Text))
}

func (h *Handler) Authi(c echo.Context) error {
	var req AuthiRequest
	if err := c.Bind(&req); err != nil {
		if he, ok := middleware.BodyTooLarge(err); ok {
			return he
		}
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("authi request rejected")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": bindErrorMessage(err)})
	}
	if req.Condition == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No condition provided"})
	}
	return c.JSON(http.StatusOK, h.svc.Acknowledge(req.Condition, req.Action))
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Health())
}

func bindErrorMessage(err error) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}
