package conditions

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/conditions", h.ListConditions)
	api.GET("/conditions/:name/icd-codes", h.GetICDCodes)
}

func (h *Handler) ListConditions(c echo.Context) error {
	entries := h.catalog.List()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conditions": entries,
		"total":      len(entries),
	})
}

func (h *Handler) GetICDCodes(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid condition name")
	}
	entry, ok := h.catalog.Lookup(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "condition not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"condition": entry.Label,
		"icd_codes": entry.ICDCodes,
	})
}
