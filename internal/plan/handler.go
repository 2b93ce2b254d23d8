package plan

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gympro/internal/api"
	"gympro/internal/logger"
)

type Handler struct {
	catalog Catalog
}

func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// @Summary      List subscription plans
// @Description  Returns the plan catalog ordered for display. The free plan is trial-only and excluded unless include_free=true.
// @Tags         plans
// @Produce      json
// @Param        include_free query bool false "Include the free trial plan"
// @Success      200 {array} plan.Plan
// @Failure      500 {object} api.ErrorResponse
// @Router       /plans [get]
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.catalog.ListPlans(c.Request.Context())
	if err != nil {
		logger.Errorf("Failed to load plan catalog: %v", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load plans"})
		return
	}

	if c.Query("include_free") != "true" {
		visible := make([]Plan, 0, len(plans))
		for _, p := range plans {
			if p.Level == LevelFree {
				continue
			}
			visible = append(visible, p)
		}
		plans = visible
	}

	c.JSON(http.StatusOK, plans)
}
