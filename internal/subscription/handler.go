package subscription

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"gympro/internal/api"
	"gympro/internal/auth"
	"gympro/internal/logger"
	"gympro/internal/plan"
)

type Handler struct {
	service Service
}

func NewHandler(db *sqlx.DB, catalog plan.Catalog) *Handler {
	return &Handler{
		service: NewService(NewRepository(db), catalog),
	}
}

type changeRequest struct {
	PlanID       string `json:"plan_id" binding:"required"`
	BillingCycle string `json:"billing_cycle" binding:"required,oneof=monthly yearly oneTime"`
	Currency     string `json:"currency" binding:"omitempty,len=3"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// @Summary      Current subscription
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} subscription.Subscription
// @Failure      404 {object} api.ErrorResponse
// @Router       /billing/subscription [get]
func (h *Handler) GetMy(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	sub, err := h.service.Current(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("Failed to load subscription for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load subscription"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no active subscription"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// @Summary      Preview a plan change
// @Description  Returns whether the candidate plan/cycle can be selected and how the change classifies. Blocked selections are a regular 200, not an error.
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body subscription.changeRequest true "Candidate plan and cycle"
// @Success      200 {object} subscription.Preview
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /billing/preview [post]
func (h *Handler) PreviewChange(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req changeRequest
	if !api.BindJSON(c, &req) {
		return
	}

	preview, err := h.service.PreviewChange(c.Request.Context(), userID, req.PlanID, plan.BillingCycle(req.BillingCycle))
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// @Summary      Subscribe or upgrade immediately
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body subscription.changeRequest true "Plan, cycle and currency"
// @Success      201 {object} subscription.Subscription
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /billing/subscribe [post]
func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req changeRequest
	if !api.BindJSON(c, &req) {
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	email := c.GetString("user_email")
	sub, err := h.service.Subscribe(c.Request.Context(), userID, email, req.PlanID, plan.BillingCycle(req.BillingCycle), currency)
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// @Summary      Schedule a downgrade or switch-down
// @Description  The change takes effect at the current period end; entitlements are unchanged until then.
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body subscription.changeRequest true "Target plan and cycle"
// @Success      200 {object} subscription.Subscription
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /billing/downgrade [post]
func (h *Handler) Downgrade(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req changeRequest
	if !api.BindJSON(c, &req) {
		return
	}

	sub, err := h.service.ScheduleDowngrade(c.Request.Context(), userID, req.PlanID, plan.BillingCycle(req.BillingCycle))
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// @Summary      Cancel at period end
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body subscription.cancelRequest false "Optional cancellation reason"
// @Success      200 {object} subscription.Subscription
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /billing/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	sub, err := h.service.Cancel(c.Request.Context(), userID, req.Reason)
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// @Summary      Reactivate a cancelled subscription
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} subscription.Subscription
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /billing/reactivate [post]
func (h *Handler) Reactivate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	sub, err := h.service.Reactivate(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// @Summary      Cancel a scheduled plan change
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} subscription.Subscription
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /billing/pending-change/cancel [post]
func (h *Handler) CancelPendingChange(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	sub, err := h.service.CancelPendingChange(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// @Summary      Time remaining in the current period
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} subscription.Countdown
// @Failure      404 {object} api.ErrorResponse
// @Router       /billing/subscription/time-remaining [get]
func (h *Handler) TimeRemaining(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	countdown, err := h.service.TimeRemaining(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, countdown)
}

// @Summary      Subscription history
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        limit query int false "Maximum entries to return"
// @Success      200 {array} subscription.History
// @Router       /billing/history [get]
func (h *Handler) ListHistory(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.service.History(c.Request.Context(), userID, limit)
	if err != nil {
		logger.Errorf("Failed to load history for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *Handler) respondError(c *gin.Context, userID int, err error) {
	var blocked *BlockedError
	switch {
	case errors.As(err, &blocked):
		c.JSON(http.StatusConflict, gin.H{
			"error":     blocked.Error(),
			"available": false,
			"reason":    blocked.Decision.Reason,
		})
	case errors.Is(err, plan.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "plan not found"})
	case errors.Is(err, ErrNoActiveSubscription):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no active subscription"})
	case errors.Is(err, ErrCycleMismatch),
		errors.Is(err, ErrNotADowngrade),
		errors.Is(err, ErrUseDowngradeEndpoint),
		errors.Is(err, ErrNoPeriodEnd):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrPendingChangeExists),
		errors.Is(err, ErrNoPendingChange),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrNotCancelled):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		logger.Errorf("Billing request failed for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}
