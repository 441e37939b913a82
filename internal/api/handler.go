package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/upstream"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orchestrator *service.Orchestrator
	ledgers      *service.LedgerStore
	cartAPI      *upstream.CartAPI
	serviceAPI   *upstream.ServiceAPI
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orchestrator *service.Orchestrator,
	ledgers *service.LedgerStore,
	cartAPI *upstream.CartAPI,
	serviceAPI *upstream.ServiceAPI,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		ledgers:      ledgers,
		cartAPI:      cartAPI,
		serviceAPI:   serviceAPI,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:productId", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)

		v1.GET("/services/:id/slots", h.getServiceSlots)

		v1.POST("/checkout/sessions", h.startSession)
		v1.GET("/checkout/sessions/:id", h.getSession)
		v1.PUT("/checkout/sessions/:id/fields", h.updateFields)
		v1.GET("/checkout/sessions/:id/draft", h.getDraft)
		v1.POST("/checkout/sessions/:id/retry", h.retrySession)
		v1.POST("/checkout/sessions/:id/confirm", h.confirmSession)
		v1.DELETE("/checkout/sessions/:id", h.abandonSession)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// bearer extracts the shopper credential; an absent credential is an
// unauthorized failure with a login redirect, never a retry
func bearer(c *gin.Context) (string, bool) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":          "Your session has expired. Please sign in again to continue.",
			"class":          string(upstream.ClassUnauthorized),
			"login_required": true,
		})
		return "", false
	}
	return token, true
}

// respondError maps a classified failure to an HTTP status plus a
// distinct, actionable message and recovery affordances
func respondError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found"})
		return
	}

	ue := upstream.AsError(err)
	status := http.StatusInternalServerError
	switch ue.Class {
	case upstream.ClassValidation:
		status = http.StatusBadRequest
	case upstream.ClassUnauthorized:
		status = http.StatusUnauthorized
	case upstream.ClassNetwork:
		status = http.StatusGatewayTimeout
	case upstream.ClassServer, upstream.ClassMissingSecret:
		status = http.StatusBadGateway
	case upstream.ClassConfirmFailed:
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error":          ue.UserMessage(),
		"class":          string(ue.Class),
		"can_retry":      ue.Class != upstream.ClassUnauthorized && ue.Class != upstream.ClassValidation,
		"login_required": ue.Class == upstream.ClassUnauthorized,
	})
}

type cartResponse struct {
	Lines    []models.CartLine   `json:"lines"`
	Metadata models.CartMetadata `json:"metadata"`
	Summary  models.OrderSummary `json:"summary"`
	// SyncError reports a failed server synchronization of a local
	// mutation; the local change stands until the next reconcile.
	SyncError string `json:"sync_error,omitempty"`
}

func (h *Handler) cartResponseFor(ledger *service.CartLedger, syncErr error) cartResponse {
	resp := cartResponse{
		Lines:    ledger.Lines(),
		Metadata: ledger.Metadata(),
		Summary:  service.ProjectSummary(ledger.Lines(), ledger.Metadata()),
	}
	if syncErr != nil {
		util.CartSyncFailures.Inc()
		resp.SyncError = upstream.AsError(syncErr).UserMessage()
	}
	return resp
}

// getCart is the cart-page entry point: the server cart replaces the
// local ledger wholesale
func (h *Handler) getCart(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		return
	}

	serverCart, err := h.cartAPI.GetCart(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	ledger := h.ledgers.ForShopper(token)
	ledger.Reconcile(serverCart)

	c.JSON(http.StatusOK, h.cartResponseFor(ledger, nil))
}

type addItemRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Title     string `json:"title" binding:"required"`
	UnitPrice int64  `json:"unit_price" binding:"required"`
	Quantity  int    `json:"quantity"`
	ImageRef  string `json:"image_ref"`
}

// addCartItem applies the mutation locally for immediate feedback, then
// syncs the server cart best-effort
func (h *Handler) addCartItem(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ledger := h.ledgers.ForShopper(token)
	stored := ledger.Add(models.CartLine{
		ProductID: req.ProductID,
		Title:     req.Title,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
		ImageRef:  req.ImageRef,
	})

	_, syncErr := h.cartAPI.AddItem(c.Request.Context(), token, req.ProductID, stored.Quantity)

	resp := h.cartResponseFor(ledger, syncErr)
	c.JSON(http.StatusOK, gin.H{
		"cart":    resp,
		"clamped": req.Quantity < 1,
	})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// updateCartItem sets a quantity; anything below 1 removes the line
func (h *Handler) updateCartItem(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		return
	}

	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ledger := h.ledgers.ForShopper(token)
	removed, found := ledger.UpdateQuantity(productID, req.Quantity)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart line not found"})
		return
	}

	_, syncErr := h.cartAPI.UpdateItem(c.Request.Context(), token, productID, req.Quantity)

	c.JSON(http.StatusOK, gin.H{
		"cart":    h.cartResponseFor(ledger, syncErr),
		"removed": removed,
	})
}

// removeCartItem deletes a line by server line id, or product id for
// pre-sync lines
func (h *Handler) removeCartItem(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		return
	}

	id := c.Param("id")
	ledger := h.ledgers.ForShopper(token)
	if !ledger.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart line not found"})
		return
	}

	_, syncErr := h.cartAPI.RemoveItem(c.Request.Context(), token, id)

	c.JSON(http.StatusOK, gin.H{
		"cart": h.cartResponseFor(ledger, syncErr),
	})
}

// getServiceSlots flattens a service's published availability into a
// selectable slot list
func (h *Handler) getServiceSlots(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		return
	}

	serviceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid service ID"})
		return
	}

	detail, err := h.serviceAPI.GetService(c.Request.Context(), token, serviceID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service_id":   detail.ID,
		"title":        detail.Title,
		"price":        detail.Price,
		"home_service": detail.HomeService,
		"slots":        service.FlattenSchedule(detail.Availability),
	})
}

// startSession opens a checkout session
func (h *Handler) startSession(c *gin.Context) {
	token, ok := bearer(c)
	if !ok {
		return
	}

	var target models.CheckoutTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.orchestrator.StartSession(c.Request.Context(), token, target)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// getSession returns the session snapshot
func (h *Handler) getSession(c *gin.Context) {
	if _, ok := bearer(c); !ok {
		return
	}

	view, err := h.orchestrator.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// updateFields merges the contact/shipping form state and persists the
// draft
func (h *Handler) updateFields(c *gin.Context) {
	if _, ok := bearer(c); !ok {
		return
	}

	var update service.FieldsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.orchestrator.UpdateFields(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getDraft returns the persisted field draft for a session
func (h *Handler) getDraft(c *gin.Context) {
	if _, ok := bearer(c); !ok {
		return
	}

	draft, err := h.orchestrator.LoadDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No draft saved for this session"})
		return
	}
	c.JSON(http.StatusOK, draft)
}

// retrySession is the manual "try again" affordance
func (h *Handler) retrySession(c *gin.Context) {
	if _, ok := bearer(c); !ok {
		return
	}

	view, err := h.orchestrator.ManualRetry(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type confirmRequest struct {
	ConfirmationToken string `json:"confirmation_token"`
}

// confirmSession submits the confirmation step
func (h *Handler) confirmSession(c *gin.Context) {
	if _, ok := bearer(c); !ok {
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.orchestrator.Confirm(c.Param("id"), req.ConfirmationToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// abandonSession closes the session and cancels pending retries
func (h *Handler) abandonSession(c *gin.Context) {
	if _, ok := bearer(c); !ok {
		return
	}

	if err := h.orchestrator.Abandon(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
