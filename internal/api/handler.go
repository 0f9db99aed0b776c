package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticket-service/internal/service"
	"ticket-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	settlement *service.SettlementService
	sessions   *SessionStore
}

// NewHandler creates a new HTTP handler
func NewHandler(settlement *service.SettlementService, sessions *SessionStore) *Handler {
	return &Handler{
		settlement: settlement,
		sessions:   sessions,
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

	router.POST("/process-payment", h.processPayment)

	api := router.Group("/api")
	{
		api.POST("/retry-payment", h.retryPayment)
		api.GET("/orders/:id", h.getOrder)

		admin := api.Group("/admin", h.requireAdmin())
		admin.GET("/orders", h.listOrders)
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

// processPayment handles a new ticket purchase
func (h *Handler) processPayment(c *gin.Context) {
	var req service.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"errors":  []string{err.Error()},
		})
		return
	}

	result, err := h.settlement.ProcessPayment(c.Request.Context(), c.ClientIP(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeResult(c, result)
}

// retryPayment re-runs the charge for an existing order
func (h *Handler) retryPayment(c *gin.Context) {
	var req service.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
			"errors":  []string{err.Error()},
		})
		return
	}

	result, err := h.settlement.RetryPayment(c.Request.Context(), c.ClientIP(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeResult(c, result)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.settlement.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// listOrders is the admin read-side view of recent orders
func (h *Handler) listOrders(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	orders, err := h.settlement.ListRecentOrders(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// requireAdmin guards admin routes behind the session predicate
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")
		if !h.sessions.Authenticated(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// writeResult maps a settlement result to an HTTP status: 200 for success,
// 429 for a rate-limited attempt, 402 for a declined charge.
func (h *Handler) writeResult(c *gin.Context, result *service.SettlementResult) {
	switch {
	case result.Success:
		c.JSON(http.StatusOK, result)
	case result.RateLimited:
		c.JSON(http.StatusTooManyRequests, result)
	default:
		c.JSON(http.StatusPaymentRequired, result)
	}
}

// writeError maps the service error taxonomy to HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	var validation *service.ValidationError
	var notFound *service.NotFoundError
	var invalidState *service.InvalidStateError
	var persistence *service.PersistenceError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": validation.Reason,
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": err.Error(),
		})
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{
			"success":  false,
			"order_id": invalidState.OrderID,
			"message":  err.Error(),
		})
	case errors.As(err, &persistence):
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Payment could not be processed. Please try again.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Internal error",
		})
	}
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
