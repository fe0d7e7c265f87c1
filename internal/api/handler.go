package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	catalog    *service.CatalogService
	checkout   *service.CheckoutService
	reviews    *service.ReviewService
	reconciler *service.Reconciler
	readiness  map[string]Pinger
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	checkout *service.CheckoutService,
	reviews *service.ReviewService,
	reconciler *service.Reconciler,
) *Handler {
	return &Handler{
		catalog:    catalog,
		checkout:   checkout,
		reviews:    reviews,
		reconciler: reconciler,
		readiness:  make(map[string]Pinger),
		logger:     util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency for /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.readiness[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, allowedOrigins []string) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "Idempotency-Key"},
			AllowCredentials: true,
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/items/categories", h.createCategory)
		v1.GET("/items/categories", h.listCategories)
		v1.GET("/items/categories/:id", h.getCategory)

		v1.POST("/items", h.createItem)
		v1.GET("/items", h.listItems)
		v1.GET("/items/:id", h.getItem)
		v1.PUT("/items/:id", h.updateItem)
		v1.DELETE("/items/:id", h.deleteItem)
		v1.GET("/items/:id/stats", h.itemStats)
		v1.GET("/items/:id/packages/:package_id/quote", h.quotePackage)

		v1.POST("/items/:id/reviews", h.addReview)
		v1.GET("/items/:id/reviews", h.listReviews)
		v1.PATCH("/items/:id/reviews/:review_id", h.moderateReview)
		v1.PUT("/items/:id/reviews/:review_id/reply", h.replyToReview)
		v1.DELETE("/items/:id/reviews/:review_id", h.removeReview)

		v1.POST("/checkout", h.checkoutOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)

		v1.POST("/admin/reconcile", h.reconcile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every registered dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"failing": failing,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// reconcile runs the counter reconciliation pass on demand
func (h *Handler) reconcile(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation: http.StatusBadRequest,
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindState:      http.StatusConflict,
	apperr.KindIntegrity:  http.StatusUnprocessableEntity,
}

// renderError writes err as {"error", "code", "fields"}; unknown errors are 500s
func (h *Handler) renderError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "internal server error",
			"code":   "internal",
			"fields": []string{},
		})
		return
	}

	status, ok := kindStatus[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	fields := appErr.Fields
	if fields == nil {
		fields = []string{}
	}
	message := appErr.Message
	if message == "" {
		message = string(appErr.Reason)
	}
	c.JSON(status, gin.H{
		"error":  message,
		"code":   appErr.Reason,
		"fields": fields,
	})
}

// bindJSON decodes the body into dst. A mistyped field is reported by name
// with the reason typeReason picks for it.
func bindJSON(c *gin.Context, dst interface{}, op string, typeReason func(field string) apperr.Reason) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		reason := apperr.ReasonInvalidInput
		if typeReason != nil {
			reason = typeReason(typeErr.Field)
		}
		return apperr.Validation(reason, op,
			fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type), typeErr.Field).Wrap(err)
	}
	return apperr.Validation(apperr.ReasonInvalidInput, op, "invalid request body").Wrap(err)
}

func bindQuery(c *gin.Context, dst interface{}, op string) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return apperr.Validation(apperr.ReasonInvalidInput, op, "invalid query parameters").Wrap(err)
	}
	return nil
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
