package api

import (
	"net/http"
	"strings"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

var amountFields = map[string]bool{
	"subtotal":       true,
	"total_discount": true,
	"tax":            true,
	"shipping_cost":  true,
	"grand_total":    true,
}

// checkoutTypeReason maps a mistyped checkout field to its validation reason.
func checkoutTypeReason(field string) apperr.Reason {
	switch {
	case amountFields[field]:
		return apperr.ReasonInvalidAmount
	case field == "items" || strings.HasPrefix(field, "items."):
		return apperr.ReasonInvalidItems
	case field == "payment_method":
		return apperr.ReasonInvalidPaymentMethod
	default:
		return apperr.ReasonInvalidInput
	}
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// checkoutOrder captures an order. A repeated Idempotency-Key returns the
// original order with 200 instead of 201.
func (h *Handler) checkoutOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := bindJSON(c, &req, "api.checkoutOrder", checkoutTypeReason); err != nil {
		h.renderError(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if result.Replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, result.Order)
		return
	}
	c.JSON(http.StatusCreated, result.Order)
}

func (h *Handler) listOrders(c *gin.Context) {
	var filter service.OrderFilter
	if err := bindQuery(c, &filter, "api.listOrders"); err != nil {
		h.renderError(c, err)
		return
	}

	page, err := h.checkout.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := bindJSON(c, &req, "api.updateOrderStatus", nil); err != nil {
		h.renderError(c, err)
		return
	}

	order, err := h.checkout.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
