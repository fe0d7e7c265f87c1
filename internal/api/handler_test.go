package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/service"
	"marketplace-service/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router  *gin.Engine
	handler *Handler
	store   *memStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	keys := &memKeys{keys: map[string]bool{}}
	v := validation.New()
	fee := pricing.DefaultFeeRatePercent

	catalog := service.NewCatalogService(store, &memStats{stats: map[string]*models.ItemStats{}}, v, fee)
	validator := service.NewOrderValidator(store, v, service.BillingRuleSet(service.BillingFieldsExtended), fee)
	checkout := service.NewCheckoutService(store, store, validator, keys, nopPublisher{}, time.Hour)
	reviews := service.NewReviewService(store, store, keys, nopPublisher{}, v, time.Second)
	reconciler := service.NewReconciler(store)

	handler := NewHandler(catalog, checkout, reviews, reconciler)
	router := gin.New()
	handler.SetupRoutes(router, []string{"http://localhost:3000"})
	return &testServer{router: router, handler: handler, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

// seedItem creates a category and an item with one 1000 BDT package at 10% off.
func (s *testServer) seedItem(t *testing.T) (itemID, packageID string) {
	t.Helper()
	w, category := s.do(t, http.MethodPost, "/api/v1/items/categories", gin.H{"categories": "Design"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, item := s.do(t, http.MethodPost, "/api/v1/items", gin.H{
		"item_name":         "Canva Pro",
		"categories_id":     category["id"],
		"short_description": "Design anything",
		"long_description":  "Team plan with brand kit",
		"packages": []gin.H{{
			"package_name": "Monthly",
			"quantity":     1,
			"price":        1000,
			"currency":     "BDT",
			"discount":     10,
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	packages := item["packages"].([]interface{})
	return item["id"].(string), packages[0].(map[string]interface{})["id"].(string)
}

func checkoutBody(itemID, packageID string, grandTotal interface{}) gin.H {
	return gin.H{
		"user_id":        models.NewID(),
		"items":          []gin.H{{"item_id": itemID, "package_id": packageID}},
		"subtotal":       918,
		"total_discount": 0,
		"tax":            0,
		"shipping_cost":  0,
		"grand_total":    grandTotal,
		"payment_method": "bkash",
		"billing_address": gin.H{
			"name": "Rahim", "email": "rahim@example.com", "phone": "01700000000",
			"address_line1": "House 1", "city": "Dhaka", "state": "Dhaka",
			"postal_code": "1207", "country": "BD",
		},
	}
}

func assertDecimal(t *testing.T, want int64, got interface{}) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "decimal is encoded as a string, got %v", got)
	assert.True(t, decimal.RequireFromString(s).Equal(decimal.NewFromInt(want)), "want %d, got %s", want, s)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.AddReadinessCheck("postgres", pingerFunc(func(context.Context) error { return nil }))
	w, _ = s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.AddReadinessCheck("redis", pingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	w, body := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, body["failing"], "redis")
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	itemID, packageID := s.seedItem(t)

	w, order := s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(itemID, packageID, 918), "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "pending", order["status"])
	assertDecimal(t, 918, order["grand_total"])

	lines := order["items"].([]interface{})
	require.Len(t, lines, 1)
	line := lines[0].(map[string]interface{})
	assertDecimal(t, 900, line["sub_total"])
	assertDecimal(t, 18, line["cash_out_fee"])
	assertDecimal(t, 918, line["grand_total"])

	// same key replays the stored order
	w, replay := s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(itemID, packageID, 918), "Idempotency-Key", "key-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, order["id"], replay["id"])

	orderID := order["id"].(string)
	w, got := s.do(t, http.MethodGet, "/api/v1/orders/"+orderID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orderID, got["id"])

	w, list := s.do(t, http.MethodGet, "/api/v1/orders?status=pending", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["payload"], 1)
}

func TestCheckoutErrors(t *testing.T) {
	s := newTestServer(t)
	itemID, packageID := s.seedItem(t)

	w, body := s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(itemID, packageID, 900))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "total_mismatch", body["code"])

	w, body = s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(itemID, packageID, "a lot"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_amount", body["code"])
	assert.Equal(t, []interface{}{"grand_total"}, body["fields"])

	w, body = s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(models.NewID(), packageID, 918))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "item_not_found", body["code"])

	w, body = s.do(t, http.MethodPost, "/api/v1/checkout", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["code"])
}

func TestOrderStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	itemID, packageID := s.seedItem(t)

	_, order := s.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(itemID, packageID, 918))
	orderID := order["id"].(string)

	w, updated := s.do(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", updated["status"])

	_, item := s.do(t, http.MethodGet, "/api/v1/items/"+itemID, nil)
	assert.Equal(t, float64(1), item["total_sold"])

	w, body := s.do(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", gin.H{"status": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "illegal_transition", body["code"])

	w, body = s.do(t, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", body["code"])

	w, body = s.do(t, http.MethodGet, "/api/v1/orders/"+models.NewID(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", body["code"])

	w, body = s.do(t, http.MethodGet, "/api/v1/orders/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", body["code"])
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)
	itemID, packageID := s.seedItem(t)

	w, quote := s.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/packages/"+packageID+"/quote", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assertDecimal(t, 918, quote["pricing"].(map[string]interface{})["grand_total"])

	w, list := s.do(t, http.MethodGet, "/api/v1/items?search=canva&page=1&limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	pagination := list["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["total_data"])
	assert.Nil(t, pagination["previous"])
	assert.Nil(t, pagination["next"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/items?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, categories := s.do(t, http.MethodGet, "/api/v1/items/categories", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	payload := categories["payload"].([]interface{})
	require.Len(t, payload, 1)
	assert.Equal(t, float64(1), payload[0].(map[string]interface{})["items_count"])

	w, stats := s.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, itemID, stats["item_id"])

	w, _ = s.do(t, http.MethodDelete, "/api/v1/items/"+itemID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/v1/items/"+itemID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "item_not_found", body["code"])
}

func TestReviewEndpoints(t *testing.T) {
	s := newTestServer(t)
	itemID, _ := s.seedItem(t)
	user := &models.User{ID: models.NewID(), FullName: "Karim"}
	s.store.users[user.ID] = user

	w, review := s.do(t, http.MethodPost, "/api/v1/items/"+itemID+"/reviews", gin.H{
		"user_id": user.ID, "rating": 4, "message": "Works well",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reviewID := review["id"].(string)

	w, body := s.do(t, http.MethodPost, "/api/v1/items/"+itemID+"/reviews", gin.H{
		"user_id": user.ID, "rating": 5, "message": "Again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_review", body["code"])

	_, list := s.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/reviews", nil)
	assert.Empty(t, list["payload"], "pending reviews are hidden by default")

	w, _ = s.do(t, http.MethodPatch, "/api/v1/items/"+itemID+"/reviews/"+reviewID, gin.H{"isApproved": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, list = s.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/reviews", nil)
	assert.Len(t, list["payload"], 1)
	assert.Equal(t, float64(4), list["avg_rating"])

	w, replied := s.do(t, http.MethodPut, "/api/v1/items/"+itemID+"/reviews/"+reviewID+"/reply", gin.H{"message_reply": "Thanks"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Thanks", replied["message_reply"])

	w, _ = s.do(t, http.MethodDelete, "/api/v1/items/"+itemID+"/reviews/"+reviewID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, list = s.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/reviews?status=all", nil)
	assert.Empty(t, list["payload"])
	assert.Equal(t, float64(0), list["avg_rating"])

	w, body = s.do(t, http.MethodGet, "/api/v1/items/"+itemID+"/reviews?status=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", body["code"])
}

func TestReconcileEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, report := s.do(t, http.MethodPost, "/api/v1/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	corrections := report["corrections"].([]interface{})
	require.Len(t, corrections, 1)
	assert.Equal(t, "items_count", corrections[0].(map[string]interface{})["counter"])
}
