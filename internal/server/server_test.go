package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	collectiondomain "github.com/trackvault/trackvault/internal/collection/domain"
	collectionrepository "github.com/trackvault/trackvault/internal/collection/repository"
	collectionservice "github.com/trackvault/trackvault/internal/collection/service"
	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/observability"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	paymentdomain "github.com/trackvault/trackvault/internal/payment/domain"
	paymentrepository "github.com/trackvault/trackvault/internal/payment/repository"
	paymentservice "github.com/trackvault/trackvault/internal/payment/service"
	productdomain "github.com/trackvault/trackvault/internal/product/domain"
	productrepository "github.com/trackvault/trackvault/internal/product/repository"
	productservice "github.com/trackvault/trackvault/internal/product/service"
	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
	raterepository "github.com/trackvault/trackvault/internal/productrate/repository"
	rateservice "github.com/trackvault/trackvault/internal/productrate/service"
	"github.com/trackvault/trackvault/internal/providers/pdf"
	recondomain "github.com/trackvault/trackvault/internal/reconciliation/domain"
	reconrepository "github.com/trackvault/trackvault/internal/reconciliation/repository"
	reconservice "github.com/trackvault/trackvault/internal/reconciliation/service"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
	supplierrepository "github.com/trackvault/trackvault/internal/supplier/repository"
	supplierservice "github.com/trackvault/trackvault/internal/supplier/service"
)

type serverFixture struct {
	engine *gin.Engine
	fake   *clock.FakeClock
	db     *gorm.DB
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&supplierdomain.Supplier{},
		&productdomain.Product{},
		&ratedomain.ProductRate{},
		&collectiondomain.Collection{},
		&paymentdomain.Payment{},
		&recondomain.SupplierBalance{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	supplierSvc := supplierservice.New(supplierservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  supplierrepository.Provide(),
	})
	productSvc := productservice.New(productservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  productrepository.Provide(),
	})
	rateSvc := rateservice.New(rateservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Repo:       raterepository.Provide(),
		ProductSvc: productSvc,
	})
	collectionSvc := collectionservice.New(collectionservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        collectionrepository.Provide(),
		SupplierSvc: supplierSvc,
		ProductSvc:  productSvc,
		RateSvc:     rateSvc,
	})
	reconSvc := reconservice.New(reconservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        reconrepository.Provide(),
		SupplierSvc: supplierSvc,
		Policy:      &config.ReconciliationConfigHolder{},
	})
	paymentSvc := paymentservice.New(paymentservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        paymentrepository.Provide(),
		SupplierSvc: supplierSvc,
		ReconSvc:    reconSvc,
		PDF:         pdf.New(),
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	srv := &Server{
		engine:        engine,
		supplierSvc:   supplierSvc,
		productSvc:    productSvc,
		rateSvc:       rateSvc,
		collectionSvc: collectionSvc,
		paymentSvc:    paymentSvc,
		reconSvc:      reconSvc,
	}
	srv.registerAPIRoutes()

	return &serverFixture{engine: engine, fake: fake, db: db}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	f.engine.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()

	var envelope errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Error
}

func (f *serverFixture) createSupplier(t *testing.T, name string) supplierdomain.Supplier {
	t.Helper()

	resp := f.do(t, http.MethodPost, "/api/suppliers", gin.H{
		"name":   name,
		"email":  strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		"region": "Rift Valley",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var supplier supplierdomain.Supplier
	decodeData(t, resp, &supplier)
	return supplier
}

func (f *serverFixture) createProduct(t *testing.T, name string, units ...string) productdomain.Product {
	t.Helper()

	resp := f.do(t, http.MethodPost, "/api/products", gin.H{
		"name":  name,
		"units": units,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var product productdomain.Product
	decodeData(t, resp, &product)
	return product
}

func (f *serverFixture) addRate(t *testing.T, productID snowflake.ID, rate, unit, from string, to *string) ratedomain.ProductRate {
	t.Helper()

	body := gin.H{
		"rate":           rate,
		"unit":           unit,
		"effective_from": from,
	}
	if to != nil {
		body["effective_to"] = *to
	}
	resp := f.do(t, http.MethodPost, fmt.Sprintf("/api/products/%s/rates", productID), body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var added ratedomain.ProductRate
	decodeData(t, resp, &added)
	return added
}

func strPtr(s string) *string { return &s }

func TestSupplierEndpoints(t *testing.T) {
	f := setupServer(t)

	created := f.createSupplier(t, "Turkana Growers")
	assert.Equal(t, "turkana-growers", created.Code)
	assert.Equal(t, supplierdomain.SupplierStatusActive, created.Status)

	resp := f.do(t, http.MethodGet, "/api/suppliers/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var fetched supplierdomain.Supplier
	decodeData(t, resp, &fetched)
	assert.Equal(t, created.ID, fetched.ID)

	// Duplicate code is a conflict, not a validation failure.
	resp = f.do(t, http.MethodPost, "/api/suppliers", gin.H{
		"name":  "Turkana Growers",
		"email": "second@example.com",
	})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "conflict", decodeError(t, resp).Type)

	resp = f.do(t, http.MethodPatch, "/api/suppliers/"+created.ID.String(), gin.H{
		"status": "INACTIVE",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	var updated supplierdomain.Supplier
	decodeData(t, resp, &updated)
	assert.Equal(t, supplierdomain.SupplierStatusInactive, updated.Status)

	resp = f.do(t, http.MethodGet, "/api/suppliers?status=INACTIVE", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var listed supplierdomain.ListSupplierResponse
	decodeData(t, resp, &listed)
	require.Len(t, listed.Suppliers, 1)
	assert.Equal(t, created.ID, listed.Suppliers[0].ID)

	resp = f.do(t, http.MethodGet, "/api/suppliers/999999", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}

func TestRateResolutionEndpoints(t *testing.T) {
	f := setupServer(t)

	product := f.createProduct(t, "Arabica Cherry", "kg")

	first := f.addRate(t, product.ID, "2.50", "kg", "2024-01-01", strPtr("2024-06-30"))
	assert.True(t, first.Rate.Equal(decimal.RequireFromString("2.50")))

	currentPath := fmt.Sprintf("/api/products/%s/rates/current", product.ID)

	resp := f.do(t, http.MethodGet, currentPath+"?unit=kg&on=2024-03-15", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var resolved ratedomain.ProductRate
	decodeData(t, resp, &resolved)
	assert.Equal(t, first.ID, resolved.ID)

	// Past the bounded interval nothing applies.
	resp = f.do(t, http.MethodGet, currentPath+"?unit=kg&on=2024-07-01", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)

	second := f.addRate(t, product.ID, "2.75", "kg", "2024-07-01", nil)

	resp = f.do(t, http.MethodGet, currentPath+"?unit=kg&on=2024-08-01", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	decodeData(t, resp, &resolved)
	assert.Equal(t, second.ID, resolved.ID)

	// The older interval still answers for its own dates.
	resp = f.do(t, http.MethodGet, currentPath+"?unit=kg&on=2024-03-15", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	decodeData(t, resp, &resolved)
	assert.Equal(t, first.ID, resolved.ID)

	// Overlapping the open-ended rate is rejected.
	resp = f.do(t, http.MethodPost, fmt.Sprintf("/api/products/%s/rates", product.ID), gin.H{
		"rate":           "3.00",
		"unit":           "kg",
		"effective_from": "2024-08-15",
	})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "conflict", decodeError(t, resp).Type)

	resp = f.do(t, http.MethodGet, fmt.Sprintf("/api/products/%s/rates", product.ID), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var rates []ratedomain.ProductRate
	decodeData(t, resp, &rates)
	require.Len(t, rates, 2)
	assert.Equal(t, second.ID, rates[0].ID)

	resp = f.do(t, http.MethodPost, "/api/rates/"+second.ID.String()+"/deactivate", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var deactivated ratedomain.ProductRate
	decodeData(t, resp, &deactivated)
	assert.False(t, deactivated.Active)

	resp = f.do(t, http.MethodGet, currentPath+"?unit=kg&on=2024-08-01", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRateValidationOverHTTP(t *testing.T) {
	f := setupServer(t)

	product := f.createProduct(t, "Macadamia", "kg")
	ratesPath := fmt.Sprintf("/api/products/%s/rates", product.ID)

	resp := f.do(t, http.MethodPost, ratesPath, gin.H{
		"rate":           "5.00",
		"unit":           "crate",
		"effective_from": "2024-01-01",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "unit_not_allowed", payload.Errors[0].Code)
	assert.Equal(t, "unit", payload.Errors[0].Field)

	resp = f.do(t, http.MethodPost, ratesPath, gin.H{
		"rate":           "5.00",
		"unit":           "kg",
		"effective_from": "2024-06-01",
		"effective_to":   "2024-01-01",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload = decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_effective_range", payload.Errors[0].Code)

	resp = f.do(t, http.MethodPost, ratesPath, gin.H{
		"rate":           "5.00",
		"unit":           "kg",
		"effective_from": "not-a-date",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_effective_from", decodeError(t, resp).Errors[0].Code)

	resp = f.do(t, http.MethodPost, "/api/products/999999/rates", gin.H{
		"rate":           "5.00",
		"unit":           "kg",
		"effective_from": "2024-01-01",
	})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCollectionEndpoints(t *testing.T) {
	f := setupServer(t)

	supplier := f.createSupplier(t, "Mau Forest Co-op")
	product := f.createProduct(t, "Raw Honey", "kg")
	f.addRate(t, product.ID, "6.75", "kg", "2024-01-01", nil)

	record := gin.H{
		"supplier_id":     supplier.ID.String(),
		"product_id":      product.ID.String(),
		"unit":            "kg",
		"quantity":        "40",
		"idempotency_key": "device-7-0001",
	}

	resp := f.do(t, http.MethodPost, "/api/collections", record)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var collection collectiondomain.Collection
	decodeData(t, resp, &collection)
	assert.True(t, collection.Amount.Equal(decimal.RequireFromString("270")),
		"amount = quantity x resolved rate, got %s", collection.Amount)
	assert.NotEmpty(t, collection.Receipt)

	// Same idempotency key replays the original recording.
	resp = f.do(t, http.MethodPost, "/api/collections", record)
	require.Equal(t, http.StatusOK, resp.Code)
	var replay collectiondomain.Collection
	decodeData(t, resp, &replay)
	assert.Equal(t, collection.ID, replay.ID)

	resp = f.do(t, http.MethodGet, "/api/collections/receipt/"+collection.Receipt, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var byReceipt collectiondomain.Collection
	decodeData(t, resp, &byReceipt)
	assert.Equal(t, collection.ID, byReceipt.ID)

	resp = f.do(t, http.MethodGet, "/api/collections?supplier_id="+supplier.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var listed collectiondomain.ListCollectionResponse
	decodeData(t, resp, &listed)
	require.Len(t, listed.Collections, 1)

	resp = f.do(t, http.MethodPost, "/api/collections", gin.H{
		"supplier_id": supplier.ID.String(),
		"product_id":  product.ID.String(),
		"unit":        "kg",
		"quantity":    "-1",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_quantity", decodeError(t, resp).Errors[0].Code)

	// No rate on the collection date fails the recording.
	resp = f.do(t, http.MethodPost, "/api/collections", gin.H{
		"supplier_id":  supplier.ID.String(),
		"product_id":   product.ID.String(),
		"unit":         "kg",
		"quantity":     "5",
		"collected_at": "2023-06-01T00:00:00Z",
	})
	require.Equal(t, http.StatusNotFound, resp.Code)

	f.do(t, http.MethodPatch, "/api/suppliers/"+supplier.ID.String(), gin.H{"status": "INACTIVE"})
	resp = f.do(t, http.MethodPost, "/api/collections", gin.H{
		"supplier_id": supplier.ID.String(),
		"product_id":  product.ID.String(),
		"unit":        "kg",
		"quantity":    "5",
	})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "conflict", decodeError(t, resp).Type)
}

func TestPaymentAndBalanceEndpoints(t *testing.T) {
	f := setupServer(t)

	supplier := f.createSupplier(t, "Tana Delta Farmers")
	product := f.createProduct(t, "Arabica Cherry", "kg")
	f.addRate(t, product.ID, "2.50", "kg", "2024-01-01", nil)

	resp := f.do(t, http.MethodPost, "/api/collections", gin.H{
		"supplier_id": supplier.ID.String(),
		"product_id":  product.ID.String(),
		"unit":        "kg",
		"quantity":    "100",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = f.do(t, http.MethodPost, "/api/payments", gin.H{
		"supplier_id": supplier.ID.String(),
		"amount":      "100",
		"method":      "cash",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var payment paymentdomain.Payment
	decodeData(t, resp, &payment)
	assert.Equal(t, paymentdomain.MethodCash, payment.Method)

	resp = f.do(t, http.MethodGet, "/api/suppliers/"+supplier.ID.String()+"/balance", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var balance recondomain.BalanceResponse
	decodeData(t, resp, &balance)
	assert.True(t, balance.CollectedTotal.Equal(decimal.RequireFromString("250")))
	assert.True(t, balance.PaidTotal.Equal(decimal.RequireFromString("100")))
	assert.True(t, balance.Outstanding.Equal(decimal.RequireFromString("150")))

	resp = f.do(t, http.MethodGet, "/api/reconciliation/overview", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var overview []recondomain.BalanceResponse
	decodeData(t, resp, &overview)
	require.Len(t, overview, 1)
	assert.Equal(t, supplier.ID.String(), overview[0].SupplierID)

	resp = f.do(t, http.MethodPost, "/api/payments", gin.H{
		"supplier_id": supplier.ID.String(),
		"amount":      "10",
		"method":      "carrier-pigeon",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_method", decodeError(t, resp).Errors[0].Code)
}

func TestPaymentReceiptPDF(t *testing.T) {
	f := setupServer(t)

	supplier := f.createSupplier(t, "Kivu Coffee Works")

	resp := f.do(t, http.MethodPost, "/api/payments", gin.H{
		"supplier_id": supplier.ID.String(),
		"amount":      "75.50",
		"method":      "BANK_TRANSFER",
		"reference":   "TXN-2024-0917",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var payment paymentdomain.Payment
	decodeData(t, resp, &payment)

	resp = f.do(t, http.MethodGet, "/api/payments/"+payment.ID.String()+"/receipt.pdf", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")),
		"receipt body should be a PDF document")

	resp = f.do(t, http.MethodGet, "/api/payments/999999/receipt.pdf", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMalformedBodyReturnsValidationError(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/suppliers", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.engine.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
}

func TestEngineServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := NewEngine(observability.Config{}, obsmetrics.NewHTTPMetrics())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ok")

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp = httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "trackvault_http_requests_in_flight")
}
