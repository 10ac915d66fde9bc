package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/discount"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/orders"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type EngineMock struct {
	outcome *domain.DiscountOutcome
	err     error
}

func (e EngineMock) Validate(ctx context.Context, code string, items []domain.CartItem) (*domain.DiscountOutcome, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.outcome, nil
}

type DispatcherMock struct {
	mu       sync.Mutex
	enqueued map[uuid.UUID]struct{}
}

func (d *DispatcherMock) Enqueue(order *domain.Order, successAt time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enqueued == nil {
		d.enqueued = make(map[uuid.UUID]struct{})
	}
	if _, seen := d.enqueued[order.ID]; seen {
		return false
	}
	d.enqueued[order.ID] = struct{}{}
	return true
}

func (d *DispatcherMock) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.enqueued)
}

type testServer struct {
	router     chi.Router
	clk        *clock.Manual
	dispatcher *DispatcherMock
	sessions   store.SessionStore
}

func newTestServer(t *testing.T, engine discount.Engine) *testServer {
	t.Helper()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sessions := store.NewMemoryStore(30*time.Minute, 24*time.Hour, clk)
	t.Cleanup(func() { sessions.Close() })

	dispatcher := &DispatcherMock{}
	svc := checkout.NewService(sessions, orders.NewMemoryRepository(), dispatcher, clk, pricing.StandardShipping)
	resolver := discount.NewResolver(sessions, engine, pricing.StandardShipping, clk)
	handler := NewCheckoutHandler(svc, resolver)

	return &testServer{
		router:     NewRouter(handler, 5*time.Second),
		clk:        clk,
		dispatcher: dispatcher,
		sessions:   sessions,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	request := httptest.NewRequest(method, path, &buf)
	if token != "" {
		request.Header.Set("X-Session-Token", token)
	}

	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, request)
	return recorder
}

func (ts *testServer) startSession(t *testing.T) string {
	t.Helper()

	recorder := ts.do(t, "POST", "/api/v1/checkout/session", "", nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}

	var response SessionResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Token == "" {
		t.Fatal("Expected a session token")
	}
	return response.Token
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var response ErrorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return response
}

func TestStartSession(t *testing.T) {
	ts := newTestServer(t, EngineMock{})

	recorder := ts.do(t, "POST", "/api/v1/checkout/session", "", nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}

	var response SessionResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Step != "CART" {
		t.Errorf("Expected step CART, got %s", response.Step)
	}
	if response.Token == "" {
		t.Error("Expected a session token")
	}
}

func TestGetSession_MissingToken(t *testing.T) {
	ts := newTestServer(t, EngineMock{})

	recorder := ts.do(t, "GET", "/api/v1/checkout/session", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	if response := decodeError(t, recorder); response.Code != "missing_session_token" {
		t.Errorf("Expected code missing_session_token, got %s", response.Code)
	}
}

func TestGetSession_UnknownToken(t *testing.T) {
	ts := newTestServer(t, EngineMock{})

	recorder := ts.do(t, "GET", "/api/v1/checkout/session", "no-such-token", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
	if response := decodeError(t, recorder); response.Code != "session_not_found" {
		t.Errorf("Expected code session_not_found, got %s", response.Code)
	}
}

func TestAddItem_RecomputesTotal(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	recorder := ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 40.00,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusCreated, recorder.Code, recorder.Body.String())
	}

	var response TotalResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Total.Subtotal != 40.00 {
		t.Errorf("Expected subtotal 40.00, got %.2f", response.Total.Subtotal)
	}
	if response.Total.ShippingCost != pricing.FlatShippingCost {
		t.Errorf("Expected shipping %.2f, got %.2f", pricing.FlatShippingCost, response.Total.ShippingCost)
	}
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	recorder := ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 0, UnitPrice: 40.00,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	if response := decodeError(t, recorder); response.Code != "invalid_quantity" {
		t.Errorf("Expected code invalid_quantity, got %s", response.Code)
	}
}

func TestUpdateAndRemoveItem(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "HAT-1", Name: "wool hat", Quantity: 1, UnitPrice: 15.00,
	})

	recorder := ts.do(t, "PUT", "/api/v1/checkout/cart/items/HAT-1", token, UpdateQuantityRequestDTO{Quantity: 4})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var response TotalResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Total.Subtotal != 60.00 {
		t.Errorf("Expected subtotal 60.00, got %.2f", response.Total.Subtotal)
	}
	if response.Total.ShippingCost != 0 {
		t.Errorf("Expected free shipping above the threshold, got %.2f", response.Total.ShippingCost)
	}

	recorder = ts.do(t, "DELETE", "/api/v1/checkout/cart/items/HAT-1", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}

	recorder = ts.do(t, "DELETE", "/api/v1/checkout/cart/items/HAT-1", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d for a missing item, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestApplyDiscount_Success(t *testing.T) {
	ts := newTestServer(t, EngineMock{outcome: &domain.DiscountOutcome{
		Valid: true, Type: domain.DiscountTypeFlat, FlatAmount: 10.00,
	}})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 60.00,
	})

	recorder := ts.do(t, "POST", "/api/v1/checkout/discount", token, ApplyDiscountRequestDTO{Code: "SAVE10"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	var response struct {
		Discount AppliedDTO    `json:"discount"`
		Total    pricing.Total `json:"total"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Discount.Code != "SAVE10" {
		t.Errorf("Expected code SAVE10, got %s", response.Discount.Code)
	}
	if response.Total.GrandTotal != 50.00 {
		t.Errorf("Expected grand total 50.00, got %.2f", response.Total.GrandTotal)
	}
}

func TestApplyDiscount_InvalidCode(t *testing.T) {
	ts := newTestServer(t, EngineMock{outcome: &domain.DiscountOutcome{
		Valid: false, Reason: domain.DiscountReasonInvalid,
	}})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 60.00,
	})

	recorder := ts.do(t, "POST", "/api/v1/checkout/discount", token, ApplyDiscountRequestDTO{Code: "BOGUS"})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status code %d, got %d", http.StatusUnprocessableEntity, recorder.Code)
	}
	if response := decodeError(t, recorder); response.Code != "discount_invalid" {
		t.Errorf("Expected code discount_invalid, got %s", response.Code)
	}
}

func TestRemoveDiscount(t *testing.T) {
	ts := newTestServer(t, EngineMock{outcome: &domain.DiscountOutcome{
		Valid: true, Type: domain.DiscountTypeFlat, FlatAmount: 10.00,
	}})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 60.00,
	})
	ts.do(t, "POST", "/api/v1/checkout/discount", token, ApplyDiscountRequestDTO{Code: "SAVE10"})

	recorder := ts.do(t, "DELETE", "/api/v1/checkout/discount", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}

	var response TotalResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Total.Discount != 0 {
		t.Errorf("Expected discount 0 after removal, got %.2f", response.Total.Discount)
	}
}

func TestAdvance_EmptyCart(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	recorder := ts.do(t, "POST", "/api/v1/checkout/advance", token, nil)
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected status code %d, got %d", http.StatusConflict, recorder.Code)
	}
	if response := decodeError(t, recorder); response.Code != "empty_cart" {
		t.Errorf("Expected code empty_cart, got %s", response.Code)
	}
}

func TestFullCheckoutFlow(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 60.00,
	})

	recorder := ts.do(t, "POST", "/api/v1/checkout/advance", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Advance: expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	recorder = ts.do(t, "POST", "/api/v1/checkout/shipping", token, ShippingRequestDTO{Email: "guest@example.com"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Shipping: expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var session SessionResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&session); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if session.Step != "PAYMENT" {
		t.Errorf("Expected step PAYMENT, got %s", session.Step)
	}

	// Cart is frozen once payment starts.
	recorder = ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "HAT-1", Name: "wool hat", Quantity: 1, UnitPrice: 15.00,
	})
	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected status code %d for a locked cart, got %d", http.StatusConflict, recorder.Code)
	}

	recorder = ts.do(t, "POST", "/api/v1/webhooks/payment", "", PaymentWebhookDTO{
		SessionToken: token, PaymentID: "pay-123",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Webhook: expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var order OrderResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&order); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if order.Email != "guest@example.com" {
		t.Errorf("Expected order email guest@example.com, got %s", order.Email)
	}
	if order.TotalAmount != 60.00 {
		t.Errorf("Expected total 60.00, got %.2f", order.TotalAmount)
	}

	// A duplicate delivery is answered like the first one, same order.
	recorder = ts.do(t, "POST", "/api/v1/webhooks/payment", "", PaymentWebhookDTO{
		SessionToken: token, PaymentID: "pay-123",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Duplicate webhook: expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var duplicate OrderResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&duplicate); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if duplicate.OrderID != order.OrderID {
		t.Errorf("Expected the same order ID, got %s and %s", order.OrderID, duplicate.OrderID)
	}
	if ts.dispatcher.Count() != 1 {
		t.Errorf("Expected exactly one confirmation dispatch, got %d", ts.dispatcher.Count())
	}
}

func TestPaymentWebhook_AfterSessionTTLStillConfirms(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 60.00,
	})
	ts.do(t, "POST", "/api/v1/checkout/advance", token, nil)
	ts.do(t, "POST", "/api/v1/checkout/shipping", token, ShippingRequestDTO{Email: "guest@example.com"})

	// the TTL lapses while the guest is at the payment gateway
	ts.clk.Advance(31 * time.Minute)

	recorder := ts.do(t, "POST", "/api/v1/webhooks/payment", "", PaymentWebhookDTO{
		SessionToken: token, PaymentID: "pay-late",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var order OrderResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&order); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if order.TotalAmount != 60.00 {
		t.Errorf("Expected total 60.00, got %.2f", order.TotalAmount)
	}
}

func TestPaymentWebhook_MissingFields(t *testing.T) {
	ts := newTestServer(t, EngineMock{})

	recorder := ts.do(t, "POST", "/api/v1/webhooks/payment", "", PaymentWebhookDTO{SessionToken: "tok"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestRecover_ExpiredSession(t *testing.T) {
	ts := newTestServer(t, EngineMock{})
	token := ts.startSession(t)

	ts.do(t, "POST", "/api/v1/checkout/cart/items", token, AddItemRequestDTO{
		SKU: "SHOE-1", Name: "running shoes", Quantity: 1, UnitPrice: 60.00,
	})

	ts.clk.Advance(31 * time.Minute)

	recorder := ts.do(t, "GET", "/api/v1/checkout/session", token, nil)
	if recorder.Code != http.StatusGone {
		t.Fatalf("Expected status code %d, got %d", http.StatusGone, recorder.Code)
	}
	if response := decodeError(t, recorder); response.Code != "session_expired_recoverable" {
		t.Errorf("Expected code session_expired_recoverable, got %s", response.Code)
	}

	recorder = ts.do(t, "POST", "/api/v1/checkout/recover", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Recover: expected status code %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var session SessionResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&session); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(session.Items) != 1 {
		t.Errorf("Expected the cart to survive recovery, got %d items", len(session.Items))
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, EngineMock{})

	recorder := ts.do(t, "GET", "/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
}
