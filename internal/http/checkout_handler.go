package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/discount"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/go-chi/chi/v5"
)

type CheckoutHandler struct {
	svc      *checkout.Service
	resolver *discount.Resolver
}

func NewCheckoutHandler(svc *checkout.Service, resolver *discount.Resolver) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, resolver: resolver}
}

type SessionResponseDTO struct {
	Token     string            `json:"token"`
	Step      string            `json:"step"`
	Email     string            `json:"email,omitempty"`
	Items     []domain.CartItem `json:"items"`
	Discount  *AppliedDTO       `json:"discount,omitempty"`
	Total     pricing.Total     `json:"total"`
	ExpiresAt time.Time         `json:"expires_at"`
}

type AppliedDTO struct {
	Code           string  `json:"code"`
	ResolvedAmount float64 `json:"resolved_amount"`
}

type AddItemRequestDTO struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int32 `json:"quantity"`
}

type ApplyDiscountRequestDTO struct {
	Code string `json:"code"`
}

type ShippingRequestDTO struct {
	Email string `json:"email"`
}

type PaymentWebhookDTO struct {
	SessionToken string `json:"session_token"`
	PaymentID    string `json:"payment_id"`
}

type TotalResponseDTO struct {
	Total pricing.Total `json:"total"`
}

type OrderResponseDTO struct {
	OrderID     string    `json:"order_id"`
	Email       string    `json:"email"`
	TotalAmount float64   `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

func sessionDTO(session *domain.GuestSession, total pricing.Total) SessionResponseDTO {
	dto := SessionResponseDTO{
		Token:     session.Token,
		Step:      session.Step.String(),
		Email:     session.Email,
		Items:     session.Cart.Items,
		Total:     total,
		ExpiresAt: session.ExpiresAt,
	}
	if session.Applied != nil {
		dto.Discount = &AppliedDTO{
			Code:           session.Applied.Code,
			ResolvedAmount: session.Applied.ResolvedAmount,
		}
	}
	return dto
}

// POST /api/v1/checkout/session
func (h *CheckoutHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.StartSession(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionDTO(session, pricing.Total{}))
}

// GET /api/v1/checkout/session
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	session, total, err := h.svc.GetSession(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionDTO(session, total))
}

// POST /api/v1/checkout/cart/items
func (h *CheckoutHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SKU == "" {
		respondError(w, http.StatusBadRequest, "invalid_sku", "sku is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	total, err := h.svc.AddItem(r.Context(), token, domain.CartItem{
		SKU:       req.SKU,
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, TotalResponseDTO{Total: total})
}

// PUT /api/v1/checkout/cart/items/{sku}
func (h *CheckoutHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	sku := chi.URLParam(r, "sku")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	total, err := h.svc.UpdateQuantity(r.Context(), token, sku, req.Quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TotalResponseDTO{Total: total})
}

// DELETE /api/v1/checkout/cart/items/{sku}
func (h *CheckoutHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	total, err := h.svc.RemoveItem(r.Context(), token, chi.URLParam(r, "sku"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TotalResponseDTO{Total: total})
}

// POST /api/v1/checkout/discount
func (h *CheckoutHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	var req ApplyDiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "missing_code", "code is required")
		return
	}

	applied, total, err := h.resolver.Apply(r.Context(), token, req.Code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Discount AppliedDTO    `json:"discount"`
		Total    pricing.Total `json:"total"`
	}{
		Discount: AppliedDTO{Code: applied.Code, ResolvedAmount: applied.ResolvedAmount},
		Total:    total,
	})
}

// DELETE /api/v1/checkout/discount
func (h *CheckoutHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	total, err := h.resolver.Remove(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TotalResponseDTO{Total: total})
}

// GET /api/v1/checkout/total
// Recalculation endpoint: returns the current total without any navigation.
func (h *CheckoutHandler) GetTotal(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	total, err := h.svc.Quote(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TotalResponseDTO{Total: total})
}

// POST /api/v1/checkout/advance
func (h *CheckoutHandler) AdvanceToShipping(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	session, err := h.svc.AdvanceToShipping(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	total, quoteErr := h.svc.Quote(r.Context(), token)
	if quoteErr != nil {
		handleServiceError(w, r, quoteErr)
		return
	}
	respondJSON(w, http.StatusOK, sessionDTO(session, total))
}

// POST /api/v1/checkout/shipping
func (h *CheckoutHandler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	var req ShippingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := h.svc.SubmitEmail(r.Context(), token, req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	total, quoteErr := h.svc.Quote(r.Context(), token)
	if quoteErr != nil {
		handleServiceError(w, r, quoteErr)
		return
	}
	respondJSON(w, http.StatusOK, sessionDTO(session, total))
}

// POST /api/v1/checkout/recover
func (h *CheckoutHandler) Recover(w http.ResponseWriter, r *http.Request) {
	token := getSessionToken(r.Context())
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing_session_token", "X-Session-Token header is required")
		return
	}

	session, total, err := h.svc.Recover(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionDTO(session, total))
}

// POST /api/v1/webhooks/payment
// Alternate delivery path for the payment-success signal; duplicates are
// deduplicated downstream and answered 200 like the first delivery.
func (h *CheckoutHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionToken == "" || req.PaymentID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_token and payment_id are required")
		return
	}

	order, err := h.svc.HandlePaymentSuccess(r.Context(), req.SessionToken, req.PaymentID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderResponseDTO{
		OrderID:     order.ID.String(),
		Email:       order.Email,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	})
}
