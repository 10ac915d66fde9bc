package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
)

// Engine validates a discount code against a cart. The external engine's
// response schema is provisional, so the wire DTOs stay private to this
// package and only DiscountOutcome crosses the boundary.
type Engine interface {
	Validate(ctx context.Context, code string, items []domain.CartItem) (*domain.DiscountOutcome, error)
}

type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type validateRequestDTO struct {
	Code  string        `json:"code"`
	Items []cartItemDTO `json:"cart_items"`
}

type cartItemDTO struct {
	SKU       string  `json:"sku"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type validateResponseDTO struct {
	Valid      bool    `json:"valid"`
	Reason     string  `json:"reason,omitempty"`
	Type       string  `json:"type,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	FlatAmount float64 `json:"flat_amount,omitempty"`
}

func (e *HTTPEngine) Validate(ctx context.Context, code string, items []domain.CartItem) (*domain.DiscountOutcome, error) {
	reqItems := make([]cartItemDTO, len(items))
	for i, item := range items {
		reqItems[i] = cartItemDTO{SKU: item.SKU, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}

	body, err := json.Marshal(validateRequestDTO{Code: code, Items: reqItems})
	if err != nil {
		return nil, fmt.Errorf("marshal validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/discounts/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discount engine call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discount engine returned status %d", resp.StatusCode)
	}

	var dto validateResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode validate response: %w", err)
	}

	return mapOutcome(&dto), nil
}

func mapOutcome(dto *validateResponseDTO) *domain.DiscountOutcome {
	out := &domain.DiscountOutcome{
		Valid:      dto.Valid,
		Percentage: dto.Percentage,
		FlatAmount: dto.FlatAmount,
	}

	switch dto.Reason {
	case "EXPIRED":
		out.Reason = domain.DiscountReasonExpired
	case "NOT_APPLICABLE":
		out.Reason = domain.DiscountReasonNotApplicable
	case "INVALID":
		out.Reason = domain.DiscountReasonInvalid
	}

	switch dto.Type {
	case "PERCENTAGE":
		out.Type = domain.DiscountTypePercentage
	case "FLAT":
		out.Type = domain.DiscountTypeFlat
	case "BOTH":
		out.Type = domain.DiscountTypeBoth
	}

	return out
}
