package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/segmentio/kafka-go"
)

// Topic carries payment-success signals from the payment collaborator
const Topic = "payment-success"

// PaymentSucceededEvent is the payment service's signal that a charge for a
// checkout session went through.
type PaymentSucceededEvent struct {
	SessionToken string `json:"session_token"`
	PaymentID    string `json:"payment_id"`
}

// Confirmer is the checkout state machine's terminal transition. It must be
// idempotent: the broker delivers at least once.
type Confirmer interface {
	HandlePaymentSuccess(ctx context.Context, token, paymentID string) (*domain.Order, error)
}

type Consumer struct {
	confirmer Confirmer
	reader    *kafka.Reader
}

func NewConsumer(confirmer Confirmer, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  "guest-checkout",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{confirmer: confirmer, reader: reader}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	err := c.reader.Close()
	if err != nil {
		fmt.Printf("error closing kafka reader: %v\n", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("error reading payment message: %v", err)
		return
	}
	c.handleMessage(ctx, m.Value)
}

func (c *Consumer) handleMessage(ctx context.Context, value []byte) {
	var event PaymentSucceededEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("error parsing payment message: %v", err)
		return
	}

	if event.SessionToken == "" || event.PaymentID == "" {
		log.Printf("payment message missing session_token or payment_id, skipping")
		return
	}

	order, err := c.confirmer.HandlePaymentSuccess(ctx, event.SessionToken, event.PaymentID)
	if err != nil {
		log.Printf("failed to confirm session %s for payment %s: %v", event.SessionToken, event.PaymentID, err)
		return
	}

	log.Printf("order %v confirmed for session %s (payment %s)", order.ID, event.SessionToken, event.PaymentID)
}
