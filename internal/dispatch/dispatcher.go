package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/clock"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/google/uuid"
)

const (
	// ConfirmationSLA is the delivery deadline measured from payment success
	ConfirmationSLA = 60 * time.Second

	maxSendAttempts    = 5
	sendAttemptTimeout = 10 * time.Second
	baseSendBackoff    = 500 * time.Millisecond

	queueCapacity = 256
)

// Task is one pending confirmation email. Exactly one task exists per order,
// no matter how many times the payment-success signal is delivered.
type Task struct {
	OrderID     uuid.UUID
	TargetEmail string
	Body        string
	SuccessAt   time.Time
	Deadline    time.Time
	Attempts    int
}

// Dispatcher owns the confirmation email queue. Enqueue is idempotent keyed
// by order ID; the worker consumes tasks asynchronously relative to the
// user-facing request path, so the guest sees the confirmation page while
// the email races its own SLA clock.
type Dispatcher struct {
	sender EmailSender
	clock  clock.Clock

	maxAttempts int
	backoff     time.Duration

	mu       sync.Mutex
	enqueued map[uuid.UUID]struct{}
	queue    chan *Task

	// test hooks; default to logging only
	onSLABreach func(orderID uuid.UUID, elapsed time.Duration)
	onFailure   func(orderID uuid.UUID, attempts int, err error)
}

func NewDispatcher(sender EmailSender, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		clock:       clk,
		maxAttempts: maxSendAttempts,
		backoff:     baseSendBackoff,
		enqueued:    make(map[uuid.UUID]struct{}),
		queue:       make(chan *Task, queueCapacity),
	}
}

// Enqueue creates the confirmation task for an order. A duplicate order ID
// is silently deduplicated; the return value reports whether a task was
// actually created.
func (d *Dispatcher) Enqueue(order *domain.Order, successAt time.Time) bool {
	d.mu.Lock()
	if _, exists := d.enqueued[order.ID]; exists {
		d.mu.Unlock()
		log.Printf("confirmation for order %v already enqueued, skipping duplicate", order.ID)
		return false
	}
	d.enqueued[order.ID] = struct{}{}
	d.mu.Unlock()

	task := &Task{
		OrderID:     order.ID,
		TargetEmail: order.Email,
		Body:        renderBody(order),
		SuccessAt:   successAt,
		Deadline:    successAt.Add(ConfirmationSLA),
	}

	select {
	case d.queue <- task:
	default:
		// the queue is deep enough that this means something is badly wrong
		log.Printf("confirmation queue full, dropping task for order %v", order.ID)
		d.fail(task, fmt.Errorf("confirmation queue full"))
		return false
	}
	return true
}

// Run consumes the queue until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case task := <-d.queue:
			d.process(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

// process drives a task to completion: bounded-backoff retries while the
// deadline holds, an SLA-breach event when it does not. The order is never
// rolled back, only the notification guarantee is reported as violated.
func (d *Dispatcher) process(ctx context.Context, task *Task) {
	for {
		task.Attempts++

		sendCtx, cancel := context.WithTimeout(ctx, sendAttemptTimeout)
		err := d.sender.Send(sendCtx, EmailMessage{
			To:      task.TargetEmail,
			Subject: fmt.Sprintf("Your order %s is confirmed", task.OrderID),
			Body:    task.Body,
		})
		cancel()

		now := d.clock.Now()
		elapsed := now.Sub(task.SuccessAt)

		if err == nil {
			if now.After(task.Deadline) {
				d.breach(task, elapsed)
			}
			log.Printf("confirmation for order %v delivered after %v (attempt %d)", task.OrderID, elapsed, task.Attempts)
			return
		}

		log.Printf("confirmation send attempt %d for order %v failed: %v", task.Attempts, task.OrderID, err)

		if now.After(task.Deadline) {
			d.breach(task, elapsed)
			d.fail(task, err)
			return
		}
		if task.Attempts >= d.maxAttempts {
			d.fail(task, err)
			return
		}

		select {
		case <-time.After(time.Duration(task.Attempts) * d.backoff):
		case <-ctx.Done():
			return
		}
	}
}

// breach is operator-visible, never user-visible.
func (d *Dispatcher) breach(task *Task, elapsed time.Duration) {
	log.Printf("ALERT confirmation SLA breached for order %v: %v elapsed since payment success", task.OrderID, elapsed)
	if d.onSLABreach != nil {
		d.onSLABreach(task.OrderID, elapsed)
	}
}

func (d *Dispatcher) fail(task *Task, err error) {
	log.Printf("ALERT confirmation for order %v abandoned after %d attempts: %v", task.OrderID, task.Attempts, err)
	if d.onFailure != nil {
		d.onFailure(task.OrderID, task.Attempts, err)
	}
}

const deliveryEstimate = 5 * 24 * time.Hour

func renderBody(order *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order!\n\n")
	fmt.Fprintf(&b, "Order %s\n\n", order.ID)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %d x %s (%s) @ %.2f %s\n", item.Quantity, item.Name, item.SKU, item.UnitPrice, order.Currency)
	}
	fmt.Fprintf(&b, "\nSubtotal: %.2f %s\n", order.Subtotal, order.Currency)
	fmt.Fprintf(&b, "Shipping: %.2f %s\n", order.ShippingCost, order.Currency)
	if order.DiscountAmount > 0 {
		fmt.Fprintf(&b, "Discount: -%.2f %s\n", order.DiscountAmount, order.Currency)
	}
	fmt.Fprintf(&b, "Total: %.2f %s\n\n", order.TotalAmount, order.Currency)
	fmt.Fprintf(&b, "Estimated delivery: %s\n", order.CreatedAt.Add(deliveryEstimate).Format("Monday, January 2"))
	return b.String()
}
