/**
 * @description
 * Domain models for the payment ledger. An OrderRecord captures a single payment
 * attempt against a membership; the gateway identifiers arrive asynchronously
 * via the payment callback.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the terminal-state machine for a payment attempt.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderRecord is one payment attempt tied to a membership. It maps directly to
// the `orders` table. Zero or more orders exist per membership; at most one may
// be paid on the gateway path (manual memberships carry no order at all).
type OrderRecord struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	MembershipID     uuid.UUID   `json:"membership_id" db:"membership_id"`
	UserID           uuid.UUID   `json:"user_id" db:"user_id"`
	Amount           int64       `json:"amount" db:"amount"` // in paise
	Currency         string      `json:"currency" db:"currency"`
	Status           OrderStatus `json:"status" db:"status"`
	GatewayOrderID   *string     `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string     `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	InvoiceURL       *string     `json:"invoice_url,omitempty" db:"invoice_url"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// CallbackOutcome is the gateway's reported result for a payment attempt.
type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeFailure CallbackOutcome = "failure"
)

// PaymentCallback is the payload delivered by the payment gateway once a
// checkout completes. Success callbacks are authenticated by an HMAC signature
// over "<gateway_order_id>|<gateway_payment_id>"; the reported amount must also
// match the order before any state is mutated.
type PaymentCallback struct {
	GatewayOrderID   string          `json:"razorpay_order_id"`
	GatewayPaymentID string          `json:"razorpay_payment_id"`
	Signature        string          `json:"razorpay_signature"`
	Outcome          CallbackOutcome `json:"outcome"`
	Amount           int64           `json:"amount"` // in paise
}
