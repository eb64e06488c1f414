/**
 * @description
 * Payment reconciliation: drives membership and ledger state from gateway
 * callback outcomes. The gateway's word is never taken at face value: every
 * callback must pass the HMAC signature check, and on success the amount must
 * also match the ledger entry, before any state is mutated.
 *
 * Idempotence: replaying a verified success callback is a success no-op. Three
 * layers enforce this, cheapest first: the optional redis guard keyed by
 * gateway_payment_id, the guarded pending->paid order update, and the guarded
 * pending->active membership update. A record observed active-but-codeless is
 * a recoverable partial state: reconciliation finishes the allocation instead
 * of failing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
	"github.com/Soundar1309/ispb-membership-service/internal/store"
	"github.com/Soundar1309/ispb-membership-service/pkg/rabbitmq"
)

const (
	invoiceRetryAttempts = 3
	invoiceRetryBackoff  = 200 * time.Millisecond
)

// HandlePaymentCallback processes a gateway callback, returning the membership
// record in its post-reconciliation state.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb domain.PaymentCallback) (*domain.MembershipRecord, error) {
	order, err := s.repo.FindOrderByGatewayOrderID(ctx, cb.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	// Authenticate before touching anything. The gateway signs failure
	// callbacks too, so a forged failure cannot close a pending order.
	if !s.gateway.VerifyPaymentSignature(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		log.Printf("level=warn component=service flow=reconcile outcome=reject reason=bad_signature order_id=%s gateway_order_id=%s", order.ID, cb.GatewayOrderID)
		return nil, ErrVerificationFailed
	}

	if cb.Outcome == domain.OutcomeFailure {
		return s.handleFailedPayment(ctx, order, cb)
	}

	if cb.Amount != order.Amount {
		log.Printf("level=warn component=service flow=reconcile outcome=reject reason=amount_mismatch order_id=%s callback_amount=%d order_amount=%d", order.ID, cb.Amount, order.Amount)
		return nil, ErrVerificationFailed
	}

	if s.guard != nil {
		first, guardErr := s.guard.Claim(ctx, "payment:"+cb.GatewayPaymentID)
		if guardErr != nil {
			// The guard is an optimization; the guarded updates below stay correct without it.
			log.Printf("level=warn component=service flow=reconcile msg=\"idempotency guard unavailable\" gateway_payment_id=%s err=%v", cb.GatewayPaymentID, guardErr)
		} else if !first {
			log.Printf("level=info component=service flow=reconcile outcome=replay_short_circuit gateway_payment_id=%s order_id=%s", cb.GatewayPaymentID, order.ID)
			return s.repo.FindMembershipByID(ctx, order.MembershipID)
		}
	}

	paidOrder, err := s.repo.MarkOrderPaid(ctx, order.ID, cb.GatewayPaymentID)
	if err != nil {
		if !errors.Is(err, store.ErrOrderNotFound) {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
		// Guarded update matched nothing: the order already reached a terminal
		// state. A paid order means this is a replayed callback; anything else
		// means the caller is acting on stale state.
		current, findErr := s.repo.FindOrderByID(ctx, order.ID)
		if findErr != nil {
			return nil, findErr
		}
		if current.Status != domain.OrderPaid {
			log.Printf("level=warn component=service flow=reconcile outcome=reject reason=order_terminal order_id=%s status=%s", current.ID, current.Status)
			return nil, ErrInvalidStateTransition
		}
		paidOrder = current
	}

	rec, err := s.ensureActivated(ctx, paidOrder)
	if err != nil {
		return nil, err
	}

	s.generateInvoiceWithRetry(ctx, paidOrder.ID)
	return rec, nil
}

// handleFailedPayment records the failed attempt. The membership keeps
// payment_status = pending so the user can retry with a fresh order.
func (s *Service) handleFailedPayment(ctx context.Context, order *domain.OrderRecord, cb domain.PaymentCallback) (*domain.MembershipRecord, error) {
	if err := s.repo.MarkOrderFailed(ctx, order.ID, cb.GatewayPaymentID); err != nil {
		if !errors.Is(err, store.ErrOrderNotFound) {
			return nil, fmt.Errorf("failed to mark order failed: %w", err)
		}
		// Already terminal; a duplicate or out-of-order failure callback is a no-op.
		log.Printf("level=info component=service flow=reconcile outcome=stale_failure_ignored order_id=%s", order.ID)
	}

	event := rabbitmq.PaymentEvent{
		OrderID:          order.ID,
		MembershipID:     order.MembershipID,
		UserID:           order.UserID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		GatewayPaymentID: cb.GatewayPaymentID,
		Timestamp:        time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, membershipEventsExchange, "payment.failed", event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=payment.failed order_id=%s err=%v", order.ID, err)
	}

	log.Printf("level=info component=service flow=reconcile outcome=payment_failed order_id=%s membership_id=%s", order.ID, order.MembershipID)
	return s.repo.FindMembershipByID(ctx, order.MembershipID)
}

// ensureActivated drives the membership into the active, paid, coded state and
// is safe to call any number of times for the same paid order.
func (s *Service) ensureActivated(ctx context.Context, order *domain.OrderRecord) (*domain.MembershipRecord, error) {
	rec, err := s.repo.FindMembershipByID(ctx, order.MembershipID)
	if err != nil {
		return nil, err
	}

	if rec.Status != domain.StatusActive {
		validFrom, validUntil := membershipTerm(rec.MembershipType, time.Now().UTC())
		rec, err = s.repo.ActivateMembership(ctx, rec.ID, store.ActivateMembershipParams{
			PaymentStatus: domain.PaymentPaid,
			ValidFrom:     validFrom,
			ValidUntil:    validUntil,
		})
		if err != nil {
			if !errors.Is(err, store.ErrMembershipNotFound) {
				return nil, fmt.Errorf("failed to activate membership: %w", err)
			}
			// Lost the activation race or the record moved on. Re-read: an
			// active record means a concurrent reconciliation won and this call
			// can continue as a no-op; anything else is a genuine conflict.
			rec, err = s.repo.FindMembershipByID(ctx, order.MembershipID)
			if err != nil {
				return nil, err
			}
			if rec.Status != domain.StatusActive {
				log.Printf("level=warn component=service flow=reconcile outcome=reject reason=membership_not_activatable membership_id=%s status=%s payment_status=%s", rec.ID, rec.Status, rec.PaymentStatus)
				return nil, ErrInvalidStateTransition
			}
		} else {
			s.publishMembershipEvent(ctx, "membership.activated", rec)
			log.Printf("level=info component=service flow=reconcile outcome=activated membership_id=%s valid_until=%v", rec.ID, rec.ValidUntil)
		}
	}

	// Active but codeless is a recoverable partial state from an earlier
	// interrupted reconciliation; finish the job here.
	if rec.MemberCode == nil {
		rec, err = s.allocateMemberCode(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// generateInvoiceWithRetry is best-effort with backoff: invoice generation is a
// side effect and must never fail the reconciliation that committed.
func (s *Service) generateInvoiceWithRetry(ctx context.Context, orderID uuid.UUID) {
	var lastErr error
	for attempt := 1; attempt <= invoiceRetryAttempts; attempt++ {
		if _, lastErr = s.GenerateInvoice(ctx, orderID, false); lastErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(invoiceRetryBackoff):
		}
	}
	log.Printf("level=warn component=service flow=invoice msg=\"invoice generation failed; will be retried on next callback or admin request\" order_id=%s err=%v", orderID, lastErr)
}
