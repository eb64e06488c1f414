/**
 * @description
 * This file contains the core business logic for the membership-service. The
 * `Service` struct orchestrates the membership lifecycle: application
 * submission, admin review, manual grants, cancellation, and admin edits.
 * Payment reconciliation lives in reconcile.go, member-code allocation in
 * membercode.go, and invoice generation in invoice.go.
 *
 * Key features:
 * - Every mutation returns the new record state so callers never need a second
 *   round trip to stay consistent.
 * - State transitions ride on the repository's guarded updates; concurrent
 *   conflicting operations lose the compare-and-set and surface
 *   ErrInvalidStateTransition instead of silently re-applying side effects.
 * - Notification publishing is fire-and-forget: failures are logged, never
 *   allowed to roll back a committed transition.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For publishing notification events.
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

const membershipEventsExchange = "ispb.events"

// PaymentGateway is the collaborator contract for the payment gateway client.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error)
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// DocumentStore is the collaborator contract for durable document storage
// (invoices and uploaded application documents).
type DocumentStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// IdempotencyGuard short-circuits replayed gateway callbacks. Claim reports
// whether this is the first time the key has been seen. A nil guard is valid:
// the store-level guarded updates remain the source of truth.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Fees maps each membership type to its fee in paise.
type Fees map[domain.MembershipType]int64

// Service provides the core business logic for the membership lifecycle.
type Service struct {
	repo       store.Repository
	gateway    PaymentGateway
	docs       DocumentStore
	events     rabbitmq.Publisher
	guard      IdempotencyGuard
	fees       Fees
	currency   string
	codePrefix string
	codeWidth  int
}

// NewService creates a new membership service instance.
func NewService(repo store.Repository, gateway PaymentGateway, docs DocumentStore, events rabbitmq.Publisher, fees Fees, currency, codePrefix string, codeWidth int) *Service {
	if events == nil {
		events = &rabbitmq.EventProducerFallback{}
	}
	if codeWidth <= 0 {
		codeWidth = 4
	}
	return &Service{
		repo:       repo,
		gateway:    gateway,
		docs:       docs,
		events:     events,
		fees:       fees,
		currency:   currency,
		codePrefix: codePrefix,
		codeWidth:  codeWidth,
	}
}

// SetIdempotencyGuard wires the optional replay guard for gateway callbacks.
func (s *Service) SetIdempotencyGuard(guard IdempotencyGuard) {
	s.guard = guard
}

// membershipTerm returns the validity window for a membership type starting at
// from. Lifetime memberships have no valid_until.
func membershipTerm(membershipType domain.MembershipType, from time.Time) (time.Time, *time.Time) {
	if membershipType == domain.MembershipLifetime {
		return from, nil
	}
	until := from.AddDate(0, 12, 0)
	return from, &until
}

func (s *Service) feeForType(membershipType domain.MembershipType) (int64, error) {
	fee, ok := s.fees[membershipType]
	if !ok {
		return 0, ErrUnknownMembershipType
	}
	return fee, nil
}

// SubmitApplication creates a new membership record in the submitted state.
// A user with a live (pending or active) record may not apply again; a
// previously rejected, expired, or cancelled user may.
func (s *Service) SubmitApplication(ctx context.Context, userID uuid.UUID, req domain.SubmitApplicationRequest) (*domain.MembershipRecord, error) {
	fee, err := s.feeForType(req.MembershipType)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindLiveMembershipByUserID(ctx, userID); err == nil && existing != nil {
		log.Printf("level=warn component=service flow=submit_application outcome=reject reason=live_record_exists user_id=%s existing_id=%s status=%s", userID, existing.ID, existing.Status)
		return nil, ErrExistingLiveMembership
	} else if err != nil && !errors.Is(err, store.ErrMembershipNotFound) {
		return nil, fmt.Errorf("failed to check existing membership: %w", err)
	}

	rec := &domain.MembershipRecord{
		ID:                   uuid.New(),
		UserID:               userID,
		MembershipType:       req.MembershipType,
		ApplicationStatus:    domain.ApplicationSubmitted,
		PaymentStatus:        domain.PaymentPending,
		Status:               domain.StatusPending,
		Amount:               fee,
		Currency:             s.currency,
		ApplicationDocuments: req.Documents,
	}
	if err := s.repo.CreateMembership(ctx, rec); err != nil {
		if errors.Is(err, store.ErrActiveMembershipExists) {
			return nil, ErrExistingLiveMembership
		}
		return nil, fmt.Errorf("failed to create membership record: %w", err)
	}

	s.publishMembershipEvent(ctx, "membership.application.submitted", rec)
	log.Printf("level=info component=service flow=submit_application outcome=created membership_id=%s user_id=%s type=%s amount=%d", rec.ID, userID, rec.MembershipType, rec.Amount)
	return rec, nil
}

// ReviewApplication applies an admin approve/reject decision to a submitted
// application. Operating on a record in any other state returns
// ErrInvalidStateTransition so the admin sees the real current state; a
// concurrent second decision loses the guarded update the same way and does
// not re-emit a notification.
func (s *Service) ReviewApplication(ctx context.Context, id uuid.UUID, req domain.ReviewApplicationRequest) (*domain.MembershipRecord, error) {
	if req.Decision != domain.DecisionApprove && req.Decision != domain.DecisionReject {
		return nil, fmt.Errorf("unknown review decision %q", req.Decision)
	}

	rec, err := s.repo.ApplyReviewDecision(ctx, id, req.Decision == domain.DecisionApprove, req.Notes)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, s.classifyMissedTransition(ctx, id)
		}
		return nil, fmt.Errorf("failed to apply review decision: %w", err)
	}

	if req.Decision == domain.DecisionApprove {
		s.publishMembershipEvent(ctx, "membership.application.approved", rec)
	} else {
		s.publishMembershipEvent(ctx, "membership.application.rejected", rec)
	}
	log.Printf("level=info component=service flow=review_application outcome=%s membership_id=%s application_status=%s", req.Decision, rec.ID, rec.ApplicationStatus)
	return rec, nil
}

// StartPayment creates a gateway order for an approved, unpaid membership and
// records the attempt in the ledger. The member may retry after a failed
// attempt; each retry produces a fresh ledger entry.
func (s *Service) StartPayment(ctx context.Context, actor domain.Actor, membershipID uuid.UUID) (*domain.OrderRecord, error) {
	rec, err := s.repo.FindMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && rec.UserID != actor.UserID {
		return nil, ErrUnauthorized
	}
	if rec.ApplicationStatus != domain.ApplicationApproved || rec.Status != domain.StatusPending || rec.PaymentStatus != domain.PaymentPending {
		log.Printf("level=warn component=service flow=start_payment outcome=reject reason=wrong_state membership_id=%s application_status=%s payment_status=%s status=%s", rec.ID, rec.ApplicationStatus, rec.PaymentStatus, rec.Status)
		return nil, ErrInvalidStateTransition
	}

	gatewayOrderID, err := s.gateway.CreateOrder(ctx, rec.Amount, rec.Currency, rec.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	order := &domain.OrderRecord{
		ID:             uuid.New(),
		MembershipID:   rec.ID,
		UserID:         rec.UserID,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		Status:         domain.OrderPending,
		GatewayOrderID: &gatewayOrderID,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order record: %w", err)
	}

	log.Printf("level=info component=service flow=start_payment outcome=created order_id=%s membership_id=%s gateway_order_id=%s amount=%d", order.ID, rec.ID, gatewayOrderID, order.Amount)
	return order, nil
}

// CreateManualMembership is the admin path for granting a membership directly:
// the record is created active with payment_status = manual and no ledger
// entry, and a member code is assigned immediately. An explicit custom code
// that collides with an existing one fails the whole grant with
// store.ErrDuplicateMemberCode; the just-created record is removed again so
// the user keeps no live membership and the admin can retry with a free code.
func (s *Service) CreateManualMembership(ctx context.Context, req domain.ManualMembershipRequest) (*domain.MembershipRecord, error) {
	fee, err := s.feeForType(req.MembershipType)
	if err != nil {
		return nil, err
	}
	if req.Amount != nil {
		if *req.Amount < 0 {
			return nil, fmt.Errorf("amount must be non-negative")
		}
		fee = *req.Amount
	}

	if existing, err := s.repo.FindLiveMembershipByUserID(ctx, req.UserID); err == nil && existing != nil {
		return nil, ErrExistingLiveMembership
	} else if err != nil && !errors.Is(err, store.ErrMembershipNotFound) {
		return nil, fmt.Errorf("failed to check existing membership: %w", err)
	}

	validFrom, validUntil := membershipTerm(req.MembershipType, time.Now().UTC())
	rec := &domain.MembershipRecord{
		ID:                uuid.New(),
		UserID:            req.UserID,
		MembershipType:    req.MembershipType,
		ApplicationStatus: domain.ApplicationApproved,
		PaymentStatus:     domain.PaymentManual,
		Status:            domain.StatusActive,
		Amount:            fee,
		Currency:          s.currency,
		ValidFrom:         &validFrom,
		ValidUntil:        validUntil,
		IsManual:          true,
		AdminReviewNotes:  req.Notes,
	}
	if err := s.repo.CreateMembership(ctx, rec); err != nil {
		if errors.Is(err, store.ErrActiveMembershipExists) {
			return nil, ErrExistingLiveMembership
		}
		return nil, fmt.Errorf("failed to create manual membership: %w", err)
	}

	var coded *domain.MembershipRecord
	if req.MemberCode != nil {
		coded, err = s.AssignCustomMemberCode(ctx, rec.ID, *req.MemberCode)
	} else {
		coded, err = s.allocateMemberCode(ctx, rec.ID)
	}
	if err != nil {
		// Roll the grant back. A live record without a member code would block
		// the user from every future application.
		if delErr := s.repo.DeleteMembership(ctx, rec.ID); delErr != nil {
			log.Printf("level=error component=service flow=manual_membership msg=\"rollback failed after code assignment error\" membership_id=%s err=%v", rec.ID, delErr)
		}
		return nil, err
	}
	rec = coded

	s.publishMembershipEvent(ctx, "membership.activated", rec)
	log.Printf("level=info component=service flow=manual_membership outcome=created membership_id=%s user_id=%s type=%s member_code=%s", rec.ID, rec.UserID, rec.MembershipType, derefString(rec.MemberCode))
	return rec, nil
}

// RecordManualPayment is the admin path for activating an existing approved
// application without a gateway payment.
func (s *Service) RecordManualPayment(ctx context.Context, membershipID uuid.UUID) (*domain.MembershipRecord, error) {
	rec, err := s.repo.FindMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if rec.ApplicationStatus != domain.ApplicationApproved {
		log.Printf("level=warn component=service flow=manual_payment outcome=reject reason=application_not_approved membership_id=%s application_status=%s", rec.ID, rec.ApplicationStatus)
		return nil, ErrInvalidStateTransition
	}

	validFrom, validUntil := membershipTerm(rec.MembershipType, time.Now().UTC())
	rec, err = s.repo.ActivateMembership(ctx, membershipID, store.ActivateMembershipParams{
		PaymentStatus: domain.PaymentManual,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		IsManual:      true,
	})
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, s.classifyMissedTransition(ctx, membershipID)
		}
		return nil, fmt.Errorf("failed to activate membership manually: %w", err)
	}

	if rec.MemberCode == nil {
		rec, err = s.allocateMemberCode(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
	}

	s.publishMembershipEvent(ctx, "membership.activated", rec)
	log.Printf("level=info component=service flow=manual_payment outcome=activated membership_id=%s member_code=%s", rec.ID, derefString(rec.MemberCode))
	return rec, nil
}

// Cancel transitions an active membership to cancelled. Members may cancel
// only their own record; admins may cancel any. The operation is irreversible:
// re-enrollment requires a fresh application.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, membershipID uuid.UUID) (*domain.MembershipRecord, error) {
	rec, err := s.repo.FindMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && rec.UserID != actor.UserID {
		log.Printf("level=warn component=service flow=cancel outcome=reject reason=not_owner membership_id=%s actor_id=%s owner_id=%s", membershipID, actor.UserID, rec.UserID)
		return nil, ErrUnauthorized
	}

	rec, err = s.repo.CancelMembership(ctx, membershipID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, s.classifyMissedTransition(ctx, membershipID)
		}
		return nil, fmt.Errorf("failed to cancel membership: %w", err)
	}

	s.publishMembershipEvent(ctx, "membership.cancelled", rec)
	log.Printf("level=info component=service flow=cancel outcome=cancelled membership_id=%s actor_admin=%t", rec.ID, actor.IsAdmin)
	return rec, nil
}

// UpdateMembership applies admin edits. Notes are editable in any state;
// amount and validity edits are refused while the record is active so a live
// membership's terms cannot be rewritten under a concurrent activation.
func (s *Service) UpdateMembership(ctx context.Context, membershipID uuid.UUID, req domain.UpdateMembershipRequest) (*domain.MembershipRecord, error) {
	if req.Amount != nil && *req.Amount < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	if req.ValidFrom != nil || req.ValidUntil != nil {
		// A single-field edit is validated against the record's stored dates so
		// the resulting window can never be inverted.
		current, err := s.repo.FindMembershipByID(ctx, membershipID)
		if err != nil {
			return nil, err
		}
		from, until := current.ValidFrom, current.ValidUntil
		if req.ValidFrom != nil {
			from = req.ValidFrom
		}
		if req.ValidUntil != nil {
			until = req.ValidUntil
		}
		if from != nil && until != nil && until.Before(*from) {
			return nil, fmt.Errorf("valid_until must not precede valid_from")
		}
	}

	termsEdit := req.Amount != nil || req.ValidFrom != nil || req.ValidUntil != nil
	if !termsEdit {
		if req.Notes == nil {
			return s.repo.FindMembershipByID(ctx, membershipID)
		}
		rec, err := s.repo.UpdateMembershipNotes(ctx, membershipID, *req.Notes)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	rec, err := s.repo.UpdateMembershipTerms(ctx, membershipID, store.UpdateMembershipTermsParams{
		Amount:     req.Amount,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		Notes:      req.Notes,
	})
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, s.classifyMissedTransition(ctx, membershipID)
		}
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}
	return rec, nil
}

// DeleteMembership hard-deletes a record and its ledger entries. Admin-only;
// the router enforces the capability.
func (s *Service) DeleteMembership(ctx context.Context, membershipID uuid.UUID) error {
	if err := s.repo.DeleteMembership(ctx, membershipID); err != nil {
		return err
	}
	log.Printf("level=info component=service flow=delete outcome=deleted membership_id=%s", membershipID)
	return nil
}

// GetMembership returns a record, enforcing ownership for non-admin actors.
func (s *Service) GetMembership(ctx context.Context, actor domain.Actor, membershipID uuid.UUID) (*domain.MembershipRecord, error) {
	rec, err := s.repo.FindMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && rec.UserID != actor.UserID {
		return nil, ErrUnauthorized
	}
	return rec, nil
}

// GetOwnMembership returns the caller's live membership record.
func (s *Service) GetOwnMembership(ctx context.Context, userID uuid.UUID) (*domain.MembershipRecord, error) {
	return s.repo.FindLiveMembershipByUserID(ctx, userID)
}

// ListOwnOrders returns the caller's payment history.
func (s *Service) ListOwnOrders(ctx context.Context, userID uuid.UUID) ([]domain.OrderRecord, error) {
	return s.repo.ListOrdersByUserID(ctx, userID)
}

// ListOrdersByMembership returns the ledger entries for a record.
func (s *Service) ListOrdersByMembership(ctx context.Context, membershipID uuid.UUID) ([]domain.OrderRecord, error) {
	if _, err := s.repo.FindMembershipByID(ctx, membershipID); err != nil {
		return nil, err
	}
	return s.repo.ListOrdersByMembershipID(ctx, membershipID)
}

// ListMemberships returns records matching the admin filter.
func (s *Service) ListMemberships(ctx context.Context, opts domain.MembershipListOptions) ([]domain.MembershipRecord, error) {
	return s.repo.ListMemberships(ctx, opts)
}

// ExpireLapsedMemberships flips every active membership whose valid_until is
// before now to expired and emits a notification per record. The underlying
// update is a single guarded statement, so concurrent sweeps split the rows
// between them and no record is expired or notified twice.
func (s *Service) ExpireLapsedMemberships(ctx context.Context, now time.Time) ([]domain.MembershipRecord, error) {
	expired, err := s.repo.ExpireMemberships(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire memberships: %w", err)
	}
	for i := range expired {
		s.publishMembershipEvent(ctx, "membership.expired", &expired[i])
	}
	return expired, nil
}

// UploadApplicationDocument stores an application document and returns the
// reference to attach at submission time.
func (s *Service) UploadApplicationDocument(ctx context.Context, userID uuid.UUID, name string, data []byte, contentType string) (*domain.ApplicationDocument, error) {
	if s.docs == nil {
		return nil, fmt.Errorf("document store is not configured")
	}
	path := fmt.Sprintf("applications/%s/%s-%s", userID, uuid.New(), name)
	url, err := s.docs.Put(ctx, path, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store application document: %w", err)
	}
	return &domain.ApplicationDocument{Name: name, URL: url, Size: int64(len(data))}, nil
}

// classifyMissedTransition resolves a zero-row guarded update into the precise
// error the caller needs: NotFound when the record is gone,
// ErrInvalidStateTransition when it exists in some other state.
func (s *Service) classifyMissedTransition(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.FindMembershipByID(ctx, id)
	if err != nil {
		return err
	}
	log.Printf("level=warn component=service flow=guarded_update outcome=precondition_failed membership_id=%s application_status=%s payment_status=%s status=%s", id, current.ApplicationStatus, current.PaymentStatus, current.Status)
	return ErrInvalidStateTransition
}

// publishMembershipEvent emits a notification event. Failures are logged and
// swallowed: a committed state transition is never rolled back for a
// notification.
func (s *Service) publishMembershipEvent(ctx context.Context, routingKey string, rec *domain.MembershipRecord) {
	event := rabbitmq.MembershipEvent{
		MembershipID:   rec.ID,
		UserID:         rec.UserID,
		MembershipType: string(rec.MembershipType),
		Status:         string(rec.Status),
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		MemberCode:     rec.MemberCode,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, membershipEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s membership_id=%s err=%v", routingKey, rec.ID, err)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
