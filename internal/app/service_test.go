package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
	"github.com/Soundar1309/ispb-membership-service/internal/store"
)

func TestSubmitApplication_CreatesSubmittedRecord(t *testing.T) {
	svc, _, _, _, events := newTestService()
	userID := uuid.New()

	rec, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
		Documents:      []domain.ApplicationDocument{{Name: "cv.pdf", URL: "https://docs.test/cv.pdf", Size: 1024}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.ApplicationStatus != domain.ApplicationSubmitted {
		t.Fatalf("expected application_status=submitted, got %q", rec.ApplicationStatus)
	}
	if rec.Status != domain.StatusPending || rec.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected pending/pending lifecycle, got %q/%q", rec.Status, rec.PaymentStatus)
	}
	if rec.Amount != 150000 {
		t.Fatalf("expected annual fee 150000, got %d", rec.Amount)
	}
	if rec.Currency != "INR" {
		t.Fatalf("expected currency INR, got %q", rec.Currency)
	}
	if len(rec.ApplicationDocuments) != 1 {
		t.Fatalf("expected 1 attached document, got %d", len(rec.ApplicationDocuments))
	}
	if got := events.countKey("membership.application.submitted"); got != 1 {
		t.Fatalf("expected 1 submitted event, got %d", got)
	}
}

func TestSubmitApplication_RejectsUnknownMembershipType(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.SubmitApplication(context.Background(), uuid.New(), domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipType("platinum"),
	})
	if !errors.Is(err, ErrUnknownMembershipType) {
		t.Fatalf("expected ErrUnknownMembershipType, got %v", err)
	}
}

func TestSubmitApplication_RejectsWhenLiveRecordExists(t *testing.T) {
	svc, _, _, _, events := newTestService()
	userID := uuid.New()

	if _, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	}); err != nil {
		t.Fatalf("first application failed: %v", err)
	}

	_, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipStudent,
	})
	if !errors.Is(err, ErrExistingLiveMembership) {
		t.Fatalf("expected ErrExistingLiveMembership, got %v", err)
	}
	if got := events.countKey("membership.application.submitted"); got != 1 {
		t.Fatalf("expected the duplicate application to emit no event, got %d submitted events", got)
	}
}

func TestSubmitApplication_AllowsReapplyAfterRejection(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	userID := uuid.New()

	rec, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("first application failed: %v", err)
	}
	if _, err := svc.ReviewApplication(context.Background(), rec.ID, domain.ReviewApplicationRequest{
		Decision: domain.DecisionReject,
		Notes:    ptrString("incomplete documents"),
	}); err != nil {
		t.Fatalf("rejection failed: %v", err)
	}

	fresh, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("expected reapplication after rejection to succeed, got %v", err)
	}
	if fresh.ID == rec.ID {
		t.Fatal("expected a fresh record for the reapplication")
	}
}

func TestStartPayment_RequiresApprovedApplication(t *testing.T) {
	svc, _, gateway, _, _ := newTestService()
	userID := uuid.New()
	actor := domain.Actor{UserID: userID}

	rec, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("application failed: %v", err)
	}

	if _, err := svc.StartPayment(context.Background(), actor, rec.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition before approval, got %v", err)
	}
	if gateway.createCalls != 0 {
		t.Fatalf("expected no gateway order before approval, got %d calls", gateway.createCalls)
	}

	if _, err := svc.ReviewApplication(context.Background(), rec.ID, domain.ReviewApplicationRequest{
		Decision: domain.DecisionApprove,
	}); err != nil {
		t.Fatalf("approval failed: %v", err)
	}

	order, err := svc.StartPayment(context.Background(), actor, rec.ID)
	if err != nil {
		t.Fatalf("expected payment start after approval, got %v", err)
	}
	if order.Status != domain.OrderPending {
		t.Fatalf("expected pending order, got %q", order.Status)
	}
	if order.GatewayOrderID == nil || *order.GatewayOrderID == "" {
		t.Fatal("expected the gateway order id on the ledger entry")
	}
	if order.Amount != rec.Amount {
		t.Fatalf("expected order amount %d, got %d", rec.Amount, order.Amount)
	}
}

func TestStartPayment_RejectsForeignRecord(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	userID := uuid.New()

	rec, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("application failed: %v", err)
	}

	_, err = svc.StartPayment(context.Background(), domain.Actor{UserID: uuid.New()}, rec.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a foreign record, got %v", err)
	}
}

func TestCreateManualMembership_LifetimeHasNoExpiry(t *testing.T) {
	svc, _, _, _, events := newTestService()
	userID := uuid.New()

	rec, err := svc.CreateManualMembership(context.Background(), domain.ManualMembershipRequest{
		UserID:         userID,
		MembershipType: domain.MembershipLifetime,
		Notes:          ptrString("honorary member"),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Status != domain.StatusActive || rec.PaymentStatus != domain.PaymentManual {
		t.Fatalf("expected active/manual, got %q/%q", rec.Status, rec.PaymentStatus)
	}
	if !rec.IsManual {
		t.Fatal("expected is_manual flag on a manual grant")
	}
	if rec.ValidUntil != nil {
		t.Fatalf("expected no expiry on a lifetime membership, got %v", rec.ValidUntil)
	}
	if rec.MemberCode == nil || *rec.MemberCode != "LM-0001" {
		t.Fatalf("expected member code LM-0001, got %v", rec.MemberCode)
	}
	if got := events.countKey("membership.activated"); got != 1 {
		t.Fatalf("expected 1 activation event, got %d", got)
	}
}

func TestCreateManualMembership_AmountOverride(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	rec, err := svc.CreateManualMembership(context.Background(), domain.ManualMembershipRequest{
		UserID:         uuid.New(),
		MembershipType: domain.MembershipAnnual,
		Amount:         ptrInt64(0), // waived fee
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Amount != 0 {
		t.Fatalf("expected waived amount 0, got %d", rec.Amount)
	}
}

func TestCancel_EnforcesOwnership(t *testing.T) {
	svc, _, _, _, events := newTestService()
	userID := uuid.New()

	rec, err := svc.CreateManualMembership(context.Background(), domain.ManualMembershipRequest{
		UserID:         userID,
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("manual grant failed: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), domain.Actor{UserID: uuid.New()}, rec.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a non-owner, got %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), domain.Actor{UserID: userID}, rec.ID)
	if err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}

	// Cancellation is terminal; a second attempt hits the guard.
	if _, err := svc.Cancel(context.Background(), domain.Actor{UserID: userID, IsAdmin: true}, rec.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition on double cancel, got %v", err)
	}
	if got := events.countKey("membership.cancelled"); got != 1 {
		t.Fatalf("expected exactly 1 cancellation event, got %d", got)
	}
}

func TestUpdateMembership_TermsRefusedWhileActive(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	rec, err := svc.CreateManualMembership(context.Background(), domain.ManualMembershipRequest{
		UserID:         uuid.New(),
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("manual grant failed: %v", err)
	}

	_, err = svc.UpdateMembership(context.Background(), rec.ID, domain.UpdateMembershipRequest{
		Amount: ptrInt64(99),
	})
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition editing terms of an active record, got %v", err)
	}

	// Notes stay editable regardless of lifecycle state.
	updated, err := svc.UpdateMembership(context.Background(), rec.ID, domain.UpdateMembershipRequest{
		Notes: ptrString("paid by cheque no. 42"),
	})
	if err != nil {
		t.Fatalf("notes edit failed: %v", err)
	}
	if updated.AdminReviewNotes == nil || *updated.AdminReviewNotes != "paid by cheque no. 42" {
		t.Fatalf("expected notes to be stored, got %v", updated.AdminReviewNotes)
	}
}

func TestUpdateMembership_RejectsInvertedValidityWindow(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, -1, 0)
	_, err := svc.UpdateMembership(context.Background(), uuid.New(), domain.UpdateMembershipRequest{
		ValidFrom:  &from,
		ValidUntil: &until,
	})
	if err == nil {
		t.Fatal("expected an error for valid_until before valid_from")
	}
}

func TestUpdateMembership_SingleFieldEditCannotInvertWindow(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	rec, err := svc.SubmitApplication(context.Background(), uuid.New(), domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("application failed: %v", err)
	}

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.UpdateMembership(context.Background(), rec.ID, domain.UpdateMembershipRequest{
		ValidFrom: &from,
	}); err != nil {
		t.Fatalf("valid_from edit failed: %v", err)
	}

	// A ValidUntil-only edit before the stored valid_from must be rejected.
	before := from.AddDate(0, -2, 0)
	if _, err := svc.UpdateMembership(context.Background(), rec.ID, domain.UpdateMembershipRequest{
		ValidUntil: &before,
	}); err == nil {
		t.Fatal("expected the inverting valid_until edit to be rejected")
	}

	after := from.AddDate(0, 12, 0)
	updated, err := svc.UpdateMembership(context.Background(), rec.ID, domain.UpdateMembershipRequest{
		ValidUntil: &after,
	})
	if err != nil {
		t.Fatalf("valid_until edit failed: %v", err)
	}
	if updated.ValidUntil == nil || !updated.ValidUntil.Equal(after) {
		t.Fatalf("expected valid_until %v, got %v", after, updated.ValidUntil)
	}

	// A ValidFrom-only edit past the stored valid_until is rejected the same way.
	late := after.AddDate(0, 1, 0)
	if _, err := svc.UpdateMembership(context.Background(), rec.ID, domain.UpdateMembershipRequest{
		ValidFrom: &late,
	}); err == nil {
		t.Fatal("expected the inverting valid_from edit to be rejected")
	}
}

func TestRecordManualPayment_RequiresApprovedApplication(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	rec, err := svc.SubmitApplication(context.Background(), uuid.New(), domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("application failed: %v", err)
	}

	if _, err := svc.RecordManualPayment(context.Background(), rec.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition for an unreviewed application, got %v", err)
	}

	if _, err := svc.ReviewApplication(context.Background(), rec.ID, domain.ReviewApplicationRequest{
		Decision: domain.DecisionApprove,
	}); err != nil {
		t.Fatalf("approval failed: %v", err)
	}

	activated, err := svc.RecordManualPayment(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("expected activation after approval, got %v", err)
	}
	if activated.Status != domain.StatusActive || activated.PaymentStatus != domain.PaymentManual {
		t.Fatalf("expected active/manual, got %q/%q", activated.Status, activated.PaymentStatus)
	}
	if activated.MemberCode == nil {
		t.Fatal("expected a member code on the activated record")
	}
}

func TestDeleteMembership_RemovesRecordAndOrders(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	userID := uuid.New()
	actor := domain.Actor{UserID: userID}

	rec, err := svc.SubmitApplication(context.Background(), userID, domain.SubmitApplicationRequest{
		MembershipType: domain.MembershipAnnual,
	})
	if err != nil {
		t.Fatalf("application failed: %v", err)
	}
	if _, err := svc.ReviewApplication(context.Background(), rec.ID, domain.ReviewApplicationRequest{Decision: domain.DecisionApprove}); err != nil {
		t.Fatalf("approval failed: %v", err)
	}
	if _, err := svc.StartPayment(context.Background(), actor, rec.ID); err != nil {
		t.Fatalf("payment start failed: %v", err)
	}

	if err := svc.DeleteMembership(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.FindMembershipByID(context.Background(), rec.ID); !errors.Is(err, store.ErrMembershipNotFound) {
		t.Fatalf("expected the record to be gone, got %v", err)
	}
	orders, err := repo.ListOrdersByMembershipID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("order listing failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected ledger entries to be deleted with the record, found %d", len(orders))
	}
}

func TestMembershipTerm_AnnualRunsTwelveMonths(t *testing.T) {
	from := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	gotFrom, gotUntil := membershipTerm(domain.MembershipAnnual, from)
	if !gotFrom.Equal(from) {
		t.Fatalf("expected valid_from %v, got %v", from, gotFrom)
	}
	if gotUntil == nil {
		t.Fatal("expected an expiry for an annual membership")
	}
	if want := from.AddDate(0, 12, 0); !gotUntil.Equal(want) {
		t.Fatalf("expected valid_until %v, got %v", want, *gotUntil)
	}

	if _, lifetimeUntil := membershipTerm(domain.MembershipLifetime, from); lifetimeUntil != nil {
		t.Fatalf("expected no expiry for a lifetime membership, got %v", *lifetimeUntil)
	}
}
