/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * operations required by the membership-service. The business logic in
 * `internal/app` depends only on this interface, which keeps it testable with
 * in-memory stubs and independent of PostgreSQL specifics.
 *
 * Every state transition below is an optimistic-concurrency write: the UPDATE is
 * guarded by the expected current state and returns ErrMembershipNotFound /
 * ErrOrderNotFound when no row matched. Callers distinguish "missing" from
 * "wrong state" by re-reading the record.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
)

// ActivateMembershipParams carries the fields set when a membership transitions
// into its active, paid state.
type ActivateMembershipParams struct {
	PaymentStatus domain.PaymentStatus // paid or manual
	ValidFrom     time.Time
	ValidUntil    *time.Time // nil for lifetime memberships
	IsManual      bool
}

// UpdateMembershipTermsParams carries admin-editable fields. Nil pointers leave
// the column untouched.
type UpdateMembershipTermsParams struct {
	Amount     *int64
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Notes      *string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Membership methods
	CreateMembership(ctx context.Context, rec *domain.MembershipRecord) error
	FindMembershipByID(ctx context.Context, id uuid.UUID) (*domain.MembershipRecord, error)
	// FindLiveMembershipByUserID returns the user's pending or active record, if any.
	FindLiveMembershipByUserID(ctx context.Context, userID uuid.UUID) (*domain.MembershipRecord, error)
	ListMemberships(ctx context.Context, opts domain.MembershipListOptions) ([]domain.MembershipRecord, error)

	// ApplyReviewDecision transitions application_status from 'submitted'.
	// Approval leaves the lifecycle untouched; rejection closes the record.
	ApplyReviewDecision(ctx context.Context, id uuid.UUID, approved bool, notes *string) (*domain.MembershipRecord, error)
	// ActivateMembership transitions a pending, unpaid record into the active state.
	ActivateMembership(ctx context.Context, id uuid.UUID, params ActivateMembershipParams) (*domain.MembershipRecord, error)
	// AssignMemberCode sets the member code on a record that has none yet.
	// A collision with an existing code returns ErrDuplicateMemberCode.
	AssignMemberCode(ctx context.Context, id uuid.UUID, code string) (*domain.MembershipRecord, error)
	UpdateMembershipNotes(ctx context.Context, id uuid.UUID, notes string) (*domain.MembershipRecord, error)
	// UpdateMembershipTerms edits amount/validity/notes while status != 'active'.
	// An edit whose resulting validity window would be inverted matches zero rows.
	UpdateMembershipTerms(ctx context.Context, id uuid.UUID, params UpdateMembershipTermsParams) (*domain.MembershipRecord, error)
	// CancelMembership transitions an active record to cancelled.
	CancelMembership(ctx context.Context, id uuid.UUID) (*domain.MembershipRecord, error)
	// ExpireMemberships transitions every active, time-bounded record whose
	// valid_until has passed. Lifetime records (valid_until IS NULL) are never
	// touched. Returns the records transitioned by this run.
	ExpireMemberships(ctx context.Context, now time.Time) ([]domain.MembershipRecord, error)
	// DeleteMembership hard-deletes a record and its orders atomically.
	DeleteMembership(ctx context.Context, id uuid.UUID) error

	// Order ledger methods
	CreateOrder(ctx context.Context, order *domain.OrderRecord) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.OrderRecord, error)
	FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.OrderRecord, error)
	ListOrdersByMembershipID(ctx context.Context, membershipID uuid.UUID) ([]domain.OrderRecord, error)
	ListOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.OrderRecord, error)
	// MarkOrderPaid transitions a pending order to paid and stamps the gateway
	// payment id. Zero rows matched means the order already reached a terminal state.
	MarkOrderPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (*domain.OrderRecord, error)
	MarkOrderFailed(ctx context.Context, id uuid.UUID, gatewayPaymentID string) error
	SetOrderInvoiceURL(ctx context.Context, id uuid.UUID, url string) error

	// Member code sequence
	NextMemberCodeNumber(ctx context.Context) (int64, error)
}
