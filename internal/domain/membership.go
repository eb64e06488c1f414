/**
 * @description
 * This file defines the core domain models for the membership-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests and database models keeps the web layer
 *   and the persistence layer from bleeding into each other.
 * - Amounts are stored as `int64` in the smallest currency unit (paise), which
 *   avoids floating-point inaccuracies with financial data.
 * - Status fields are closed string enums; transitions between them happen only
 *   through the guarded repository operations, never through ad hoc field writes.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MembershipType enumerates the membership plans offered by the society.
type MembershipType string

const (
	MembershipAnnual        MembershipType = "annual"
	MembershipLifetime      MembershipType = "lifetime"
	MembershipStudent       MembershipType = "student"
	MembershipInstitutional MembershipType = "institutional"
)

// ApplicationStatus tracks the review state of a membership application.
// It only ever moves forward: none -> submitted -> {approved | rejected}.
type ApplicationStatus string

const (
	ApplicationNone      ApplicationStatus = "none"
	ApplicationSubmitted ApplicationStatus = "submitted"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
)

// PaymentStatus tracks how (and whether) a membership was paid for.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentManual    PaymentStatus = "manual"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// MembershipStatus is the lifecycle state of the membership itself.
type MembershipStatus string

const (
	StatusPending   MembershipStatus = "pending"
	StatusActive    MembershipStatus = "active"
	StatusExpired   MembershipStatus = "expired"
	StatusCancelled MembershipStatus = "cancelled"
)

// ApplicationDocument is a reference to a file uploaded alongside an application.
// Documents are attached once at submission and never mutated afterwards.
type ApplicationDocument struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// MembershipRecord is the canonical per-user enrollment entity. It maps directly
// to the `memberships` table.
type MembershipRecord struct {
	ID                   uuid.UUID             `json:"id" db:"id"`
	UserID               uuid.UUID             `json:"user_id" db:"user_id"`
	MembershipType       MembershipType        `json:"membership_type" db:"membership_type"`
	ApplicationStatus    ApplicationStatus     `json:"application_status" db:"application_status"`
	PaymentStatus        PaymentStatus         `json:"payment_status" db:"payment_status"`
	Status               MembershipStatus      `json:"status" db:"status"`
	Amount               int64                 `json:"amount" db:"amount"` // in paise
	Currency             string                `json:"currency" db:"currency"`
	ValidFrom            *time.Time            `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil           *time.Time            `json:"valid_until,omitempty" db:"valid_until"` // nil => lifetime
	MemberCode           *string               `json:"member_code,omitempty" db:"member_code"`
	IsManual             bool                  `json:"is_manual" db:"is_manual"`
	AdminReviewNotes     *string               `json:"admin_review_notes,omitempty" db:"admin_review_notes"`
	ApplicationDocuments []ApplicationDocument `json:"application_documents,omitempty" db:"application_documents"`
	CreatedAt            time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at" db:"updated_at"`
}

// IsLifetime reports whether the membership has no expiry date.
func (m *MembershipRecord) IsLifetime() bool {
	return m.ValidUntil == nil
}

// SubmitApplicationRequest is the DTO for a member submitting a new application.
type SubmitApplicationRequest struct {
	MembershipType MembershipType        `json:"membership_type"`
	Documents      []ApplicationDocument `json:"documents,omitempty"`
}

// ReviewDecision enumerates the two admin decisions on a submitted application.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// ReviewApplicationRequest is the DTO for an admin review decision.
type ReviewApplicationRequest struct {
	Decision ReviewDecision `json:"decision"`
	Notes    *string        `json:"notes,omitempty"`
}

// ManualMembershipRequest is the DTO for an admin granting a membership
// directly, without a gateway payment.
type ManualMembershipRequest struct {
	UserID         uuid.UUID      `json:"user_id"`
	MembershipType MembershipType `json:"membership_type"`
	MemberCode     *string        `json:"member_code,omitempty"` // optional explicit code
	Amount         *int64         `json:"amount,omitempty"`      // overrides the plan fee when set
	Notes          *string        `json:"notes,omitempty"`
}

// UpdateMembershipRequest is the DTO for admin edits to a membership record.
// Amount and validity edits are only honoured while the record is not active.
type UpdateMembershipRequest struct {
	Amount     *int64     `json:"amount,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}

// MembershipListOptions controls filtering and pagination for admin listings.
type MembershipListOptions struct {
	Status            MembershipStatus
	ApplicationStatus ApplicationStatus
	MembershipType    MembershipType
	Limit             int
	Offset            int
}

// Actor identifies who is performing an operation, as resolved by the auth
// middleware. Admins may operate on any record; members only on their own.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}
