package app

import "errors"

// Sentinel errors surfaced to the API layer. Each maps to a distinct HTTP
// response because each implies a different user-facing remedy.
var (
	// ErrInvalidStateTransition means the record is not in the precondition
	// state the operation requires. The caller should refetch and show the
	// actual current status rather than retry blindly.
	ErrInvalidStateTransition = errors.New("record is not in the required state for this operation")

	// ErrUnauthorized means the actor does not own the record and is not an admin.
	ErrUnauthorized = errors.New("actor lacks rights over this record")

	// ErrVerificationFailed means a gateway callback failed its authenticity,
	// amount, or order-identity check. No state was mutated.
	ErrVerificationFailed = errors.New("payment callback failed verification")

	// ErrExistingLiveMembership means the user already has a pending or active
	// record; a fresh application is only permitted after rejection, expiry,
	// or cancellation.
	ErrExistingLiveMembership = errors.New("user already has a pending or active membership")

	// ErrUnknownMembershipType means the requested plan is not one of the
	// supported membership types.
	ErrUnknownMembershipType = errors.New("unknown membership type")
)
