/**
 * @description
 * Member code allocation. Codes are human-readable, globally unique, and
 * assigned exactly once per membership on the transition into an active, paid
 * state. Sequential codes draw from a database sequence, so two concurrent
 * allocations for different records can never collide; explicit admin-supplied
 * codes ride on the unique index and surface store.ErrDuplicateMemberCode to
 * the losing caller, leaving its record unchanged.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
	"github.com/Soundar1309/ispb-membership-service/internal/store"
)

// allocateMemberCode assigns the next sequential code to a record that has
// none. If the record already carries a code (a concurrent allocation won),
// the existing code stands and the current record is returned.
func (s *Service) allocateMemberCode(ctx context.Context, membershipID uuid.UUID) (*domain.MembershipRecord, error) {
	n, err := s.repo.NextMemberCodeNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to draw member code number: %w", err)
	}
	code := fmt.Sprintf("%s-%0*d", s.codePrefix, s.codeWidth, n)

	rec, err := s.repo.AssignMemberCode(ctx, membershipID, code)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			// Either the record is gone or it already has a code; the re-read decides.
			current, findErr := s.repo.FindMembershipByID(ctx, membershipID)
			if findErr != nil {
				return nil, findErr
			}
			if current.MemberCode != nil {
				return current, nil
			}
			return nil, ErrInvalidStateTransition
		}
		return nil, fmt.Errorf("failed to assign member code: %w", err)
	}

	log.Printf("level=info component=service flow=member_code outcome=allocated membership_id=%s member_code=%s", rec.ID, code)
	return rec, nil
}

// AssignCustomMemberCode assigns an admin-chosen code. A collision with an
// existing code anywhere in the table returns store.ErrDuplicateMemberCode and
// leaves the record unchanged.
func (s *Service) AssignCustomMemberCode(ctx context.Context, membershipID uuid.UUID, code string) (*domain.MembershipRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("member code must not be empty")
	}

	rec, err := s.repo.AssignMemberCode(ctx, membershipID, code)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateMemberCode) {
			log.Printf("level=warn component=service flow=member_code outcome=reject reason=duplicate membership_id=%s member_code=%s", membershipID, code)
			return nil, err
		}
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, s.classifyMissedTransition(ctx, membershipID)
		}
		return nil, fmt.Errorf("failed to assign custom member code: %w", err)
	}

	log.Printf("level=info component=service flow=member_code outcome=assigned membership_id=%s member_code=%s", rec.ID, code)
	return rec, nil
}
