/**
 * @description
 * Scheduled job implementations for the membership service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	svc    *Service
	logger *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(svc *Service, logger *slog.Logger) *Jobs {
	return &Jobs{svc: svc, logger: logger}
}

// RunMembershipExpirySweep expires every active membership whose validity
// window has ended. Lifetime memberships carry no valid_until and are never
// touched. The sweep is idempotent: a record flips to expired exactly once,
// and an immediate re-run matches nothing.
func (j *Jobs) RunMembershipExpirySweep() {
	j.logger.Info("starting membership expiry sweep")
	ctx := context.Background()

	expired, err := j.svc.ExpireLapsedMemberships(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("failed to run membership expiry sweep", "error", err)
		return
	}

	if len(expired) == 0 {
		j.logger.Info("no memberships to expire")
		return
	}

	for _, rec := range expired {
		j.logger.Info("membership expired", "membership_id", rec.ID, "user_id", rec.UserID, "valid_until", rec.ValidUntil)
	}

	j.logger.Info("membership expiry sweep finished", "count", len(expired))
}
