/**
 * @description
 * Scheduled job implementations for the controller service. The trigger scan
 * is the cron-like caller the engine is designed for: it finds bundles whose
 * interval has elapsed and pushes each one through the full Trigger path, gate
 * included, so scheduled and ad-hoc triggers share one code path.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BlockApex/bundl-controller-service/internal/domain"
	"github.com/BlockApex/bundl-controller-service/internal/store"
)

// DueBundleLister defines the database operation needed by the trigger scan.
type DueBundleLister interface {
	ListDueBundles(ctx context.Context, now int64) ([]domain.Bundle, error)
}

// TriggerEngine defines the engine operation the jobs invoke.
type TriggerEngine interface {
	Trigger(ctx context.Context, caller, owner string, bundleID uint64, recipientAccount string) (*domain.Payment, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      DueBundleLister
	engine    TriggerEngine
	authority string
	logger    *slog.Logger
}

// NewJobs creates a new Jobs runner. The authority is the identity the
// scheduler presents to the trigger gate; it must be on the configured
// allow-list.
func NewJobs(repo DueBundleLister, engine TriggerEngine, authority string, logger *slog.Logger) *Jobs {
	return &Jobs{
		repo:      repo,
		engine:    engine,
		authority: authority,
		logger:    logger,
	}
}

// ProcessDueBundles scans for bundles whose interval has elapsed and triggers
// a payment for each. Gating failures are expected steady-state outcomes, not
// job errors: a bundle that raced another trigger or is short on funds is
// simply picked up again on a later tick.
func (j *Jobs) ProcessDueBundles() {
	j.logger.Info("starting due bundle trigger scan")
	ctx := context.Background()

	bundles, err := j.repo.ListDueBundles(ctx, time.Now().Unix())
	if err != nil {
		j.logger.Error("failed to list due bundles", "error", err)
		return
	}

	if len(bundles) == 0 {
		j.logger.Info("no due bundles to trigger")
		return
	}

	j.logger.Info("found due bundles", "count", len(bundles))

	var executed, skipped, failed int
	for _, bundle := range bundles {
		payment, err := j.engine.Trigger(ctx, j.authority, bundle.Owner, bundle.BundleID, "")
		switch {
		case err == nil:
			executed++
			j.logger.Info("triggered payment", "owner", bundle.Owner, "bundle_id", bundle.BundleID, "amount", payment.Amount)
		case errors.Is(err, ErrIntervalNotPassed) || errors.Is(err, ErrTriggerInFlight):
			skipped++
			j.logger.Info("bundle not eligible on this tick", "owner", bundle.Owner, "bundle_id", bundle.BundleID, "reason", err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			skipped++
			j.logger.Warn("funding account cannot cover bundle", "owner", bundle.Owner, "bundle_id", bundle.BundleID)
		case errors.Is(err, store.ErrControllerNotFound) || errors.Is(err, store.ErrBundleNotFound):
			failed++
			j.logger.Error("due bundle resolved to no record", "owner", bundle.Owner, "bundle_id", bundle.BundleID, "error", err)
		default:
			failed++
			j.logger.Error("failed to trigger bundle", "owner", bundle.Owner, "bundle_id", bundle.BundleID, "error", err)
		}
	}

	j.logger.Info("due bundle trigger scan finished", "executed", executed, "skipped", skipped, "failed", failed)
}
