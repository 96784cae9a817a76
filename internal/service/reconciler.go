package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler periodically sweeps withdrawals left in a non-terminal state
// longer than StaleAfter, covering lost webhooks and requests that crashed
// mid-flight.
type Reconciler struct {
	withdrawals WithdrawalReader
	service     *WithdrawalService
	interval    time.Duration
	staleAfter  time.Duration
	batchSize   int
	log         *zap.Logger
}

func NewReconciler(
	withdrawals WithdrawalReader,
	service *WithdrawalService,
	interval, staleAfter time.Duration,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		withdrawals: withdrawals,
		service:     service,
		interval:    interval,
		staleAfter:  staleAfter,
		batchSize:   50,
		log:         log,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("stale_after", r.staleAfter))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep resolves one batch of stale withdrawals. Per-row errors skip the row;
// the next sweep retries it.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAfter)
	stale, err := r.withdrawals.ListStale(cutoff, r.batchSize)
	if err != nil {
		r.log.Error("reconciler sweep query failed", zap.Error(err))
		return
	}
	for i := range stale {
		wd := &stale[i]
		if err := r.service.ReconcileStale(ctx, wd); err != nil {
			r.log.Warn("reconcile failed",
				zap.Uint("withdrawal_id", wd.ID),
				zap.String("status", wd.Status),
				zap.Error(err))
			continue
		}
		r.log.Info("reconciled stale withdrawal",
			zap.Uint("withdrawal_id", wd.ID),
			zap.String("status", wd.Status))
	}
}
