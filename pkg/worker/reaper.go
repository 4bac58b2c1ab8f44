package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/motorplace/vehicle-ads/pkg/metrics"
)

// ReviewScanner finds ads whose enqueue was lost after record creation.
type ReviewScanner interface {
	FindStaleReviewAds(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// Enqueuer puts ad ids back on the validation queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, adID string) error
}

// Reaper periodically re-enqueues ads stuck in review. Submissions whose
// enqueue failed after the record was created would otherwise stay in review
// forever; re-enqueueing an ad that is merely slow is harmless because the
// worker re-run is idempotent.
type Reaper struct {
	store    ReviewScanner
	queue    Enqueuer
	interval time.Duration
	maxAge   time.Duration
	log      *logrus.Logger
}

func NewReaper(store ReviewScanner, queue Enqueuer, interval, maxAge time.Duration, logger *logrus.Logger) *Reaper {
	return &Reaper{
		store:    store,
		queue:    queue,
		interval: interval,
		maxAge:   maxAge,
		log:      logger,
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	if err := r.Sweep(ctx); err != nil {
		r.log.WithError(err).Error("reaper sweep failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.WithError(err).Error("reaper sweep failed")
			}
		}
	}
}

// Sweep re-enqueues every ad stuck in review longer than the configured age.
func (r *Reaper) Sweep(ctx context.Context) error {
	ids, err := r.store.FindStaleReviewAds(ctx, r.maxAge)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	r.log.WithField("count", len(ids)).Warn("found ads stuck in review, re-enqueueing")

	for _, id := range ids {
		if err := r.queue.Enqueue(ctx, id); err != nil {
			r.log.WithError(err).WithField("ad_id", id).Error("failed to re-enqueue stuck ad")
			continue
		}
		metrics.ReapedAds.Inc()
	}

	return nil
}
