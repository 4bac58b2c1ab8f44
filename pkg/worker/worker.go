package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/motorplace/vehicle-ads/pkg/classifier"
	"github.com/motorplace/vehicle-ads/pkg/metrics"
	"github.com/motorplace/vehicle-ads/pkg/models"
	"github.com/motorplace/vehicle-ads/pkg/policy"
)

// Message is a dequeued ad id awaiting validation.
type Message interface {
	AdID() string
	Ack() error
	Nack(requeue bool) error
}

// Queue is the worker's view of the validation work queue.
type Queue interface {
	Dequeue(ctx context.Context) (Message, error)
	Consume(ctx context.Context) (<-chan Message, error)
}

// RecordStore is the worker's view of the ad record store.
type RecordStore interface {
	GetAd(ctx context.Context, adID string) (*models.Ad, error)
	FinalizeAd(ctx context.Context, adID string, state models.State, category *string) (bool, error)
}

// Classifier is the tagging oracle.
type Classifier interface {
	Classify(ctx context.Context, imageURL string) ([]classifier.Tag, error)
}

// Notifier delivers outcome notifications, best-effort.
type Notifier interface {
	NotifyAccepted(to, adID string) error
	NotifyRejected(to, adID string) error
}

// StateCache mirrors terminal states for the query fast path, best-effort.
type StateCache interface {
	SetAdState(ctx context.Context, adID, state string, ttl time.Duration) error
}

// Worker drains the validation queue: for each ad id it loads the record,
// classifies the image, applies the acceptance policy, finalizes the record
// and notifies the submitter. The queue message is acknowledged only after
// the record update is durable, so a crash mid-flight leads to redelivery and
// an idempotent re-run instead of an ad stuck in review.
type Worker struct {
	store    RecordStore
	queue    Queue
	oracle   Classifier
	notifier Notifier
	cache    StateCache
	policy   *policy.Policy
	log      *logrus.Logger

	oracleTimeout time.Duration
	cacheTTL      time.Duration
}

type Options struct {
	Store    RecordStore
	Queue    Queue
	Oracle   Classifier
	Notifier Notifier
	Cache    StateCache
	Policy   *policy.Policy
	Logger   *logrus.Logger

	OracleTimeout time.Duration
	CacheTTL      time.Duration
}

func New(opts Options) *Worker {
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 15 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &Worker{
		store:         opts.Store,
		queue:         opts.Queue,
		oracle:        opts.Oracle,
		notifier:      opts.Notifier,
		cache:         opts.Cache,
		policy:        opts.Policy,
		log:           opts.Logger,
		oracleTimeout: opts.OracleTimeout,
		cacheTTL:      opts.CacheTTL,
	}
}

// Run consumes the queue until ctx is cancelled (service mode).
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}

	w.log.Info("validation worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("validation worker stopping")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				w.log.Info("queue channel closed, validation worker stopping")
				return nil
			}
			w.process(ctx, msg)
		}
	}
}

// DrainOnce processes messages until the queue reports empty, then returns
// the number processed (batch mode).
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			return processed, err
		}
		if msg == nil {
			return processed, nil
		}

		w.process(ctx, msg)
		processed++
	}
}

// process runs the fetch -> classify -> decide -> finalize -> notify -> ack
// state machine for one message. Once classification has started there is no
// mid-flight cancellation: the step runs to completion or fails, and failure
// is absorbed by the rejection policy.
func (w *Worker) process(ctx context.Context, msg Message) {
	adID := msg.AdID()
	logger := w.log.WithField("ad_id", adID)

	ad, err := w.store.GetAd(ctx, adID)
	if err != nil {
		logger.WithError(err).Error("failed to load ad, requeueing")
		w.nack(msg, true, logger)
		return
	}

	if ad == nil {
		// The queue referenced a record that no longer exists. Not retried.
		logger.Warn("data-integrity anomaly: queued ad has no record, dropping")
		w.ack(msg, logger)
		return
	}

	if ad.State.Terminal() {
		// Redelivery after a crash between finalize and ack. The outcome is
		// already durable, so just clear the message.
		logger.WithField("state", ad.State).Info("ad already finalized, acknowledging redelivery")
		w.ack(msg, logger)
		return
	}

	decision := w.classify(ctx, ad, logger)

	updated, err := w.store.FinalizeAd(ctx, adID, decision.State, decision.Category)
	if err != nil {
		logger.WithError(err).Error("failed to finalize ad, requeueing")
		w.nack(msg, true, logger)
		return
	}

	if updated {
		w.recordOutcome(ctx, ad, decision, logger)
	} else {
		logger.Info("ad finalized concurrently, skipping notification")
	}

	// Ack last: the outcome is durable now, losing the connection before this
	// point only costs a harmless re-run.
	w.ack(msg, logger)
}

func (w *Worker) classify(ctx context.Context, ad *models.Ad, logger *logrus.Entry) policy.Decision {
	oracleCtx, cancel := context.WithTimeout(ctx, w.oracleTimeout)
	defer cancel()

	tags, err := w.oracle.Classify(oracleCtx, ad.ImageURL)
	if err != nil {
		logger.WithError(err).Warn("classification failed, applying rejection policy")
		metrics.ClassificationFailures.Inc()
		return w.policy.DecideOnError(err)
	}

	return w.policy.Decide(tags)
}

func (w *Worker) recordOutcome(ctx context.Context, ad *models.Ad, decision policy.Decision, logger *logrus.Entry) {
	if err := w.cache.SetAdState(ctx, ad.ID, string(decision.State), w.cacheTTL); err != nil {
		logger.WithError(err).Warn("failed to cache ad state")
	}

	switch decision.State {
	case models.StateAccepted:
		metrics.AdsAccepted.Inc()
		logger.WithField("category", *decision.Category).Info("ad accepted")
		if err := w.notifier.NotifyAccepted(ad.Email, ad.ID); err != nil {
			metrics.NotificationFailures.Inc()
			logger.WithError(err).Warn("failed to send acceptance notification")
		}
	case models.StateRejected:
		metrics.AdsRejected.Inc()
		logger.Info("ad rejected")
		if err := w.notifier.NotifyRejected(ad.Email, ad.ID); err != nil {
			metrics.NotificationFailures.Inc()
			logger.WithError(err).Warn("failed to send rejection notification")
		}
	}
}

func (w *Worker) ack(msg Message, logger *logrus.Entry) {
	if err := msg.Ack(); err != nil {
		// Redelivery will self-heal; the re-run is idempotent.
		logger.WithError(err).Warn("failed to acknowledge message")
	}
}

func (w *Worker) nack(msg Message, requeue bool, logger *logrus.Entry) {
	if err := msg.Nack(requeue); err != nil {
		logger.WithError(err).Warn("failed to nack message")
	}
}
