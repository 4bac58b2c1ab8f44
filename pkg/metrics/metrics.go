package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_ads_submitted_total",
		Help: "Ads accepted by the submission endpoint.",
	})
	AdsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_ads_accepted_total",
		Help: "Ads transitioned to accepted by the validator.",
	})
	AdsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_ads_rejected_total",
		Help: "Ads transitioned to rejected by the validator.",
	})
	ClassificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_ads_classification_failures_total",
		Help: "Classification calls that failed and were absorbed as rejections.",
	})
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_ads_notification_failures_total",
		Help: "Outbound notification attempts that failed.",
	})
	ReapedAds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicle_ads_reaped_total",
		Help: "Orphaned review ads re-enqueued by the reaper.",
	})
)
