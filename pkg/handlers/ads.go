package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/motorplace/vehicle-ads/pkg/metrics"
	"github.com/motorplace/vehicle-ads/pkg/models"
)

// RecordStore is the handler's view of the ad record store.
type RecordStore interface {
	CreateAd(ctx context.Context, description, email, imageKey, imageURL string) (string, error)
	GetAd(ctx context.Context, adID string) (*models.Ad, error)
}

// ImageStore stores uploaded images under opaque keys.
type ImageStore interface {
	Put(ctx context.Context, originalName string, data []byte, contentType string) (key, url string, err error)
	Delete(ctx context.Context, key string) error
}

// Enqueuer hands new ad ids to the validation pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, adID string) error
}

// Notifier confirms receipt to the submitter, best-effort.
type Notifier interface {
	NotifyReceived(to, adID string) error
}

// StateCache is the query fast path for review/rejected lookups.
type StateCache interface {
	GetAdState(ctx context.Context, adID string) (string, error)
	SetAdState(ctx context.Context, adID, state string, ttl time.Duration) error
}

// AdsHandler serves ad submission and public ad queries.
type AdsHandler struct {
	store    RecordStore
	images   ImageStore
	queue    Enqueuer
	notifier Notifier
	cache    StateCache
	log      *logrus.Logger

	maxImageSize int64
	cacheTTL     time.Duration
}

type Options struct {
	Store    RecordStore
	Images   ImageStore
	Queue    Enqueuer
	Notifier Notifier
	Cache    StateCache
	Logger   *logrus.Logger

	MaxImageSize int64
	CacheTTL     time.Duration
}

func New(opts Options) *AdsHandler {
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = 16 << 20
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &AdsHandler{
		store:        opts.Store,
		images:       opts.Images,
		queue:        opts.Queue,
		notifier:     opts.Notifier,
		cache:        opts.Cache,
		log:          opts.Logger,
		maxImageSize: opts.MaxImageSize,
		cacheTTL:     opts.CacheTTL,
	}
}

// Register mounts the ad routes.
func (h *AdsHandler) Register(r gin.IRouter) {
	r.POST("/ads/new", h.Submit)
	r.GET("/ads/:id", h.Get)
}

// Submit handles a new ad: validate, store the image, create the record,
// enqueue the id for validation, confirm receipt. Side effects happen in
// exactly that order; nothing is enqueued when the blob write or record
// create fails.
func (h *AdsHandler) Submit(c *gin.Context) {
	description := strings.TrimSpace(c.PostForm("description"))
	email := strings.TrimSpace(c.PostForm("email"))
	fileHeader, fileErr := c.FormFile("image")

	var messages []string
	if description == "" {
		messages = append(messages, "missing field: description")
	}
	if email == "" {
		messages = append(messages, "missing field: email")
	} else if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		messages = append(messages, "invalid email")
	}
	if fileErr != nil || fileHeader == nil {
		messages = append(messages, "missing image")
	} else if fileHeader.Size > h.maxImageSize {
		messages = append(messages, "image too large")
	}

	if len(messages) > 0 {
		respondError(c, http.StatusBadRequest, messages...)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "missing image")
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(io.LimitReader(file, h.maxImageSize))
	if err != nil || len(imageBytes) == 0 {
		respondError(c, http.StatusBadRequest, "missing image")
		return
	}

	ctx := c.Request.Context()
	contentType := fileHeader.Header.Get("Content-Type")

	imageKey, imageURL, err := h.images.Put(ctx, fileHeader.Filename, imageBytes, contentType)
	if err != nil {
		h.log.WithError(err).Error("failed to store ad image")
		respondError(c, http.StatusInternalServerError, "failed to store image")
		return
	}

	adID, err := h.store.CreateAd(ctx, description, email, imageKey, imageURL)
	if err != nil {
		h.log.WithError(err).Error("failed to create ad record")
		// Don't leave an unreferenced blob behind.
		if delErr := h.images.Delete(ctx, imageKey); delErr != nil {
			h.log.WithError(delErr).Warn("failed to delete orphaned image")
		}
		respondError(c, http.StatusInternalServerError, "failed to create ad")
		return
	}

	logger := h.log.WithField("ad_id", adID)

	if err := h.cache.SetAdState(ctx, adID, string(models.StateReview), h.cacheTTL); err != nil {
		logger.WithError(err).Warn("failed to cache ad state")
	}

	metrics.AdsSubmitted.Inc()

	if err := h.queue.Enqueue(ctx, adID); err != nil {
		// The record is durable; the reaper re-enqueues stale review ads, so
		// the submission still counts as accepted.
		logger.WithError(err).Error("failed to enqueue ad for validation")
	} else if err := h.notifier.NotifyReceived(email, adID); err != nil {
		metrics.NotificationFailures.Inc()
		logger.WithError(err).Warn("failed to send receipt notification")
	}

	logger.Info("ad submitted")
	respondOK(c, map[string]any{"ad_id": adID})
}

// Get serves the public view of an ad. Pending and rejected ads are hidden:
// review answers "still under review" and rejected answers access denied,
// without leaking record content.
func (h *AdsHandler) Get(c *gin.Context) {
	adID := c.Param("id")
	if _, err := uuid.Parse(adID); err != nil {
		respondError(c, http.StatusBadRequest, "invalid ad id")
		return
	}

	ctx := c.Request.Context()

	// Fast path: terminal/pending states answered from cache without a
	// database read.
	cached, err := h.cache.GetAdState(ctx, adID)
	if err != nil {
		h.log.WithError(err).Warn("state cache lookup failed")
	}
	switch models.State(cached) {
	case models.StateRejected:
		respondError(c, http.StatusForbidden, "ad access denied")
		return
	case models.StateReview:
		respondError(c, http.StatusNotFound, "ad is still under review")
		return
	}

	ad, err := h.store.GetAd(ctx, adID)
	if err != nil {
		h.log.WithError(err).Error("failed to load ad")
		respondError(c, http.StatusInternalServerError, "failed to load ad")
		return
	}
	if ad == nil {
		respondError(c, http.StatusNotFound, "ad not found")
		return
	}

	if cached == "" {
		if err := h.cache.SetAdState(ctx, adID, string(ad.State), h.cacheTTL); err != nil {
			h.log.WithError(err).Warn("failed to cache ad state")
		}
	}

	switch ad.State {
	case models.StateRejected:
		respondError(c, http.StatusForbidden, "ad access denied")
	case models.StateReview:
		respondError(c, http.StatusNotFound, "ad is still under review")
	default:
		respondOK(c, map[string]any{
			"ad": map[string]any{
				"id":          ad.ID,
				"description": ad.Description,
				"email":       ad.Email,
				"image_url":   ad.ImageURL,
				"state":       string(ad.State),
				"category":    ad.Category,
				"created_at":  ad.CreatedAt,
			},
		})
	}
}
