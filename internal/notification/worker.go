package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"finfare-backend/internal/model"
)

// jobsPerWorker sizes the job queue relative to the worker count.
const jobsPerWorker = 32

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Store is the persistence the worker pool needs.
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	SubscriptionsForAquarium(ctx context.Context, aquariumID int64) ([]model.PushSubscription, error)
	GetAquarium(ctx context.Context, id int64) (*model.Aquarium, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Job is one notification about an aquarium.
type Job struct {
	AquariumID int64
	Type       string
	Message    string
}

// Payload is the JSON body pushed to browsers.
type Payload struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Type       string `json:"type"`
	AquariumID int64  `json:"aquarium_id"`
}

// WorkerPool manages a pool of workers that store notifications and push them to subscribers.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st Store, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*jobsPerWorker),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("notification worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.process(ctx, job)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Notify queues a notification without blocking. It is dropped when the queue is full.
func (wp *WorkerPool) Notify(aquariumID int64, kind, message string) {
	select {
	case wp.jobs <- Job{AquariumID: aquariumID, Type: kind, Message: message}:
	default:
		log.Warn().Int64("aquarium_id", aquariumID).Str("type", kind).Msg("notification queue full; dropping notification")
	}
}

// process stores the notification and pushes it to every subscriber of the aquarium.
func (wp *WorkerPool) process(ctx context.Context, job Job) {
	if err := wp.store.CreateNotification(ctx, &model.Notification{
		AquariumID: job.AquariumID,
		Type:       job.Type,
		Message:    job.Message,
	}); err != nil {
		log.Error().Err(err).Int64("aquarium_id", job.AquariumID).Msg("failed to store notification")
	}
	if wp.webpush == nil {
		return
	}

	subscriptions, err := wp.store.SubscriptionsForAquarium(ctx, job.AquariumID)
	if err != nil {
		log.Error().Err(err).Int64("aquarium_id", job.AquariumID).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	title := fmt.Sprintf("Aquarium %d", job.AquariumID)
	if aquarium, err := wp.store.GetAquarium(ctx, job.AquariumID); err != nil {
		log.Warn().Err(err).Int64("aquarium_id", job.AquariumID).Msg("failed to fetch aquarium")
	} else if aquarium.Name != "" {
		title = aquarium.Name
	}

	payload, err := json.Marshal(Payload{Title: title, Body: job.Message, Type: job.Type, AquariumID: job.AquariumID})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode notification payload")
		return
	}

	log.Info().Int("subscribers", len(subscriptions)).Int64("aquarium_id", job.AquariumID).Str("type", job.Type).Msg("sending notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired; deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
