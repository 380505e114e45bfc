package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"downtime-backend/internal/model"
)

// queuePerWorker bounds how many status changes may wait per worker before
// Notify starts dropping them.
const queuePerWorker = 64

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

// Job is a committed machine status change waiting to be pushed.
type Job struct {
	MachineID string
	Status    model.MachineStatus
}

// Payload is the JSON body delivered to subscribers.
type Payload struct {
	MachineID   string              `json:"machineId"`
	MachineName string              `json:"machineName"`
	Status      model.MachineStatus `json:"status"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*queuePerWorker),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		logger:  logger.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		select {
		case job := <-wp.jobs:
			log.Debug("processing status change",
				zap.String("machine_id", job.MachineID),
				zap.String("status", string(job.Status)))
			wp.sendNotificationsForMachine(ctx, job)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Notify queues a status change without blocking. When the queue is full the
// change is dropped and logged; the caller's command has already committed.
func (wp *WorkerPool) Notify(machineID string, status model.MachineStatus) {
	select {
	case wp.jobs <- Job{MachineID: machineID, Status: status}:
	default:
		wp.logger.Warn("notification queue full, dropping status change",
			zap.String("machine_id", machineID),
			zap.String("status", string(status)))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", job.MachineID).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error("failed to fetch subscriptions", zap.String("machine_id", job.MachineID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload := Payload{MachineID: job.MachineID, MachineName: job.MachineID, Status: job.Status}
	var machine model.Machine
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&machine, "id = ?", job.MachineID).Error; err != nil {
		wp.logger.Warn("failed to fetch machine name", zap.String("machine_id", job.MachineID), zap.Error(err))
	} else if machine.Name != "" {
		payload.MachineName = machine.Name
	}

	body, err := json.Marshal(payload)
	if err != nil {
		wp.logger.Error("failed to encode payload", zap.Error(err))
		return
	}

	wp.logger.Info("sending notifications",
		zap.Int("subscriptions", len(subscriptions)),
		zap.String("machine_id", job.MachineID),
		zap.String("status", string(job.Status)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, body)
	}
}

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
		wp.logger.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
