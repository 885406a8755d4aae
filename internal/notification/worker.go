package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"fuelwatch-backend/internal/model"
)

// PriceAlert is one dispatched alert: a station's price for a fuel type
// dropped below its previous observation.
type PriceAlert struct {
	StationID     uint64
	FuelType      model.FuelType
	PricePence    int
	PreviousPence int
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending price-drop alerts.
type WorkerPool struct {
	size    int
	jobs    chan PriceAlert
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan PriceAlert, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Alert worker %d processing station %d", id, alert.StationID)
			wp.sendAlertsForStation(ctx, alert)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert for the workers. The queue is bounded; when it is
// full the alert is dropped rather than blocking the caller, so a stalled or
// never-started pool cannot hang a sync run.
func (wp *WorkerPool) Dispatch(alert PriceAlert) {
	select {
	case wp.jobs <- alert:
	default:
		log.Printf("Alert queue full; dropping alert for station %d", alert.StationID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan PriceAlert {
	return wp.jobs
}

// sendAlertsForStation fetches subscriptions for the station and sends the
// alert to each of them.
func (wp *WorkerPool) sendAlertsForStation(ctx context.Context, alert PriceAlert) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_station_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.station_id = ?", alert.StationID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for station %d: %v", alert.StationID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d alerts for station %d", len(subscriptions), alert.StationID)

	var station model.Station
	stationLabel := fmt.Sprintf("station %d", alert.StationID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&station, alert.StationID).Error; err != nil {
		log.Printf("Error fetching station %d: %v", alert.StationID, err)
	} else if station.Name != "" {
		stationLabel = station.Name
	}

	message := fmt.Sprintf("%s at %s dropped to %dp/litre (was %dp)",
		alert.FuelType, stationLabel, alert.PricePence, alert.PreviousPence)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
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
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select("Stations").Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
