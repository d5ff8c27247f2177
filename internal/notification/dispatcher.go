package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"laundromat-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// job is one queued push for a single user.
type job struct {
	UserID string
	Title  string
	Body   string
}

// Dispatcher fans notification jobs out to a pool of workers. Delivery is
// never part of a transactional guarantee: every failure is swallowed and
// logged, and a saturated queue drops the job rather than blocking the caller.
type Dispatcher struct {
	size    int
	jobs    chan job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewDispatcher creates a dispatcher with the given worker count.
func NewDispatcher(size int, db *gorm.DB, webpushOptions *webpush.Options) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		size:    size,
		jobs:    make(chan job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

// Push enqueues a notification for a user without blocking the caller.
func (d *Dispatcher) Push(userID, title, body string) {
	select {
	case d.jobs <- job{UserID: userID, Title: title, Body: body}:
	default:
		log.Printf("notification queue full, dropping push for user %s", userID)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case j := <-d.jobs:
			d.deliver(ctx, j)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// deliver sends one notification to every registered endpoint of the user.
// Missing users, disabled preferences and absent subscriptions are silent
// no-ops by contract.
func (d *Dispatcher) deliver(ctx context.Context, j job) {
	var user model.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", j.UserID).Error; err != nil {
		log.Printf("push skipped, user %s not found: %v", j.UserID, err)
		return
	}
	if !user.EnableNotification {
		log.Printf("push skipped, notifications disabled for user %s", j.UserID)
		return
	}

	var subscriptions []model.PushSubscription
	if err := d.db.WithContext(ctx).Where("user_id = ?", j.UserID).Find(&subscriptions).Error; err != nil {
		log.Printf("error fetching subscriptions for user %s: %v", j.UserID, err)
		return
	}
	if len(subscriptions) == 0 {
		log.Printf("push skipped, no registered device for user %s", j.UserID)
		return
	}

	payload, err := json.Marshal(map[string]string{"title": j.Title, "body": j.Body})
	if err != nil {
		log.Printf("error encoding push payload for user %s: %v", j.UserID, err)
		return
	}

	for _, sub := range subscriptions {
		d.send(ctx, sub, payload)
	}
}

// send pushes a single web push message and prunes expired endpoints.
func (d *Dispatcher) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(payload, wpSub, d.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription %s expired, deleting", sub.Endpoint)
		if err := d.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
