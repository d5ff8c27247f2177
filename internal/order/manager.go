package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"laundromat-backend/internal/device"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/store"
)

var (
	// ErrInvalidPaymentMethod is returned for payment methods outside the allow-list.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrUnknownWashingMode is returned when the requested mode is missing or inactive.
	ErrUnknownWashingMode = errors.New("unknown or inactive washing mode")
	// ErrInvalidStatus is returned for unparseable status strings.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrNoCapacity is returned when every machine is busy.
	ErrNoCapacity = errors.New("no idle washing machine available")
)

// authCodeAttempts bounds regeneration when a code collides with a pending order.
const authCodeAttempts = 3

// Notifier pushes a message to a user's registered device.
type Notifier interface {
	Push(userID, title, body string)
}

// Store is the slice of the persistence gateway the manager depends on.
type Store interface {
	ActiveWashingModeByName(ctx context.Context, name string) (*model.WashingMode, error)
	CreateOrder(ctx context.Context, order *model.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, cancelledAt *time.Time) error
	SearchOrders(ctx context.Context, params store.SearchParams) ([]model.Order, int64, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
}

// Publisher sends outbound messages to the device channel.
type Publisher interface {
	Publish(msg device.Message) error
}

// Manager owns the order lifecycle: creation with machine assignment and
// pricing, manual status overrides, and read-side queries.
type Manager struct {
	store         Store
	channel       Publisher
	notifier      Notifier
	soakSurcharge int64
}

// NewManager wires the manager with its collaborators. soakSurcharge is the
// flat add-on price (VND) for the soak option.
func NewManager(s Store, ch Publisher, n Notifier, soakSurcharge int64) *Manager {
	return &Manager{
		store:         s,
		channel:       ch,
		notifier:      n,
		soakSurcharge: soakSurcharge,
	}
}

// View is the denormalized order returned to API callers.
type View struct {
	model.Order
	MachineNo   int    `json:"machineNo"`
	WashingMode string `json:"washingMode"`
}

func newView(o *model.Order) *View {
	return &View{
		Order:       *o,
		MachineNo:   o.Machine.MachineNo,
		WashingMode: o.WashingMode.Name,
	}
}

// Create validates the request, claims an idle machine, prices the wash and
// persists the order in PENDING status. The auth-code dispatch to the
// machine and the "created" push are best-effort: the order already exists,
// so their failures are logged, never surfaced.
func (m *Manager) Create(ctx context.Context, userID, modeName string, isSoak bool, paymentMethod string) (*View, error) {
	payment, err := model.ParsePaymentMethod(paymentMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentMethod, err)
	}

	mode, err := m.store.ActiveWashingModeByName(ctx, modeName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownWashingMode, modeName)
		}
		return nil, err
	}

	price := mode.Price
	if isSoak {
		price += m.soakSurcharge
	}

	var order *model.Order
	for attempt := 0; attempt < authCodeAttempts; attempt++ {
		order = &model.Order{
			ID:            uuid.NewString(),
			UserID:        userID,
			WashingModeID: mode.ID,
			IsSoak:        isSoak,
			PaymentMethod: payment,
			Price:         price,
			AuthCode:      GenerateAuthCode(),
			CreatedAt:     time.Now().UTC(),
		}
		err = m.store.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrAuthCodeTaken) {
			log.Printf("auth code collision for user %s, regenerating (attempt %d)", userID, attempt+1)
			continue
		}
		if errors.Is(err, store.ErrNoIdleMachine) {
			return nil, ErrNoCapacity
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	order.WashingMode = *mode

	if pubErr := m.channel.Publish(device.AuthCodeMessage(order.MachineID, order.AuthCode)); pubErr != nil {
		log.Printf("failed to dispatch auth code for order %s: %v", order.ID, pubErr)
	}
	m.notifier.Push(userID, "Order created",
		fmt.Sprintf("Your wash on machine %d is ready. Auth code: %s", order.Machine.MachineNo, order.AuthCode))

	return newView(order), nil
}

// UpdateStatus is the administrative override. It maps the raw status
// case-insensitively and stamps cancelled_at only when the target is
// CANCELLED; it infers nothing else, unlike the synchronizer path.
func (m *Manager) UpdateStatus(ctx context.Context, orderID, rawStatus string) error {
	status, err := model.ParseOrderStatus(rawStatus)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}

	var cancelledAt *time.Time
	if status == model.OrderCancelled {
		now := time.Now().UTC()
		cancelledAt = &now
	}
	return m.store.UpdateOrderStatus(ctx, orderID, status, cancelledAt)
}

// SearchResult is one page of order search results.
type SearchResult struct {
	Orders     []View `json:"orders"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int64  `json:"totalPages"`
}

// Search filters orders by customer name, auth code and status.
func (m *Manager) Search(ctx context.Context, params store.SearchParams) (*SearchResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}

	orders, total, err := m.store.SearchOrders(ctx, params)
	if err != nil {
		return nil, err
	}

	views := make([]View, len(orders))
	for i := range orders {
		views[i] = *newView(&orders[i])
	}
	return &SearchResult{
		Orders:     views,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: (total + int64(params.Limit) - 1) / int64(params.Limit),
	}, nil
}

// Get returns a single order with machine and mode resolved.
func (m *Manager) Get(ctx context.Context, orderID string) (*View, error) {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return newView(order), nil
}

// OrdersForUser returns the caller's orders, newest first.
func (m *Manager) OrdersForUser(ctx context.Context, userID string) ([]View, error) {
	orders, err := m.store.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]View, len(orders))
	for i := range orders {
		views[i] = *newView(&orders[i])
	}
	return views, nil
}
