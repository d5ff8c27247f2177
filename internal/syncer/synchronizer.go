package syncer

import (
	"context"
	"log"
	"time"

	"laundromat-backend/internal/device"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/power"
)

// Notifier pushes a message to a user's registered device.
type Notifier interface {
	Push(userID, title, body string)
}

// Store is the slice of the persistence gateway the synchronizer depends on.
type Store interface {
	CreateMachine(ctx context.Context, id string) (*model.Machine, error)
	DeleteMachine(ctx context.Context, id string) error
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	SetMachineStatus(ctx context.Context, id string, status model.MachineStatus) error
	OrdersByMachineAndStatus(ctx context.Context, machineID string, status model.OrderStatus) ([]model.Order, error)
	AdvanceOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus, at time.Time) (bool, error)
}

// DriftEvent records a data-consistency anomaly: a status transition that
// expected exactly one matching order but found a different count. The
// synchronizer proceeds best-effort on the first match; operators watch
// these events to detect drift.
type DriftEvent struct {
	MachineID string
	Expected  model.OrderStatus
	Found     int
	At        time.Time
}

// Synchronizer is the reconciliation engine between device status reports
// and order lifecycle state. It consumes messages from the device channel,
// persists machine state, advances the affected order (if any) with
// conditional updates, and emits side effects once per transition.
type Synchronizer struct {
	store    Store
	channel  device.Channel
	notifier Notifier
	recorder *power.Recorder

	// CancelWaitingOrders enables the Waiting->Idle cancellation branch.
	// Off by default: the upstream business rule is unsettled.
	CancelWaitingOrders bool

	// DriftFunc receives consistency anomalies. Defaults to a log line.
	DriftFunc func(DriftEvent)
}

// NewSynchronizer wires the synchronizer with its collaborators.
func NewSynchronizer(s Store, ch device.Channel, n Notifier, r *power.Recorder) *Synchronizer {
	return &Synchronizer{
		store:    s,
		channel:  ch,
		notifier: n,
		recorder: r,
		DriftFunc: func(e DriftEvent) {
			log.Printf("order drift on machine %s: expected one %s order, found %d", e.MachineID, e.Expected, e.Found)
		},
	}
}

// Run subscribes the synchronizer to the device channel.
func (s *Synchronizer) Run() error {
	return s.channel.Subscribe(s.Handle)
}

// Handle routes one inbound device message. Every request type is answered
// with a success or error acknowledgment; the device resends on failure.
func (s *Synchronizer) Handle(msg device.Message) {
	ctx := context.Background()

	switch msg.Type {
	case device.TypeAddMachine:
		s.handleAddMachine(ctx, msg)
	case device.TypeRemoveMachine:
		s.handleRemoveMachine(ctx, msg)
	case device.TypeUpdateMachineStatus:
		s.handleStatusUpdate(ctx, msg)
	case device.TypePowerConsumption:
		s.handlePowerConsumption(ctx, msg)
	default:
		log.Printf("unknown device message type: %q", msg.Type)
	}
}

func (s *Synchronizer) handleAddMachine(ctx context.Context, msg device.Message) {
	id := msg.MachineID()
	machine, err := s.store.CreateMachine(ctx, id)
	if err != nil {
		log.Printf("error adding machine %s: %v", id, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
		return
	}
	log.Printf("machine %s registered as no. %d", machine.ID, machine.MachineNo)
	s.ack(device.SuccessAck(msg.Type, id))
}

func (s *Synchronizer) handleRemoveMachine(ctx context.Context, msg device.Message) {
	id := msg.MachineID()
	if err := s.store.DeleteMachine(ctx, id); err != nil {
		log.Printf("error removing machine %s: %v", id, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
		return
	}
	s.ack(device.SuccessAck(msg.Type, id))
}

// handleStatusUpdate applies a device status report. The machine's new
// status is persisted unconditionally (the device is the source of truth),
// then the order side effects are derived from the transition, using the
// previous status to disambiguate the meaning of IDLE.
func (s *Synchronizer) handleStatusUpdate(ctx context.Context, msg device.Message) {
	id := msg.MachineID()

	machine, err := s.store.GetMachine(ctx, id)
	if err != nil {
		log.Printf("status report for unknown machine %s: %v", id, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
		return
	}

	newStatus, err := model.ParseMachineStatus(msg.String("status"))
	if err != nil {
		log.Printf("bad status report for machine %s: %v", id, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
		return
	}
	prev := machine.Status

	if err := s.store.SetMachineStatus(ctx, id, newStatus); err != nil {
		log.Printf("error persisting status %s for machine %s: %v", newStatus, id, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
		return
	}
	s.ack(device.SuccessAck(msg.Type, id))

	switch {
	case newStatus == model.MachineWashing:
		err = s.startPendingOrder(ctx, id)
	case newStatus == model.MachineIdle && prev.InWashPhase():
		err = s.finishWashingOrder(ctx, id)
	case newStatus == model.MachineIdle && prev == model.MachineWaiting:
		if s.CancelWaitingOrders {
			err = s.cancelPendingOrder(ctx, id)
		}
	}
	if err != nil {
		log.Printf("error advancing order state for machine %s (%s -> %s): %v", id, prev, newStatus, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
	}
}

// startPendingOrder advances the machine's pending order to WASHING. The
// conditional update makes a replayed WASHING report a no-op: the second
// pass finds no PENDING order to act on.
func (s *Synchronizer) startPendingOrder(ctx context.Context, machineID string) error {
	order, err := s.matchSingleOrder(ctx, machineID, model.OrderPending)
	if err != nil || order == nil {
		return err
	}

	advanced, err := s.store.AdvanceOrderStatus(ctx, order.ID, model.OrderPending, model.OrderWashing, time.Now().UTC())
	if err != nil {
		return err
	}
	if !advanced {
		log.Printf("order %s already left PENDING, skipping", order.ID)
	}
	return nil
}

// finishWashingOrder advances the machine's washing order to FINISHED and
// pushes the completion notification. The push fires only when this call
// performed the transition, so a replayed report never notifies twice.
func (s *Synchronizer) finishWashingOrder(ctx context.Context, machineID string) error {
	order, err := s.matchSingleOrder(ctx, machineID, model.OrderWashing)
	if err != nil || order == nil {
		return err
	}

	advanced, err := s.store.AdvanceOrderStatus(ctx, order.ID, model.OrderWashing, model.OrderFinished, time.Now().UTC())
	if err != nil {
		return err
	}
	if advanced {
		s.notifier.Push(order.UserID, "Wash finished", "Your laundry is done and ready for pickup.")
	}
	return nil
}

// cancelPendingOrder handles the Waiting timeout: the customer never showed
// up, so the pending order is released.
func (s *Synchronizer) cancelPendingOrder(ctx context.Context, machineID string) error {
	order, err := s.matchSingleOrder(ctx, machineID, model.OrderPending)
	if err != nil || order == nil {
		return err
	}

	advanced, err := s.store.AdvanceOrderStatus(ctx, order.ID, model.OrderPending, model.OrderCancelled, time.Now().UTC())
	if err != nil {
		return err
	}
	if advanced {
		s.notifier.Push(order.UserID, "Order cancelled", "Your wash was cancelled because the machine was not started in time.")
	}
	return nil
}

// matchSingleOrder finds the order expected to be affected by a transition.
// Zero matches is the idempotent no-op case; more than one is a documented
// soft anomaly: emit a drift event and proceed on the first match.
func (s *Synchronizer) matchSingleOrder(ctx context.Context, machineID string, status model.OrderStatus) (*model.Order, error) {
	orders, err := s.store.OrdersByMachineAndStatus(ctx, machineID, status)
	if err != nil {
		return nil, err
	}
	if len(orders) == 1 {
		return &orders[0], nil
	}

	s.DriftFunc(DriftEvent{
		MachineID: machineID,
		Expected:  status,
		Found:     len(orders),
		At:        time.Now().UTC(),
	})
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (s *Synchronizer) handlePowerConsumption(ctx context.Context, msg device.Message) {
	id := msg.MachineID()
	kwh, ok := msg.Float("totalKwh")
	if !ok {
		log.Printf("power report for machine %s is missing totalKwh", id)
		s.ack(device.ErrorAck(msg.Type, id, "missing totalKwh"))
		return
	}

	record, err := s.recorder.Record(ctx, id, kwh)
	if err != nil {
		log.Printf("error recording power usage for machine %s: %v", id, err)
		s.ack(device.ErrorAck(msg.Type, id, err.Error()))
		return
	}
	log.Printf("recorded %.2f kWh for order %s on machine %s", record.TotalKwh, record.OrderID, id)
	s.ack(device.SuccessAck(msg.Type, id))
}

func (s *Synchronizer) ack(msg device.Message) {
	if err := s.channel.Publish(msg); err != nil {
		log.Printf("failed to publish %s acknowledgment: %v", msg.Type, err)
	}
}
