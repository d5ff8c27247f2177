package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundromat-backend/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoIdleMachine is returned when no machine can accept a new order.
	ErrNoIdleMachine = errors.New("no idle machine available")
	// ErrAuthCodeTaken is returned when the generated auth code collides with
	// a currently pending order. Callers may regenerate and retry.
	ErrAuthCodeTaken = errors.New("auth code already in use")
)

// SearchParams are the filters and pagination for order search.
type SearchParams struct {
	CustomerName string
	AuthCode     string
	Status       model.OrderStatus
	Page         int
	Limit        int
}

// MachineStats aggregates a machine's usage history.
type MachineStats struct {
	TotalOrders   int64   `json:"totalOrders"`
	TotalPowerKwh float64 `json:"totalPowerUsage"`
}

// Store defines the interface for all database operations.
type Store interface {
	// Machines
	CreateMachine(ctx context.Context, id string) (*model.Machine, error)
	DeleteMachine(ctx context.Context, id string) error
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	MachineStatistics(ctx context.Context, id string) (*MachineStats, error)
	SetMachineStatus(ctx context.Context, id string, status model.MachineStatus) error

	// Orders
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	OrdersByMachineAndStatus(ctx context.Context, machineID string, status model.OrderStatus) ([]model.Order, error)
	AdvanceOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus, at time.Time) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, cancelledAt *time.Time) error
	SearchOrders(ctx context.Context, params SearchParams) ([]model.Order, int64, error)

	// Washing modes
	ActiveWashingModeByName(ctx context.Context, name string) (*model.WashingMode, error)
	ListWashingModes(ctx context.Context) ([]model.WashingMode, error)

	// Power usage
	RecordPowerUsage(ctx context.Context, machineID string, kwh float64, at time.Time) (*model.PowerUsageData, error)
	ListPowerUsage(ctx context.Context, machineID string, from, to *time.Time) ([]model.PowerUsageData, error)

	// DB exposes the underlying gorm handle for collaborators that own
	// their own queries (notification dispatcher, subscription handlers).
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// activeOrderStatuses are the statuses that occupy a machine.
var activeOrderStatuses = []model.OrderStatus{model.OrderPending, model.OrderWashing}

// CreateMachine inserts a new machine with the next sequence number and
// status IDLE. Sequence assignment and insert run in one transaction.
func (s *gormStore) CreateMachine(ctx context.Context, id string) (*model.Machine, error) {
	machine := model.Machine{ID: id, Status: model.MachineIdle}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxNo int
		if err := tx.Model(&model.Machine{}).
			Select("COALESCE(MAX(machine_no), 0)").
			Scan(&maxNo).Error; err != nil {
			return fmt.Errorf("failed to determine next machine number: %w", err)
		}
		machine.MachineNo = maxNo + 1
		return tx.Create(&machine).Error
	})
	if err != nil {
		return nil, err
	}
	return &machine, nil
}

func (s *gormStore) DeleteMachine(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Machine{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var machine model.Machine
	if err := s.db.WithContext(ctx).First(&machine, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("machine %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &machine, nil
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("machine_no ASC").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// MachineStatistics aggregates the order count and total measured kWh for a machine.
func (s *gormStore) MachineStatistics(ctx context.Context, id string) (*MachineStats, error) {
	if _, err := s.GetMachine(ctx, id); err != nil {
		return nil, err
	}

	var stats MachineStats
	if err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("machine_id = ?", id).
		Count(&stats.TotalOrders).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.PowerUsageData{}).
		Where("machine_id = ?", id).
		Select("COALESCE(SUM(total_kwh), 0)").
		Scan(&stats.TotalPowerKwh).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetMachineStatus writes the reported status unconditionally. Device
// reports are authoritative for machine state (last write wins).
func (s *gormStore) SetMachineStatus(ctx context.Context, id string, status model.MachineStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateOrder claims the lowest-numbered idle machine without an active
// order and inserts the order against it, all in one transaction. The
// candidate row is locked on postgres so two concurrent creations cannot
// claim the same machine; sqlite has no row locks, but its single-writer
// model serializes the transaction anyway.
func (s *gormStore) CreateOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ?", model.MachineIdle).
			Where("NOT EXISTS (SELECT 1 FROM orders WHERE orders.machine_id = machines.id AND orders.status IN ?)",
				activeOrderStatuses).
			Order("machine_no ASC")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var machine model.Machine
		if err := q.First(&machine).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoIdleMachine
			}
			return err
		}

		var clashes int64
		if err := tx.Model(&model.Order{}).
			Where("auth_code = ? AND status = ?", order.AuthCode, model.OrderPending).
			Count(&clashes).Error; err != nil {
			return err
		}
		if clashes > 0 {
			return ErrAuthCodeTaken
		}

		order.MachineID = machine.ID
		order.Status = model.OrderPending
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order on machine %s: %w", machine.ID, err)
		}
		order.Machine = machine
		return nil
	})
}

func (s *gormStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Machine").Preload("WashingMode").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (s *gormStore) OrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Preload("Machine").Preload("WashingMode").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *gormStore) OrdersByMachineAndStatus(ctx context.Context, machineID string, status model.OrderStatus) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND status = ?", machineID, status).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// AdvanceOrderStatus performs a single conditional update: the order moves
// to the target status only if it is still in the expected one. The
// timestamp column matching the target status is set in the same statement.
// Returns false when the guard did not match, which makes replayed device
// reports a no-op.
func (s *gormStore) AdvanceOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case model.OrderWashing:
		updates["washing_at"] = at
	case model.OrderFinished, model.OrderConfirmed:
		updates["finished_at"] = at
	case model.OrderCancelled, model.OrderRefunded:
		updates["cancelled_at"] = at
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateOrderStatus is the manual override path. Unlike AdvanceOrderStatus
// it is unconditional and infers no timestamps beyond cancelled_at.
func (s *gormStore) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, cancelledAt *time.Time) error {
	updates := map[string]any{"status": status}
	if cancelledAt != nil {
		updates["cancelled_at"] = *cancelledAt
	}
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// SearchOrders filters orders by customer name (substring,
// case-insensitive), auth code (substring) and exact status, returning one
// page plus the unpaginated total.
func (s *gormStore) SearchOrders(ctx context.Context, params SearchParams) ([]model.Order, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Order{}).
		Joins("JOIN users ON users.id = orders.user_id")

	if params.CustomerName != "" {
		q = q.Where("LOWER(users.name) LIKE ?", "%"+strings.ToLower(params.CustomerName)+"%")
	}
	if params.AuthCode != "" {
		q = q.Where("orders.auth_code LIKE ?", "%"+params.AuthCode+"%")
	}
	if params.Status != "" {
		q = q.Where("orders.status = ?", params.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}

	var orders []model.Order
	err := q.Preload("Machine").Preload("WashingMode").Preload("User").
		Order("orders.created_at DESC").
		Offset((params.Page - 1) * params.Limit).
		Limit(params.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *gormStore) ActiveWashingModeByName(ctx context.Context, name string) (*model.WashingMode, error) {
	var mode model.WashingMode
	err := s.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", name, true).
		First(&mode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("washing mode %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &mode, nil
}

func (s *gormStore) ListWashingModes(ctx context.Context) ([]model.WashingMode, error) {
	var modes []model.WashingMode
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("price ASC").Find(&modes).Error; err != nil {
		return nil, err
	}
	return modes, nil
}

// RecordPowerUsage attaches a kWh reading to the most recently finished
// order on the machine that has no reading yet. A reading with no such
// order indicates a device/ordering bug and returns ErrNotFound.
func (s *gormStore) RecordPowerUsage(ctx context.Context, machineID string, kwh float64, at time.Time) (*model.PowerUsageData, error) {
	var record model.PowerUsageData
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		err := tx.Where("machine_id = ? AND status IN ?", machineID,
			[]model.OrderStatus{model.OrderFinished, model.OrderConfirmed}).
			Where("NOT EXISTS (SELECT 1 FROM power_usage_data WHERE power_usage_data.order_id = orders.id)").
			Order("finished_at DESC").
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no unmetered finished order on machine %s: %w", machineID, ErrNotFound)
			}
			return err
		}

		record = model.PowerUsageData{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			MachineID:  machineID,
			TotalKwh:   kwh,
			RecordedAt: at,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *gormStore) ListPowerUsage(ctx context.Context, machineID string, from, to *time.Time) ([]model.PowerUsageData, error) {
	q := s.db.WithContext(ctx).Model(&model.PowerUsageData{}).
		Preload("Machine").Preload("Order")
	if machineID != "" {
		q = q.Where("machine_id = ?", machineID)
	}
	if from != nil && to != nil {
		q = q.Where("recorded_at BETWEEN ? AND ?", *from, *to)
	}

	var records []model.PowerUsageData
	if err := q.Order("recorded_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
