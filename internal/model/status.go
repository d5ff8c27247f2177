package model

import (
	"fmt"
	"strings"
)

// MachineStatus is the physical state a machine reports over the device channel.
type MachineStatus string

const (
	MachineIdle     MachineStatus = "IDLE"
	MachineWashing  MachineStatus = "WASHING"
	MachineRinsing  MachineStatus = "RINSING"
	MachineSpinning MachineStatus = "SPINNING"
	MachineWaiting  MachineStatus = "WAITING"
	MachineBroken   MachineStatus = "BROKEN"
)

// ParseMachineStatus maps a raw status string (case-insensitive) to a
// MachineStatus. This is the single entry point for machine status strings
// arriving from any boundary.
func ParseMachineStatus(raw string) (MachineStatus, error) {
	switch MachineStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case MachineIdle:
		return MachineIdle, nil
	case MachineWashing:
		return MachineWashing, nil
	case MachineRinsing:
		return MachineRinsing, nil
	case MachineSpinning:
		return MachineSpinning, nil
	case MachineWaiting:
		return MachineWaiting, nil
	case MachineBroken:
		return MachineBroken, nil
	}
	return "", fmt.Errorf("unknown machine status %q", raw)
}

// InWashPhase reports whether the status belongs to an active wash cycle.
// A transition from one of these back to IDLE means the cycle completed.
func (s MachineStatus) InWashPhase() bool {
	return s == MachineWashing || s == MachineRinsing || s == MachineSpinning
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderWashing   OrderStatus = "WASHING"
	OrderFinished  OrderStatus = "FINISHED"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// ParseOrderStatus maps a raw status string (case-insensitive) to an OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch OrderStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case OrderPending:
		return OrderPending, nil
	case OrderWashing:
		return OrderWashing, nil
	case OrderFinished:
		return OrderFinished, nil
	case OrderConfirmed:
		return OrderConfirmed, nil
	case OrderCancelled:
		return OrderCancelled, nil
	case OrderRefunded:
		return OrderRefunded, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

// Terminal reports whether the order can no longer change status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFinished, OrderConfirmed, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// PaymentMethods is the allow-list of accepted payment methods.
var PaymentMethods = []string{"momo", "visa"}

// ParsePaymentMethod validates a payment method against the allow-list.
func ParsePaymentMethod(raw string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(raw))
	for _, known := range PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}
