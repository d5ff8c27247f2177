package power

import (
	"context"
	"time"

	"laundromat-backend/internal/model"
)

// Store is the slice of the persistence gateway the recorder depends on.
type Store interface {
	RecordPowerUsage(ctx context.Context, machineID string, kwh float64, at time.Time) (*model.PowerUsageData, error)
}

// Recorder attaches measured energy readings to completed orders.
type Recorder struct {
	store Store
}

// NewRecorder creates a power usage recorder.
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

// Record links a kWh reading to the most recent finished order on the
// machine that lacks one. store.ErrNotFound means the device sent a reading
// with no corresponding order, which callers surface as a failure ack.
func (r *Recorder) Record(ctx context.Context, machineID string, kwh float64) (*model.PowerUsageData, error) {
	return r.store.RecordPowerUsage(ctx, machineID, kwh, time.Now().UTC())
}
