package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"laundromat-backend/config"
	"laundromat-backend/internal/api"
	"laundromat-backend/internal/db"
	"laundromat-backend/internal/device"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/order"
	"laundromat-backend/internal/power"
	"laundromat-backend/internal/store"
	"laundromat-backend/internal/syncer"
)

// recordingChannel stands in for the MQTT link: outbound messages are
// captured, and inbound hardware traffic is injected through the handler.
type recordingChannel struct {
	published []device.Message
	handler   device.Handler
}

func (c *recordingChannel) Publish(msg device.Message) error {
	c.published = append(c.published, msg)
	return nil
}

func (c *recordingChannel) Subscribe(h device.Handler) error {
	c.handler = h
	return nil
}

func (c *recordingChannel) Close() {}

func (c *recordingChannel) fromHardware(msg device.Message) {
	c.handler(msg)
}

func (c *recordingChannel) lastPublished() device.Message {
	return c.published[len(c.published)-1]
}

type recordingNotifier struct {
	pushes []string
}

func (n *recordingNotifier) Push(userID, title, body string) {
	n.pushes = append(n.pushes, userID+": "+title)
}

// TestOrderLifecycle walks one order through its full life: creation over
// HTTP, the machine starting and finishing the wash over the device channel,
// and the power reading that closes the billing record. Database state is
// verified at each step.
func TestOrderLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---

	// 1. Setup an in-memory SQLite database for testing.
	testDB, err := gorm.Open(sqlite.Open("file:lifecycle?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))
	require.NoError(t, db.SeedWashingModes(testDB))

	// 2. Wire the real components around a recording channel and notifier.
	gormStore := store.NewGormStore(testDB)
	channel := &recordingChannel{}
	notifier := &recordingNotifier{}
	recorder := power.NewRecorder(gormStore)

	synchronizer := syncer.NewSynchronizer(gormStore, channel, notifier, recorder)
	require.NoError(t, synchronizer.Run())

	manager := order.NewManager(gormStore, channel, notifier, 10000)

	handler := api.NewHandler(manager, gormStore, &webpush.Options{Subscriber: "mailto:ops@example.com"})
	router := api.NewRouter(handler, &config.ServerConfig{
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		CacheTTLSeconds: 1,
	})

	// 3. Pre-populate a customer account.
	user := model.User{ID: "u1", Name: "Linh Tran", Email: "linh@example.com", EnableNotification: true}
	require.NoError(t, testDB.Create(&user).Error)

	var orderID, authCode string

	t.Run("hardware registers a machine", func(t *testing.T) {
		channel.fromHardware(device.Message{
			Type:    device.TypeAddMachine,
			Payload: map[string]any{"id": "hw-1"},
		})

		var machine model.Machine
		require.NoError(t, testDB.First(&machine, "id = ?", "hw-1").Error)
		assert.Equal(t, 1, machine.MachineNo)
		assert.Equal(t, model.MachineIdle, machine.Status)

		ack := channel.lastPublished()
		assert.Equal(t, device.TypeAddMachine, ack.Type)
		assert.Equal(t, "success", ack.String("status"))
	})

	t.Run("customer creates an order over HTTP", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"washingMode":   "NORMAL",
			"isSoak":        true,
			"paymentMethod": "momo",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "u1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var view order.View
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "hw-1", view.MachineID)
		assert.Equal(t, 1, view.MachineNo)
		assert.Equal(t, "NORMAL", view.WashingMode)
		assert.EqualValues(t, 35000, view.Price, "NORMAL plus soak surcharge")
		assert.Equal(t, model.OrderPending, view.Status)
		assert.Len(t, view.AuthCode, 6)

		orderID = view.ID
		authCode = view.AuthCode

		// The auth code went out to the claimed machine.
		dispatch := channel.lastPublished()
		assert.Equal(t, device.TypeSendAuthCode, dispatch.Type)
		assert.Equal(t, "hw-1", dispatch.MachineID())
		assert.Equal(t, authCode, dispatch.String("code"))

		require.Len(t, notifier.pushes, 1)
		assert.Equal(t, "u1: Order created", notifier.pushes[0])
	})

	t.Run("second order finds no idle machine", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"washingMode":   "NORMAL",
			"paymentMethod": "visa",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "u1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "the only machine is held by the pending order")
	})

	t.Run("machine reports washing", func(t *testing.T) {
		channel.fromHardware(device.Message{
			Type:    device.TypeUpdateMachineStatus,
			Payload: map[string]any{"id": "hw-1", "status": "WASHING"},
		})

		var machine model.Machine
		require.NoError(t, testDB.First(&machine, "id = ?", "hw-1").Error)
		assert.Equal(t, model.MachineWashing, machine.Status)

		var o model.Order
		require.NoError(t, testDB.First(&o, "id = ?", orderID).Error)
		assert.Equal(t, model.OrderWashing, o.Status)
		require.NotNil(t, o.WashingAt)
		assert.WithinDuration(t, time.Now().UTC(), *o.WashingAt, 5*time.Second)
	})

	t.Run("machine reports idle after the wash phase", func(t *testing.T) {
		// Intermediate phases do not touch the order.
		for _, status := range []string{"RINSING", "SPINNING"} {
			channel.fromHardware(device.Message{
				Type:    device.TypeUpdateMachineStatus,
				Payload: map[string]any{"id": "hw-1", "status": status},
			})
		}
		var o model.Order
		require.NoError(t, testDB.First(&o, "id = ?", orderID).Error)
		assert.Equal(t, model.OrderWashing, o.Status)

		channel.fromHardware(device.Message{
			Type:    device.TypeUpdateMachineStatus,
			Payload: map[string]any{"id": "hw-1", "status": "IDLE"},
		})

		require.NoError(t, testDB.First(&o, "id = ?", orderID).Error)
		assert.Equal(t, model.OrderFinished, o.Status)
		require.NotNil(t, o.FinishedAt)
		assert.Nil(t, o.CancelledAt)

		require.Len(t, notifier.pushes, 2)
		assert.Equal(t, "u1: Wash finished", notifier.pushes[1])
	})

	t.Run("replayed idle report does not notify again", func(t *testing.T) {
		channel.fromHardware(device.Message{
			Type:    device.TypeUpdateMachineStatus,
			Payload: map[string]any{"id": "hw-1", "status": "IDLE"},
		})
		assert.Len(t, notifier.pushes, 2)
	})

	t.Run("power reading is attached to the finished order", func(t *testing.T) {
		channel.fromHardware(device.Message{
			Type:    device.TypePowerConsumption,
			Payload: map[string]any{"id": "hw-1", "totalKwh": 1.25},
		})

		var usage model.PowerUsageData
		require.NoError(t, testDB.First(&usage, "order_id = ?", orderID).Error)
		assert.Equal(t, "hw-1", usage.MachineID)
		assert.InDelta(t, 1.25, usage.TotalKwh, 1e-9)

		assert.Equal(t, "success", channel.lastPublished().String("status"))
	})

	t.Run("finished order is visible over HTTP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var view order.View
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, model.OrderFinished, view.Status)
		assert.Equal(t, authCode, view.AuthCode)
	})

	t.Run("order shows up in the admin search", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/search?name=linh&status=FINISHED", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Orders     []order.View `json:"orders"`
			Pagination struct {
				Total int64 `json:"total"`
			} `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Orders, 1)
		assert.Equal(t, orderID, resp.Orders[0].ID)
		assert.EqualValues(t, 1, resp.Pagination.Total)
	})

	t.Run("machine statistics aggregate the order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/machines/hw-1/statistics", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var stats store.MachineStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.EqualValues(t, 1, stats.TotalOrders)
		assert.InDelta(t, 1.25, stats.TotalPowerKwh, 1e-9)
	})
}

// TestOrderCancellationOverHTTP covers the manual administrative override.
func TestOrderCancellationOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open("file:cancellation?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()

	require.NoError(t, db.Migrate(testDB))
	require.NoError(t, db.SeedWashingModes(testDB))

	gormStore := store.NewGormStore(testDB)
	channel := &recordingChannel{}
	notifier := &recordingNotifier{}
	manager := order.NewManager(gormStore, channel, notifier, 10000)
	handler := api.NewHandler(manager, gormStore, &webpush.Options{})
	router := api.NewRouter(handler, &config.ServerConfig{
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		CacheTTLSeconds: 1,
	})

	require.NoError(t, testDB.Create(&model.User{ID: "u1", Name: "Minh Le", Email: "minh@example.com"}).Error)
	require.NoError(t, testDB.Create(&model.Machine{ID: "hw-9", MachineNo: 9, Status: model.MachineIdle}).Error)

	body, _ := json.Marshal(map[string]any{"washingMode": "THOROUGHLY", "paymentMethod": "visa"})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view order.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.EqualValues(t, 35000, view.Price)

	patch, _ := json.Marshal(map[string]string{"status": "CANCELLED"})
	req = httptest.NewRequest(http.MethodPatch, fmt.Sprintf("/api/orders/%s/status", view.ID), bytes.NewReader(patch))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var o model.Order
	require.NoError(t, testDB.First(&o, "id = ?", view.ID).Error)
	assert.Equal(t, model.OrderCancelled, o.Status)
	require.NotNil(t, o.CancelledAt)

	// The machine is released: a new order can claim it again.
	req = httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
