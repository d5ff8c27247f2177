package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"laundromat-backend/config"
	"laundromat-backend/internal/api"
	"laundromat-backend/internal/db"
	"laundromat-backend/internal/device"
	"laundromat-backend/internal/notification"
	"laundromat-backend/internal/order"
	"laundromat-backend/internal/power"
	"laundromat-backend/internal/store"
	"laundromat-backend/internal/syncer"
)

func main() {
	logger := log.New(os.Stdout, "laundryd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Generate them and add them to your config file.")
	}
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := notification.NewDispatcher(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	dispatcher.Start(ctx)

	channel, err := device.NewChannel(device.Options{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  fmt.Sprintf("%s-%d", cfg.MQTT.ClientID, time.Now().UnixNano()),
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
	})
	if err != nil {
		logger.Fatalf("failed to connect to MQTT broker: %v", err)
	}
	defer channel.Close()
	logger.Printf("connected to device channel at %s", cfg.MQTT.BrokerURL)

	recorder := power.NewRecorder(appStore)
	machineSync := syncer.NewSynchronizer(appStore, channel, dispatcher, recorder)
	machineSync.CancelWaitingOrders = cfg.Sync.CancelWaitingOrders
	if err := machineSync.Run(); err != nil {
		logger.Fatalf("failed to subscribe to device channel: %v", err)
	}

	orders := order.NewManager(appStore, channel, dispatcher, cfg.Pricing.SoakSurcharge)
	handler := api.NewHandler(orders, appStore, &webpushOptions)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
