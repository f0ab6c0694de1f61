package main

import (
	"context"
	"log" // Use standard log only for fatal errors before the logger is set up

	"marginbot/config"
	"marginbot/internal/adapters/binanceoracle"
	"marginbot/internal/adapters/logger"
	"marginbot/internal/adapters/sqlite"
	"marginbot/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Snapshot Gateway (SQLite Adapter)
	gateway, err := sqlite.NewGateway(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize snapshot gateway: %v", err)
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing snapshot gateway")
		}
	}()

	// 4. Initialize Price Oracle (Binance Adapter)
	oracle, err := binanceoracle.New(binanceoracle.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize price oracle: %v", err)
	}

	// 5. Initialize Application Service
	service, err := app.NewTradingService(cfg, appLogger, oracle, gateway)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// 6. Run until a shutdown signal arrives
	if err := service.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
