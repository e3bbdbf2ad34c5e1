package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bushta-cyber/fastmed/internal/apiserver"
	"github.com/bushta-cyber/fastmed/pkg/config"
	"github.com/bushta-cyber/fastmed/pkg/database"
	"github.com/bushta-cyber/fastmed/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting portal API")

	var store apiserver.Store
	if cfg.Database.Enabled {
		db, err := database.NewConnection(&cfg.Database, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()
		store = apiserver.NewPostgresStore(db)
	} else {
		log.Info("Database disabled, using the seeded in-memory store")
		store = apiserver.NewMemoryStore()
	}

	server := apiserver.NewServer(cfg, store, log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down portal API")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Portal API stopped")
}
