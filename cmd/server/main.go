package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/app"
	"github.com/classy-portal/classy/internal/handlers"
)

func main() {
	service, err := app.NewService("config.toml")
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	if err := service.Store.ApplyMigrations(service.Config.Database.MigrationsDir); err != nil {
		logger.Error.Fatalf("Failed to apply migrations: %v", err)
	}

	portalHandler := handlers.NewPortalHandler(service)

	http.HandleFunc("GET /api/v1/sdmm/status", portalHandler.HandleStatus)
	http.HandleFunc("POST /api/v1/sdmm/{delivId}/provision", portalHandler.HandleProvision)
	http.HandleFunc("POST /api/v1/autotest/grade", portalHandler.HandleAutoTestGrade)

	http.Handle("/metrics", promhttp.Handler())

	logger.Info.Printf("Starting classy server for course %s on %s", service.Config.Course.Name, service.Config.Server.Port)
	logger.Debug.Println("Requiring headers:")
	for _, h := range service.Config.API.RequiredHeaders {
		logger.Debug.Printf("  %s: %s", h.Name, h.Value)
	}
	if err := http.ListenAndServe(service.Config.Server.Port, nil); err != nil {
		logger.Error.Fatalf("Classy server failed: %v", err)
	}
}
