package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coldchain-monitor/internal/api"
	"coldchain-monitor/internal/config"
	"coldchain-monitor/internal/store"
)

func main() {
	// Logování na JSON (standard pro kontejnery)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	logger.Info("Startuji History API", "port", cfg.HTTPPort)

	ctx := context.Background()

	// Repozitář sdílí implementaci s procesorem - API z něj používá
	// jen čtecí metody (read-only projekce, žádná rozhodovací logika).
	repo, err := store.NewRepository(ctx, cfg.PostgresURL, cfg.ValkeyAddr)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k databázím", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	// Wiring
	handler := api.NewHandler(repo, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	// Healthcheck pro Docker + Prometheus endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /prometheus", promhttp.Handler())

	// Handler obalíme CorsMiddlewarem, aby fungovalo volání z dashboardu.
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.CorsMiddleware(mux),
	}

	logger.Info("HTTP server naslouchá", "address", server.Addr)

	if err := server.ListenAndServe(); err != nil {
		logger.Error("Server spadl", "error", err)
		os.Exit(1)
	}
}
