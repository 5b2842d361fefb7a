package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"server/internal/infra"
	"server/internal/jobs"
)

// App bundles the handler dependencies.
type App struct {
	Manager *jobs.Manager
	Logger  infra.Logger
	metrics http.Handler
}

func NewApp(manager *jobs.Manager, logger infra.Logger, gatherer prometheus.Gatherer) *App {
	return &App{
		Manager: manager,
		Logger:  logger,
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}
