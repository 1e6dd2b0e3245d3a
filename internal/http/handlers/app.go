package handlers

import (
	"encoding/json"
	"net/http"

	"imagestudio/internal/imageapi"
	"imagestudio/internal/infra"
	"imagestudio/internal/infra/credentials"
)

// App carries the shared dependencies of every handler. The pipeline holds
// no per-request state, so one App instance serves all sessions.
type App struct {
	Config   *infra.Config
	Logger   infra.Logger
	Pipeline *imageapi.Pipeline
	Creds    *credentials.Resolver
}

// NewApp wires the handler container.
func NewApp(cfg *infra.Config, logger infra.Logger, pipeline *imageapi.Pipeline) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Pipeline: pipeline,
		Creds:    credentials.NewResolver(nil),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
