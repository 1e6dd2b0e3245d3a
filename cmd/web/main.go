package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"imagestudio/internal/http/handlers"
	"imagestudio/internal/http/httpapi"
	"imagestudio/internal/imageapi"
	"imagestudio/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	client := imageapi.NewClient(imageapi.ClientOptions{
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: httpClient,
		Logger:     &logger,
		MaxRetries: cfg.MaxRetries,
	})
	pipeline := imageapi.NewPipeline(client, imageapi.NewMaterializer(httpClient))

	app := handlers.NewApp(cfg, logger, pipeline)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("web UI listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
