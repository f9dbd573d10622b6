package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/auth"
	"positionengine/src/blacklist"
	"positionengine/src/engine"
	"positionengine/src/handler"
	"positionengine/src/repository"
)

// StartServer runs the HTTP API until SIGINT/SIGTERM, then shuts down
// gracefully.
func StartServer(port string, eng *engine.Engine, checker *blacklist.Checker) {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("\"/healthcheck\" error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(repository.NewAccountRepository()))

		r.Post("/signals", handler.SubmitSignalHandler(eng))
		r.Get("/positions", handler.ListPositionsHandler(eng))
		r.Post("/positions/{id}/close", handler.ForceCloseHandler(eng))
		r.Post("/blacklist/reload", handler.ReloadBlacklistHandler(checker))
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), GetConfig().ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
