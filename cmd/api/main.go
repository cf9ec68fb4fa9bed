package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/app"
	"github.com/suPer8Hu/ai-component-studio/internal/config"
	"github.com/suPer8Hu/ai-component-studio/internal/db"
	"github.com/suPer8Hu/ai-component-studio/internal/httpapi"
	"github.com/suPer8Hu/ai-component-studio/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
	"github.com/suPer8Hu/ai-component-studio/internal/store/objectstore"
	"github.com/suPer8Hu/ai-component-studio/internal/store/rabbitmq"
)

func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)

	st := app.NewStudio(ctx, cfg, gdb)
	defer st.Close()

	// async turns are optional: without a broker the endpoint answers 503
	var jobs handlers.JobPublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, async turns disabled", zap.Error(err))
		} else {
			defer pub.Close()
			jobs = pub
		}
	}

	var exports handlers.ExportStore
	if cfg.Export.Enabled {
		store, err := objectstore.New(cfg.Export)
		if err != nil {
			log.Warn("export storage disabled", zap.Error(err))
		} else {
			exports = store
		}
	}

	h := handlers.NewHandler(gdb, cfg, st.Svc, jobs, exports)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
