package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/app"
	"github.com/suPer8Hu/ai-component-studio/internal/config"
	"github.com/suPer8Hu/ai-component-studio/internal/db"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
	"github.com/suPer8Hu/ai-component-studio/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-component-studio/internal/studio"
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range jobs {
				jobID, err := rabbitmq.DecodeTurnJob(d.Body)
				if err != nil {
					wlog.Warn("bad message", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := handleJob(ctx, st.Svc, jobID); err != nil {
					_ = d.Nack(false, false)
					continue
				}
				if err := d.Ack(false); err != nil {
					wlog.Warn("ack failed", zap.String("job_id", jobID), zap.Error(err))
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleJob(ctx context.Context, svc *studio.Service, jobID string) error {
	start := time.Now()
	jctx := logger.WithRequestID(ctx, jobID)
	err := svc.ProcessJob(jctx, jobID)
	total := time.Since(start)

	if err != nil {
		logger.FromContext(jctx).Warn("job_timing_failed",
			zap.String("job_id", jobID),
			zap.Duration("total", total),
			zap.Error(err),
		)
		return err
	}
	if total > 2*time.Second {
		logger.FromContext(jctx).Info("job_timing",
			zap.String("job_id", jobID),
			zap.Duration("total", total),
		)
	}
	return nil
}
