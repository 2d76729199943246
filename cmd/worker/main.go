package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"kompetisi/internal/competition"
	"kompetisi/internal/config"
	"kompetisi/internal/logger"
	"kompetisi/internal/metrics"
	"kompetisi/internal/notify"
	"kompetisi/internal/queue"
	"kompetisi/internal/store"
)

var version = "dev"

// Worker mails students about their registrations and periodically
// reconciles the cached participant counters.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, _ := os.Hostname()
	logs := logger.New(nil, logger.Options{
		RollbarToken: cfg.RollbarToken,
		Env:          cfg.Env,
		Host:         host,
		Version:      version,
	})
	defer logs.Close()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logs.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logs.Fatal("db connect failed", err)
	}
	defer db.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		logs.Warn("QUEUE_BACKEND=memory: the worker will not see events published by the API process")
		q = queue.NewInMemory(64)
	} else {
		redisClient, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			logs.Fatal("invalid REDIS_ADDR", err)
		}
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logs.Warn("redis not reachable at startup, consumer will keep retrying", map[string]interface{}{"addr": cfg.RedisAddr})
		}
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var mailer notify.Mailer
	if cfg.SendgridAPIKey != "" {
		mailer = notify.NewSendgrid(cfg.SendgridAPIKey, cfg.AppName, cfg.MailFrom)
		logs.Info("sendgrid mailer configured")
	} else {
		mailer = notify.NewLogMailer(log.New(os.Stdout, "[mail] ", log.LstdFlags))
		logs.Info("SENDGRID_API_KEY not set, emails are printed to stdout")
	}
	notifier := notify.NewNotifier(mailer)

	comps := competition.NewService(competition.NewRepository(db))
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := sched.AddFunc(cfg.ReconcileSchedule, func() {
		reconcile(ctx, comps, logs)
	}); err != nil {
		logs.Fatal("invalid RECONCILE_SCHEDULE", err, map[string]interface{}{"schedule": cfg.ReconcileSchedule})
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	messages, err := q.Consume(ctx)
	if err != nil {
		logs.Fatal("queue consume init failed", err)
	}

	logs.Info("worker started, waiting for messages...")
	for msg := range messages {
		if err := deliver(ctx, notifier, msg, sendAttempts); err != nil {
			metrics.Notifications.WithLabelValues(msg.Type, "failed").Inc()
			logs.Error("notification failed", err, map[string]interface{}{"type": msg.Type})
			if dl, ok := q.(queue.DeadLetterer); ok && ctx.Err() == nil {
				if err := dl.DeadLetter(ctx, msg); err != nil {
					logs.Error("dead-letter failed", err)
				}
			}
			continue
		}
		metrics.Notifications.WithLabelValues(msg.Type, "sent").Inc()
	}

	logs.Info("worker stopped")
}

const sendAttempts = 3

// deliver retries transient mail failures with a doubling backoff.
func deliver(ctx context.Context, n *notify.Notifier, msg queue.Message, attempts int) error {
	backoff := 2 * time.Second
	var err error
	for i := 0; i < attempts; i++ {
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = n.Handle(sendCtx, msg)
		cancel()
		if err == nil || errors.Is(err, notify.ErrMalformed) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func reconcile(ctx context.Context, comps *competition.Service, logs *logger.Logger) {
	n, err := comps.ReconcileParticipants(ctx)
	if err != nil {
		logs.Error("reconcile participants failed", err)
		return
	}
	if n > 0 {
		metrics.Reconciled.Add(float64(n))
		logs.Warn("participant counters corrected", map[string]interface{}{"competitions": n})
	}
}
