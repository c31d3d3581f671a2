package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/skborders/internal/compress"
	"github.com/wellywell/skborders/internal/config"
	"github.com/wellywell/skborders/internal/db"
	"github.com/wellywell/skborders/internal/downstream"
	"github.com/wellywell/skborders/internal/eventbus"
	"github.com/wellywell/skborders/internal/handlers"
	"github.com/wellywell/skborders/internal/notify"
	"github.com/wellywell/skborders/internal/order"
	"github.com/wellywell/skborders/internal/queue"
	"github.com/wellywell/skborders/internal/realtime"
	"github.com/wellywell/skborders/internal/router"
	"github.com/wellywell/skborders/internal/skb"
	"github.com/wellywell/skborders/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	logger.SetFormatter(&logger.JSONFormatter{})
	level, err := logger.ParseLevel(conf.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.SetLevel(level)

	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, conf *config.ServerConfig) error {
	database, err := db.NewDatabase(conf.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	var tasks queue.Queue
	if conf.RedisURL != "" {
		rdb, err := queue.NewRedisClient(ctx, conf.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		tasks = queue.NewRedisQueue(rdb, "skborders")
	} else {
		logger.Warn("REDIS_URL is empty, tasks are kept in memory")
		tasks = queue.NewMemoryQueue()
	}

	var objects storage.ObjectStore
	if conf.S3Endpoint != "" {
		objects, err = storage.NewMinioStore(ctx, conf.S3Endpoint, conf.S3AccessKey, conf.S3SecretKey, conf.S3Bucket, conf.S3UseSSL)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("S3_ENDPOINT is empty, documents are kept in memory")
		objects = storage.NewMemoryStore()
	}

	var sender notify.Sender = notify.LogSender{}
	if conf.SMTPHost != "" {
		sender, err = notify.NewSMTPSender(conf.SMTPHost, conf.SMTPPort, conf.SMTPUser, conf.SMTPPassword, conf.SMTPSender)
		if err != nil {
			return err
		}
	}

	checks := map[string]handlers.Pinger{
		"postgres": database,
		"queue":    tasks,
	}

	var sink order.Downstream = downstream.LogPublisher{}
	if len(conf.KafkaBrokers) > 0 {
		kafka, err := downstream.NewKafkaPublisher(conf.KafkaBrokers, conf.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sink = kafka
		checks["kafka"] = kafka
	}

	hub := realtime.NewHub()
	notifier := notify.NewNotifier(sender)

	bus := eventbus.New()
	for _, eventType := range notify.Events {
		bus.Subscribe(eventType, notifier.Handle)
	}
	bus.SubscribeAll(hub.Publish)

	scheduler := queue.NewScheduler(tasks, queue.Options{
		Workers:      conf.TaskWorkers,
		PollInterval: conf.TaskPollInterval,
		Lease:        conf.TaskLease,
		Timeout:      conf.TaskTimeout,
	})

	orchestrator := order.NewOrchestrator(order.Dependencies{
		Orders:     database.Orders,
		Kinds:      database.Kinds,
		Partner:    skb.NewClient(conf.SKBBaseURL, conf.SKBAPIKey, conf.SKBPriority, conf.SKBTimeout),
		Objects:    objects,
		Tasks:      scheduler,
		Events:     bus,
		Downstream: sink,
	}, order.Config{
		PollInitialDelay: conf.PollInitialDelay,
		LinkTTL:          conf.S3LinkTTL,
		Submit:           conf.Submit.Policy(),
		Poll:             conf.Poll.Policy(),
		Finalize:         conf.Finalize.Policy(),
	})
	orchestrator.Register()

	handlerSet := handlers.NewHandlerSet(orchestrator, checks)
	r := router.NewRouter(conf, handlerSet, hub, router.RequestLogger{}, &compress.RequestUngzipper{})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("address", conf.RunAddress).Info("Starting server")
		return r.ListenAndServe()
	})
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return r.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
