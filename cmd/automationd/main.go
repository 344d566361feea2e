// Command automationd runs the property-management automation core: the
// trigger dispatcher, workflow engine, cron scheduler, and the three queue
// workers.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/actions"
	"github.com/livingstone45/stayspot-sub007/audit"
	"github.com/livingstone45/stayspot-sub007/config"
	"github.com/livingstone45/stayspot-sub007/queue"
	"github.com/livingstone45/stayspot-sub007/runner"
	"github.com/livingstone45/stayspot-sub007/scheduler"
	"github.com/livingstone45/stayspot-sub007/trigger"
	"github.com/livingstone45/stayspot-sub007/workers"
	"github.com/livingstone45/stayspot-sub007/workflow"
)

var cli struct {
	Config   string `help:"Path to the YAML configuration file." short:"c" type:"path"`
	LogLevel string `help:"Override the configured log level." enum:"trace,debug,info,warn,error,"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("automationd"),
		kong.Description("Property management automation daemon."),
	)
	kctx.FatalIfErrorf(run())
}

func run() error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable audit log.
	db, err := sql.Open("sqlite", cfg.Audit.DSN)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer db.Close()
	auditLog := audit.NewSQLiteLog(db, "audit_log")

	// Queue stores, redis when configured, in-memory otherwise.
	var redisClient *redis.Client
	newStore := func(name string) queue.Store {
		if cfg.Redis.Addr == "" {
			return queue.NewMemoryStore()
		}
		if redisClient == nil {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}
		return queue.NewRedisStore(redisClient, cfg.Redis.Prefix+name+":")
	}
	if cfg.Redis.Addr == "" {
		logger.Warn("no redis configured, queued jobs will not survive restarts")
	}

	// Dispatcher first; workers and the engine both hang off it.
	dispatcher := trigger.NewDispatcher(
		trigger.WithAuditLog(auditLog),
		trigger.WithLogger(logger),
	)

	queueOpts := []queue.Option{
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithLeaseDuration(cfg.Queue.LeaseDuration),
		queue.WithJobTimeout(cfg.Queue.JobTimeout),
		queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		queue.WithBackoff(runner.ExponentialBackoffStrategy{Base: cfg.Queue.BackoffBase}),
		queue.WithPublisher(dispatcher),
	}
	dev := devCollaborators{logger: logger}

	notifications, err := workers.NewNotificationWorker(newStore("notification"), workers.NotificationDeps{
		Mailer:   dev,
		SMS:      dev,
		Push:     dev,
		Realtime: dev,
		Store:    dev,
	}, logger, queueOpts...)
	if err != nil {
		return err
	}
	properties, err := workers.NewPropertyWorker(newStore("property"), workers.PropertyDeps{
		Store:     dev,
		Images:    dev,
		Geocoder:  dev,
		Publisher: dev,
		External:  dev,
	}, logger, queueOpts...)
	if err != nil {
		return err
	}
	syncs, err := workers.NewSyncWorker(newStore("sync"), workers.SyncDeps{
		Market:       dev,
		Listings:     dev,
		Tenants:      dev,
		Ledger:       dev,
		Validator:    dev,
		Store:        dev,
		Integrations: dev,
		Publisher:    dispatcher,
	}, logger, queueOpts...)
	if err != nil {
		return err
	}

	// Workflow engine with the built-in actions and definitions.
	registry := workflow.NewActionRegistry()
	if err := actions.RegisterAll(registry, actions.Deps{
		Logger:   logger,
		Geocoder: dev,
		Notifier: notifications,
	}); err != nil {
		return err
	}
	engine := workflow.NewEngine(registry,
		workflow.WithAuditLog(auditLog),
		workflow.WithLogger(logger),
		workflow.WithStepTimeout(cfg.Engine.StepTimeout),
	)
	for _, def := range actions.Workflows() {
		if err := engine.RegisterWorkflow(def.ID, def); err != nil {
			return err
		}
	}
	for _, def := range cfg.Workflows {
		if err := engine.RegisterWorkflow(def.ID, def); err != nil {
			return err
		}
	}
	bindings := actions.Bindings()
	for name, ids := range cfg.Bindings {
		bindings[name] = append(bindings[name], ids...)
	}
	for name, ids := range bindings {
		for _, id := range ids {
			engine.RegisterTriggerBinding(name, id)
		}
	}
	dispatcher.SetForwarder(engine)

	// Recurring trigger publications plus queue housekeeping.
	sched := scheduler.New(
		scheduler.WithLogger(logger),
		scheduler.WithJobTimeout(cfg.Scheduler.JobTimeout),
		scheduler.WithJobRetries(cfg.Scheduler.JobRetries,
			runner.ExponentialBackoffStrategy{Base: cfg.Queue.BackoffBase}),
	)
	for _, job := range cfg.Schedules {
		job := job
		err := sched.Schedule(job.Name, job.Cron, func(ctx context.Context) error {
			dispatcher.Publish(ctx, job.Trigger, automation.Payload(job.Data),
				automation.RequestContext{ActorID: "system", RequestID: job.Name})
			return nil
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	allQueues := []*queue.Worker{notifications.Queue(), properties.Queue(), syncs.Queue()}
	err = sched.Schedule("queue-cleanup", "30 1 * * *", func(ctx context.Context) error {
		for _, q := range allQueues {
			if _, err := q.CleanupOldJobs(ctx, cfg.Queue.CleanupDays); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, q := range allQueues {
		if err := q.Start(ctx); err != nil {
			return err
		}
	}
	sched.Start()
	logger.Info("automationd started")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sched.Stop()
		for _, q := range allQueues {
			q.Stop()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, exiting with jobs in flight")
	}
	return nil
}
