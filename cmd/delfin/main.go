package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"delfin/internal/calsync"
	"delfin/internal/config"
	"delfin/internal/ics"
	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/notify"
	"delfin/internal/registration"
	"delfin/internal/scheduler"
	"delfin/internal/store"
	"delfin/internal/web"
)

const shutdownTimeout = 10 * time.Second

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	syncOnce   bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("delfin starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone; using UTC", err, "timezone", conf.Timezone)
		loc = time.UTC
	}
	channels := syncChannels(conf.Sync.Channels)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"public_url", conf.PublicURL,
		"timezone", loc.String(),
		"database", conf.Database.Driver,
		"queue", conf.Queue.Backend,
		"sync_cron", conf.Sync.Cron,
		"messages_cron", conf.Messages.Cron,
		"channels", len(channels),
		"sync_once", flags.syncOnce,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st, err := openStore(ctx, conf.Database)
	if err != nil {
		appLog.Error("failed to open database", err, "driver", conf.Database.Driver)
		os.Exit(1)
	}
	defer st.Close()

	queue, err := newQueue(ctx, conf.Queue)
	if err != nil {
		appLog.Error("failed to start notification queue", err, "backend", conf.Queue.Backend)
		os.Exit(1)
	}

	fetcher := ics.NewFetcher(conf.Sync.CacheDir, time.Duration(conf.Sync.FetchTimeoutSeconds)*time.Second)
	horizon := time.Duration(conf.Sync.RecurrenceHorizonDays) * 24 * time.Hour
	syncer := calsync.NewSyncer(st, fetcher, calsync.NewReconciler(st, queue), horizon)

	dispatcher, whatsapp := newDispatcher(ctx, conf, st, loc)

	if flags.syncOnce {
		ok := syncOnce(ctx, syncer, channels, queue, dispatcher.Handle)
		if whatsapp != nil {
			whatsapp.Disconnect()
		}
		if !ok {
			st.Close()
			os.Exit(2)
		}
		return
	}

	// Workers get their own context so they can drain after the root
	// context is cancelled.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		queue.Consume(workerCtx, dispatcher.Handle)
	}()

	server := web.NewServer(conf, web.Deps{
		Store:         st,
		Syncer:        syncer,
		Exporter:      calsync.NewExporter(st),
		Dispatcher:    dispatcher,
		Queue:         queue,
		Registrations: registration.NewService(st, registration.NewMinistry(conf.Ministry)),
	})
	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	sched := scheduler.New(loc)
	if err := sched.AddSync(conf.Sync.Cron, syncer, channels); err != nil {
		appLog.Error("invalid sync schedule", err)
		cancel()
	}
	if err := sched.AddMessages(conf.Messages.Cron, dispatcher); err != nil {
		appLog.Error("invalid messages schedule", err)
		cancel()
	}
	sched.Start()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	sched.Stop(shutdownTimeout)

	// Close first so queued jobs drain, then stop anything still blocked.
	if err := queue.Close(); err != nil {
		appLog.Error("queue close failed", err)
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		appLog.Info("notification workers did not drain in time")
	}
	stopWorkers()

	if whatsapp != nil {
		whatsapp.Disconnect()
	}
	appLog.Info("delfin exiting")
}

// syncOnce syncs every channel once with workers running, so the jobs the
// sync enqueues are handled before the queue is closed. It reports whether
// every room synced.
func syncOnce(ctx context.Context, syncer scheduler.Syncer, channels []model.Channel, queue notify.Queue, handle notify.Handler) bool {
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		queue.Consume(ctx, handle)
	}()

	ok := true
	for _, res := range syncer.SyncAll(ctx, channels) {
		appLog.Info("sync result", "channel", res.Channel, "message", res.Message)
		ok = ok && res.Success && res.RoomsFailed == 0
	}

	if err := queue.Close(); err != nil {
		appLog.Error("queue close failed", err)
	}
	<-workersDone
	return ok
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/delfin/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env-file", ".env", "Optional .env file with secrets")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.syncOnce, "sync-once", false, "Sync every inbound calendar once and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func openStore(ctx context.Context, dbc config.DatabaseConfig) (*store.Store, error) {
	if dbc.Driver == store.DriverSQLite {
		if dir := sqliteDir(dbc.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	st, err := store.Open(dbc.Driver, dbc.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	if err := st.SeedDefaults(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// sqliteDir returns the directory of a file DSN such as
// "file:./var/delfin.db?_foreign_keys=on", or "" for in-memory databases.
func sqliteDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" || strings.Contains(path, ":memory:") {
		return ""
	}
	return filepath.Dir(path)
}

func newQueue(ctx context.Context, qc config.QueueConfig) (notify.Queue, error) {
	if qc.Backend == "redis" {
		q, err := notify.NewRedisQueue(ctx, notify.RedisOptions{
			Addr:     qc.RedisAddr,
			Password: qc.RedisPassword,
			DB:       qc.RedisDB,
			Key:      qc.RedisKey,
			Workers:  qc.Workers,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return notify.NewMemoryQueue(qc.Buffer, qc.Workers), nil
}

// newDispatcher registers a sender per configured channel. Channels that
// are not configured are skipped by the dispatcher.
func newDispatcher(ctx context.Context, conf *config.Config, st *store.Store, loc *time.Location) (*notify.Dispatcher, *notify.WhatsAppSender) {
	dcfg := notify.DispatcherConfig{
		Language:   conf.Messages.DefaultLanguage,
		DaysBefore: conf.Messages.DaysBeforeArrival,
		Location:   loc,
		Variables:  conf.Messages.Variables,
	}

	var tg *notify.TelegramSender
	if conf.Telegram.BotToken != "" {
		s, err := notify.NewTelegramSender(conf.Telegram.BotToken, conf.Telegram.ChatID, "")
		if err != nil {
			appLog.Error("telegram disabled", err)
		} else {
			tg = s
			dcfg.HostChat = s.HostChat()
		}
	}

	d := notify.NewDispatcher(st, dcfg)
	if tg != nil {
		d.Register(model.DeliveryTelegram, tg)
	}
	if email := notify.NewEmailSender(conf.Email); email != nil {
		d.Register(model.DeliveryEmail, email)
	}

	if !conf.WhatsApp.Enabled {
		return d, nil
	}
	wa, err := notify.NewWhatsAppSender(ctx, conf.WhatsApp.DataDir)
	if err != nil {
		appLog.Error("whatsapp disabled", err)
		return d, nil
	}
	d.Register(model.DeliveryWhatsApp, wa)
	go func() {
		if err := wa.Connect(ctx); err != nil {
			appLog.Error("whatsapp connect failed", err)
		}
	}()
	return d, wa
}

func syncChannels(names []string) []model.Channel {
	out := make([]model.Channel, 0, len(names))
	for _, n := range names {
		ch := model.Channel(strings.ToLower(strings.TrimSpace(n)))
		if ch == model.ChannelBooking || ch == model.ChannelAirbnb {
			out = append(out, ch)
			continue
		}
		appLog.Info("ignoring unknown sync channel", "channel", n)
	}
	return out
}
