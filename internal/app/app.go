// Package app assembles the bot: configuration, logging, the Telegram
// control adapter, the messaging-channel client, the dispatch engine, and
// the persistence glue between them.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blastbot/internal/bot"
	"blastbot/internal/campaign"
	"blastbot/internal/channel"
	"blastbot/internal/channel/gateway"
	"blastbot/internal/config"
	"blastbot/internal/contacts"
	"blastbot/internal/notify"
	"blastbot/internal/session"
	"blastbot/internal/status"
	"blastbot/internal/store"
	"blastbot/internal/transport"
	"blastbot/internal/transport/telegram"
	"blastbot/pkg/logx"
)

// channelSuffix is the messaging channel's address suffix appended to every
// normalized recipient identifier.
const channelSuffix = "@c.us"

// notifyRatePerSec bounds operator-facing pushes so progress reports never
// trip the control channel's flood protection.
const notifyRatePerSec = 5

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	client  channel.Client
	gw      *gateway.Client // nil when no gateway is configured
	conn    *channel.Connectivity

	registry  *contacts.Registry
	st        store.Store
	notif     *notify.Service
	campaigns *campaign.Manager
	sessions  *session.Manager
	router    *bot.Router
	status    *status.Server
	janitor   *cron.Cron

	updates chan transport.Message

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// saveMu serializes full-snapshot writes; hooks fire from the dispatch
	// loop, the router, and the janitor concurrently.
	saveMu sync.Mutex
}

// New loads the configuration and wires every component. Nothing runs until
// Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.FilePath != "",
			Path:    cfg.Logging.FilePath,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	adapter, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token},
		logs.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	conn := channel.NewConnectivity(logs.Logger().With(logx.String("comp", "channel")))

	var (
		client channel.Client
		gw     *gateway.Client
	)
	if cfg.Gateway.URL != "" {
		gw, err = gateway.New(gateway.Config{
			BaseURL: cfg.Gateway.URL,
			Token:   cfg.Gateway.Token,
		}, logs.Logger().With(logx.String("comp", "gateway")))
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("gateway client: %w", err)
		}
		client = gw
	} else {
		// No gateway configured: the bot still serves contact management
		// and status; sends report the channel as not ready.
		log.Warn("no messaging gateway configured; sends are disabled")
		client = offlineClient{}
	}

	norm := contacts.Normalizer{
		CountryCode: cfg.Contacts.CountryCode,
		AltPrefixes: cfg.Contacts.AltPrefixes,
		Suffix:      channelSuffix,
	}
	registry := contacts.NewRegistry(norm)

	st, err := store.Open(store.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, logs.Logger().With(logx.String("comp", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	notif := notify.New(adapter, notifyRatePerSec, logs.Logger().With(logx.String("comp", "notify")))

	campaigns := campaign.NewManager(campaignConfig(cfg), client, conn, notif,
		logs.Logger().With(logx.String("comp", "campaign")))

	sessions := session.NewManager(sessionConfig(cfg, norm), registry, campaigns, client, notif,
		logs.Logger().With(logx.String("comp", "session")))

	router := bot.New(bot.Config{Operators: cfg.Telegram.Operators},
		registry, campaigns, sessions, notif, conn,
		logs.Logger().With(logx.String("comp", "bot")))

	a := &App{
		cfgm:      cfgm,
		logs:      logs,
		log:       log,
		adapter:   adapter,
		client:    client,
		gw:        gw,
		conn:      conn,
		registry:  registry,
		st:        st,
		notif:     notif,
		campaigns: campaigns,
		sessions:  sessions,
		router:    router,
		status:    status.NewServer(logs.Logger().With(logx.String("comp", "status")), conn),
		janitor:   cron.New(),
		updates:   make(chan transport.Message, 256),
	}

	// Persist the snapshot after every durable mutation.
	campaigns.OnFinished(a.saveState)
	sessions.OnMutate(a.saveState)
	router.OnMutate(a.saveState)
	return a, nil
}

func campaignConfig(cfg *config.Config) campaign.Config {
	return campaign.Config{
		Pacing: campaign.PacingPolicy{
			MinDelay:   cfg.Dispatch.MinDelay(),
			MaxDelay:   cfg.Dispatch.MaxDelay(),
			BatchSize:  cfg.Dispatch.BatchSize,
			BatchDelay: cfg.Dispatch.BatchDelay(),
		},
		Retry: campaign.RetryPolicy{
			MaxAttempts: cfg.Dispatch.MaxRetries,
			Backoff:     cfg.Dispatch.RetryBackoff(),
		},
		EnableDeliveryCheck: cfg.Dispatch.EnableDeliveryCheck,
		HistoryMax:          cfg.Dispatch.HistoryMax,
	}
}

func sessionConfig(cfg *config.Config, norm contacts.Normalizer) session.Config {
	sc := session.Config{}
	if cfg.Contacts.TestNumber != "" {
		sc.TestRecipient = norm.Normalize(cfg.Contacts.TestNumber)
	}
	return sc
}

// Start restores persisted state and launches every background loop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.restoreState(runCtx); err != nil {
		// A corrupt snapshot should not brick the bot; start empty and let
		// the next save overwrite it.
		a.log.Warn("state restore failed; starting empty", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start telegram adapter: %w", err)
	}

	if err := a.status.Start(status.Config{Addr: a.cfgm.Get().HTTP.ListenAddr()}); err != nil {
		cancel()
		return fmt.Errorf("start status endpoint: %w", err)
	}

	a.go1("bot.route", func() { a.router.Run(runCtx, a.updates) })
	a.go1("channel.watch", func() { a.router.WatchConnectivity(runCtx, a.conn.Subscribe()) })
	if a.gw != nil {
		a.go1("gateway.poll", func() { a.gw.Poll(runCtx, a.conn) })
	}

	// History janitor: daily cap enforcement on the campaign archive.
	if _, err := a.janitor.AddFunc("@daily", func() {
		if n := a.campaigns.PruneHistory(); n > 0 {
			a.log.Info("campaign history pruned", logx.Int("removed", n))
			a.saveState(runCtx)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule janitor: %w", err)
	}
	a.janitor.Start()

	// Config hot reload fan-out.
	sub := a.cfgm.Subscribe(4)
	a.go1("config.reload", func() {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})
	a.go1("config.watch", func() {
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	})

	a.log.Info("started")
	return nil
}

// applyConfig pushes a hot-reloaded configuration into the live components.
// Pacing and retry changes take effect on the next campaign; the operator
// allow-list and log sinks apply immediately.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.FilePath != "",
			Path:    cfg.Logging.FilePath,
		},
	})
	a.router.Apply(bot.Config{Operators: cfg.Telegram.Operators})
	a.campaigns.Apply(campaignConfig(cfg))
	a.sessions.Apply(sessionConfig(cfg, contacts.Normalizer{
		CountryCode: cfg.Contacts.CountryCode,
		AltPrefixes: cfg.Contacts.AltPrefixes,
		Suffix:      channelSuffix,
	}))
	a.log.Info("config applied")
}

// Stop winds the bot down: stop the running campaign at its next recipient
// boundary, flush the state snapshot, then release the transports.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(stepCtx)
		}()
		select {
		case <-done:
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached", logx.String("step", name))
		}
	}

	a.campaigns.RequestStop()
	step("campaign", 5*time.Second, func(context.Context) { a.campaigns.Wait() })

	janitorCtx := a.janitor.Stop()
	step("janitor", 2*time.Second, func(c context.Context) {
		select {
		case <-janitorCtx.Done():
		case <-c.Done():
		}
	})

	step("status", 2*time.Second, func(c context.Context) { a.status.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) { _ = a.adapter.Stop(c) })

	// Final snapshot after the dispatch loop has archived its campaign.
	a.saveState(context.WithoutCancel(ctx))
	if err := a.st.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}

	step("workers", 2*time.Second, func(c context.Context) {
		done := make(chan struct{})
		go func() { a.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-c.Done():
		}
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) go1(name string, fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
		a.log.Debug("worker exited", logx.String("worker", name))
	}()
}

// restoreState loads the persisted snapshot into the registry and the
// campaign archive. A campaign that was running when the process died is
// recorded as stopped; mid-campaign recovery is out of scope.
func (a *App) restoreState(ctx context.Context) error {
	st, err := a.st.Load(ctx)
	if err != nil {
		return err
	}
	a.registry.Replace(st.Contacts)
	hist := st.Campaigns
	if st.Current != nil {
		cur := *st.Current
		cur.Status = string(campaign.StatusStopped)
		hist = append(hist, cur)
	}
	a.campaigns.RestoreHistory(hist)
	a.log.Info("state restored",
		logx.Int("contacts", a.registry.Len()),
		logx.Int("campaigns", len(hist)))
	return nil
}

// saveState rewrites the full snapshot. Errors are logged, never propagated:
// a failed save must not fail the mutation that triggered it.
func (a *App) saveState(ctx context.Context) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	st := store.State{
		Contacts:  a.registry.Snapshot(),
		Campaigns: a.campaigns.History(),
	}
	if c, ok := a.campaigns.Current(); ok {
		rec := c.Record()
		st.Current = &rec
	}
	if err := a.st.Save(ctx, st); err != nil {
		a.log.Error("state save failed", logx.Err(err))
	}
}

// offlineClient stands in when no messaging gateway is configured.
type offlineClient struct{}

func (offlineClient) SendMessage(context.Context, string, string) (channel.MessageID, error) {
	return "", channel.ErrNotReady
}

func (offlineClient) Lookup(context.Context, string) (bool, error) {
	return false, channel.ErrNotReady
}

func (offlineClient) AckLevel(context.Context, channel.MessageID) (channel.AckLevel, error) {
	return channel.AckError, channel.ErrNotReady
}
