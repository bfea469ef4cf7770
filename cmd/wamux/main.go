package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/talkincode/wamux/config"
	"github.com/talkincode/wamux/internal/adminapi"
	"github.com/talkincode/wamux/internal/app"
	"github.com/talkincode/wamux/internal/automation"
	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/dispatch"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/eventhub"
	"github.com/talkincode/wamux/internal/groupaction"
	"github.com/talkincode/wamux/internal/groupcache"
	"github.com/talkincode/wamux/internal/identity"
	"github.com/talkincode/wamux/internal/metrics"
	"github.com/talkincode/wamux/internal/plugins"
	"github.com/talkincode/wamux/internal/session"
	"github.com/talkincode/wamux/internal/store"
	"github.com/talkincode/wamux/internal/vault"
	"github.com/talkincode/wamux/internal/webserver"
	"github.com/talkincode/wamux/internal/whatsapp"
	"go.uber.org/zap"
)

var (
	conffile = pflag.StringP("conf", "c", "", "config yaml file")
	initdb   = pflag.Bool("initdb", false, "drop and recreate every table, then exit")
	token    = pflag.Bool("token", false, "print an admin api bearer token and exit")
	tokenTTL = pflag.Duration("token-ttl", 365*24*time.Hour, "lifetime of the token printed by --token")
	nodeID   = pflag.Int64("node", 1, "snowflake node id, unique per instance sharing a database")
)

func main() {
	pflag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// statusCounts lets the metrics collector read a registry built after it.
type statusCounts func(ctx context.Context) (map[domain.SessionStatus]int, error)

func (f statusCounts) StatusCounts(ctx context.Context) (map[domain.SessionStatus]int, error) {
	return f(ctx)
}

func run() error {
	cfg, err := config.Load(*conffile)
	if err != nil {
		return err
	}

	if *token {
		tok, err := webserver.IssueToken(cfg.Web.Secret, "admin", *tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(application.DB(), *nodeID)
	if err != nil {
		return err
	}
	resolver := identity.NewResolver(st.Contacts)
	groups := groupcache.New(st.Groups, resolver)
	creds := vault.New(st.Auth, vault.NewKeyedMutex(), resolver)
	executor := groupaction.NewExecutor(groups, resolver)

	var registry *session.Registry
	m := metrics.New(statusCounts(func(ctx context.Context) (map[domain.SessionStatus]int, error) {
		if registry == nil {
			return nil, nil
		}
		return registry.StatusCounts(ctx)
	}))

	wa := cfg.Whatsapp
	auto := cfg.Automation
	spam := automation.NewSpamTracker(auto.SpamWindow, auto.SpamThreshold, auto.SpamExpiry)
	activity := automation.NewActivity(st.Settings, groups, spam, m)
	filters := automation.NewFilters(st.Filters)

	commands := command.NewRegistry()
	if err := plugins.Register(plugins.Deps{
		Settings: st.Settings,
		Sudo:     st.Sudo,
		Ban:      st.Ban,
		Filters:  st.Filters,
		Resolver: resolver,
		Groups:   executor,
		Registry: commands,
		Started:  time.Now(),
	}); err != nil {
		return err
	}
	commands.MustRegister(activity.Command(), filters.Command())

	guard := dispatch.NewGuard(auto.DedupeTTL)
	pipeline, err := dispatch.New(dispatch.Deps{
		Registry:   commands,
		Settings:   st.Settings,
		Sudo:       st.Sudo,
		Ban:        st.Ban,
		Alternates: resolver,
		Groups:     groups,
		Guard:      guard,
		Observer:   m,
	}, wa.DispatchWorkers)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	sqlDB, err := application.DB().DB()
	if err != nil {
		return err
	}
	factory, err := whatsapp.NewFactory(sqlDB, whatsapp.Dialect(cfg.Database.Type), creds, st.Messages, whatsapp.Options{
		OSName: cfg.System.Appid,
	})
	if err != nil {
		return err
	}

	registry, err = session.New(session.Deps{
		Factory:    factory,
		Sessions:   st.Sessions,
		Tables:     st.Tables,
		Messages:   st.Messages,
		Sudo:       st.Sudo,
		Vault:      creds,
		Identities: resolver,
		Groups:     groups,
		Dispatcher: pipeline,
		Calls:      automation.NewCallGuard(st.Settings),
		Antidelete: automation.NewAntidelete(st.Settings, st.Messages),
		Forget:     []session.Forgetter{spam},
		Bus:        application.Bus(),
		Observer:   m,
	}, session.Options{
		PairingDelay:       wa.PairingDelay,
		SyncDelay:          wa.SyncDelay,
		ReconnectBase:      wa.ReconnectBase,
		ReconnectMax:       wa.ReconnectMax,
		ReconnectAttempts:  wa.ReconnectAttempts,
		RestoreConcurrency: wa.RestoreConcurrency,
	})
	if err != nil {
		return err
	}
	defer registry.Close()

	hostname, _ := os.Hostname()
	hub := eventhub.New(fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), *nodeID))
	defer hub.Close()
	if err := hub.Attach(application.Bus()); err != nil {
		return err
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := hub.UseRedis(ctx, rdb, cfg.Redis.Channel); err != nil {
			zap.L().Error("event relay disabled", zap.String("namespace", "eventhub"), zap.Error(err))
		}
	}

	if err := application.ScheduleMaintenance(app.Maintenance{
		SpamSweep:       spam.Sweep,
		DedupeSweep:     guard.Sweep,
		RetrySweep:      registry.SweepRetries,
		HealthCheck:     registry.CheckHealth,
		JanitorInterval: auto.JanitorInterval,
		HealthInterval:  wa.HealthInterval,
	}); err != nil {
		return err
	}

	adminapi.Init()
	services := &adminapi.Services{
		Sessions: registry,
		Messages: st.Messages,
		Groups:   groups,
		Settings: st.Settings,
		Actions:  executor,
	}
	srv := webserver.New(cfg.Web, webserver.Options{
		Metrics:    promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		Registerer: m.Registry,
		Events:     hub,
		Values:     services.Values(),
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	go func() {
		if _, err := registry.RestoreAll(ctx); err != nil {
			zap.L().Error("restore sessions failed", zap.String("namespace", "session"), zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		zap.L().Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			zap.L().Error("admin api stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("admin api shutdown", zap.Error(err))
	}
	return nil
}
