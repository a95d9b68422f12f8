package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Converse/internal/adapters/http"
	wssignal "github.com/dkeye/Converse/internal/adapters/signal"
	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/app/orch"
	"github.com/dkeye/Converse/internal/config"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/directory"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

var flagConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&flagConfig, "config", "c", "", "Config file (default config/config.$CONFIG_ENV.yaml)")
	f.Int("port", 8080, "HTTP port")
	f.String("mode", "release", "Gin mode: debug or release")
	f.String("static", "./web", "Static client directory")
	f.String("log-level", "info", "Log level")
	f.String("match-policy", "fifo", "Matching policy: fifo or random")
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(cfg.Level())
}

func directoryOptions(cfg *config.Config) directory.Options {
	users := make([]domain.Profile, 0, len(cfg.Directory.Users))
	for _, u := range cfg.Directory.Users {
		users = append(users, domain.Profile{
			UserID:       domain.UserID(u.ID),
			Username:     u.UserName,
			Country:      u.Country,
			FluencyLevel: u.FluencyLevel,
		})
	}
	return directory.Options{
		Driver:     directory.Driver(cfg.Directory.Driver),
		SQLitePath: cfg.Directory.SQLitePath,
		RedisAddr:  cfg.Directory.RedisAddr,
		Users:      users,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig, cmd.Flags())
	if err != nil {
		return err
	}
	setupLogging(cfg)
	cfg.Watch(func(next *config.Config) {
		zerolog.SetGlobalLevel(next.Level())
		log.Info().Str("module", "main").Str("level", next.Level().String()).Msg("log level applied")
	})

	policy, err := core.ParsePolicy(cfg.Match.Policy)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dir, err := directory.Open(ctx, directoryOptions(cfg))
	if err != nil {
		return err
	}
	defer dir.Close()

	presence := core.NewPresenceRegistry()
	sessions := core.NewSessionTable()
	mm := core.NewMatchmaker(policy, presence, sessions, core.NewWaitQueue(), cfg.Match.Seed)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	m.ObserveTables(reg, presence.Count, mm.WaitingCount, sessions.Count)

	conns := app.NewRegistry()
	bp := app.SimplePolicy{}
	o := &orch.Orchestrator{
		Matchmaker:        mm,
		Presence:          presence,
		Sessions:          sessions,
		Conns:             conns,
		Policy:            bp,
		Directory:         dir,
		Metrics:           m,
		ICEServers:        cfg.ICEServerList(),
		RequireKnownUsers: cfg.Directory.RequireKnown,
		LookupTimeout:     cfg.Directory.Timeout,
		WaitTimeout:       cfg.Match.WaitTimeout,
	}
	o.Relay = &app.SignalRelay{
		Sessions:   sessions,
		Presence:   presence,
		Conns:      conns,
		Policy:     bp,
		Metrics:    m,
		OnPeerLost: o.DropPeer,
	}

	ctl := wssignal.NewSignalWSController(o, wssignal.Limits{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		RateLimit:    cfg.Signal.RateLimit,
		RateInterval: cfg.Signal.RateInterval,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, ctl, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Str("policy", string(policy)).Msg("Converse server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return o.RunJanitor(gctx, cfg.Match.JanitorInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		conns.CancelAll()
		ctl.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("module", "main").Msg("Server exited gracefully")
	return nil
}
