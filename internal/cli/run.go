package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cybersecbot/internal/bot"
	"cybersecbot/internal/common"
	"cybersecbot/internal/config"
	"cybersecbot/internal/engine"
	"cybersecbot/internal/feeds"
	"cybersecbot/internal/metrics"
	"cybersecbot/internal/store"
	"cybersecbot/internal/verification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	userAgent   = "cybersecbot (+https://github.com/cybersecbot)"
	feedTimeout = 30 * time.Second
)

// CTFtime asks clients to stay well below one request per second
var feedRestrictions = []common.Restriction{{Requests: 1, Duration: 2 * time.Second}}

func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts.Config)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {

	if err := cfg.Validate(true); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Storage
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngine(registry)

	// Discord session, shared by the bot and the sink
	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	// Engine
	eng, err := engine.New(engine.Options{
		Store:           db,
		Sink:            bot.NewDiscordSink(session, cfg.DeliveryRestrictions()),
		Renderers:       bot.Renderers(),
		Policy:          cfg.Policy(),
		Metrics:         engineMetrics,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Retention:       cfg.Retention,
	})
	if err != nil {
		return err
	}
	if err := eng.Boot(ctx); err != nil {
		return err
	}

	// Feeds
	proxy := common.NewProxy(map[string]string{"User-Agent": userAgent}, feedRestrictions, feedTimeout)
	eventFeeds := feeds.NewFeeds(eng, proxy, nil, cfg.FeedSettings(), engineMetrics)
	feedScheduler := engine.NewScheduler("feeds", cfg.FeedRefreshInterval, cfg.ShutdownGrace, eventFeeds.Refresh)
	feedScheduler.Immediate = true

	// Verification
	var sender verification.Sender
	if cfg.EmailConfigured() {
		sender = verification.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.GmailUser, cfg.GmailAppPassword)
	} else {
		log.Warn().Msg("GMAIL_USER or GMAIL_APP_PASSWORD not set, /verify is disabled")
	}
	verifier := verification.NewVerifier(sender, cfg.VerifyDomain, cfg.VerifyCodeTTL, nil)

	// Bot
	b := bot.CreateBot(session, eng, verifier, nil, bot.Settings{
		GuildIDs:       cfg.GuildIDs,
		VerifyRoleID:   cfg.VerifyRoleID,
		VerifyRoleName: cfg.VerifyRoleName,
	})

	// Everything below stops when ctx is done or one of them fails
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	start := func(name string, task func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(runCtx); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	start("campaigns", eng.Scheduler(cfg.ShutdownGrace).Run)
	start("feeds", feedScheduler.Run)
	if cfg.MetricsAddress != "" {
		router := metrics.NewRouter(registry, b.Healthy)
		start("status server", func(ctx context.Context) error {
			return metrics.Serve(ctx, cfg.MetricsAddress, router)
		})
	}
	start("bot", b.Run)

	var failures []error
	select {
	case err := <-errs:
		failures = append(failures, err)
	case <-runCtx.Done():
	}
	log.Info().Msg("Shutting down")
	cancel()
	wg.Wait()
	close(errs)
	for err := range errs {
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}
