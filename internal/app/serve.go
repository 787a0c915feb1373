package app

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ticketclassifier/internal/digest"
	slackbot "ticketclassifier/internal/integrations/slack"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot, the weekly digest and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	logger := rt.logger
	if !cfg.SlackConfigured() {
		return errors.New("serve requires slack_bot_token and slack_app_token")
	}

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	botOpts := []slackbot.Option{
		slackbot.WithLogger(logger.Named("slack")),
		slackbot.WithManagers(cfg.ManagerSlackIDs, func(ctx context.Context) ([]slack.User, error) {
			return api.GetUsersContext(ctx)
		}),
	}
	if rt.store != nil {
		botOpts = append(botOpts, slackbot.WithStats(rt.store))
	}
	bot := slackbot.New(api, rt.triage, botOpts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Start(ctx, api) })

	switch {
	case cfg.ReportChannelID == "":
		logger.Info("digest disabled: no report_channel_id")
	case rt.store == nil:
		logger.Info("digest disabled: history is off")
	default:
		sched, err := digest.NewScheduler(cfg.DigestSchedule, rt.location(), rt.store, api, cfg.ReportChannelID, logger.Named("digest"))
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(ctx) })
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(rt.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("starting ticket classifier bot", zap.String("mode", string(rt.triage.Mode())))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}

// metricsHandler serves the classifier metrics plus Go runtime and process
// collectors on /metrics, and a liveness probe on /healthz.
func metricsHandler(reg *prometheus.Registry) http.Handler {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
