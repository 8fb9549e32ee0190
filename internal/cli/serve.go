package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neoclaw-ai/repcoach/internal/channels"
	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/logging"
	"github.com/neoclaw-ai/repcoach/internal/scheduler"
	"github.com/neoclaw-ai/repcoach/internal/store"
	"github.com/neoclaw-ai/repcoach/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Run the daily scheduler and the reply endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetLevel(slog.LevelInfo)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Init(runCtx, cfg.Telemetry, Version)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					logging.Logger().Warn("flush traces", "err", err)
				}
			}()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			llmCfg := cfg.DefaultLLM()
			logging.Logger().Info(
				"starting server",
				"channel", cfg.Coach.Channel,
				"provider", llmCfg.Provider,
				"model", llmCfg.Model,
				"home", cfg.HomeDir,
			)

			pidFilePath := cfg.PIDPath()
			if err := store.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d\n", os.Getpid())), store.PublicFileMode); err != nil {
				return fmt.Errorf("write pid file %q: %w", pidFilePath, err)
			}
			defer os.Remove(pidFilePath)

			loc, err := cfg.Schedule.Location()
			if err != nil {
				return err
			}
			service, err := scheduler.NewService(a.coach, cfg.Schedule.Cron, loc, scheduler.WithCatchUp(cfg.Schedule.CatchUp))
			if err != nil {
				return err
			}
			if err := service.Start(runCtx); err != nil {
				return err
			}

			var replyHandler http.Handler
			if cfg.Coach.Channel == config.ChannelSMS {
				replyHandler = channels.NewWebhookHandler(a.coach, cfg.Channels.SMS.AuthToken, cfg.Server.PublicURL)
			}
			server, listener, err := startHTTPServer(cfg.Server.Listen, newServerMux(cfg.Server.ReplyPath, replyHandler))
			if err != nil {
				service.Stop(context.Background())
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s, next task at %s\n", listener.Addr(), service.Next().Format(time.DateTime))

			if a.telegram != nil {
				go func() {
					if err := a.telegram.Listen(runCtx, a.coach); err != nil {
						logging.Logger().Error("telegram listener stopped", "err", err)
					}
				}()
			}

			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logging.Logger().Warn("http shutdown", "err", err)
			}
			if err := service.Stop(shutdownCtx); err != nil {
				return err
			}
			logging.Logger().Info("server stopped")
			return nil
		},
	}
}

// newServerMux mounts the health route and, when reply is set, the inbound
// reply webhook at replyPath.
func newServerMux(replyPath string, reply http.Handler) *http.ServeMux {
	if strings.TrimSpace(replyPath) == "" {
		replyPath = "/sms"
	}
	mux := http.NewServeMux()
	if reply != nil {
		mux.Handle(replyPath, reply)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func startHTTPServer(addr string, handler http.Handler) (*http.Server, net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %q: %w", addr, err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger().Error("http server stopped", "err", err)
		}
	}()
	return server, listener, nil
}
