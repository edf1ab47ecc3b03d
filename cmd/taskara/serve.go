package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alecgard/taskara/internal/api"
	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/config"
	"github.com/alecgard/taskara/internal/mail"
	"github.com/alecgard/taskara/internal/metrics"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ratelimit"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Taskara API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the configuration and installs the process logger. The
// returned func flushes the log file, if any.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, closer := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, func() { _ = closer.Close() }, nil
}

// newMailer builds the invitation mail sender: SMTP behind a circuit breaker,
// or the log sender when no relay is configured.
func newMailer(cfg config.MailConfig, m *metrics.Metrics) mail.Sender {
	var sender mail.Sender = mail.LogSender{Logger: slog.Default()}
	if cfg.Driver == "smtp" {
		smtp := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			Timeout:  cfg.Timeout,
		})
		sender = mail.NewBreakerSender(smtp, mail.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Cooldown:    cfg.Breaker.Cooldown,
		})
	}
	return mail.ObservedSender{Next: sender, OnResult: m.IncMailResult}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	store, err := openStore(ctx, cfg.Database, m)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}()

	issuer := auth.NewIssuer(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	cookies := auth.Cookies{
		Secure:     cfg.Auth.CookieSecure,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}

	userService := user.NewService(store, issuer)
	projectService := project.NewService(store, newMailer(cfg.Mail, m), project.Options{
		InvitationTTL:  cfg.Invitation.TTL,
		FrontendOrigin: cfg.Invitation.FrontendOrigin,
		OnInvitation:   m.IncInvitationEvent,
	})
	ticketService := ticket.NewService(store)

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
	go limiter.RunSweeper(ctx, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Users:    userService,
		Projects: projectService,
		Tickets:  ticketService,
		Authenticator: &auth.Authenticator{
			Issuer:   issuer,
			Sessions: user.NewAuthAdapter(userService),
			Cookies:  cookies,
			OnResult: m.IncAuthResult,
		},
		Cookies:        cookies,
		Limiter:        limiter,
		Metrics:        m,
		Store:          store,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "driver", cfg.Database.Driver, "mail", cfg.Mail.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}
	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
