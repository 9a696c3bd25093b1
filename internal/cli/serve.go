package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wedding-ops/internal/auth"
	"wedding-ops/internal/config"
	"wedding-ops/internal/handler"
	"wedding-ops/internal/httpapi"
	"wedding-ops/internal/syncwatch"
	"wedding-ops/internal/whatsapp"
)

func handlerConfig(cfg *config.Config) handler.Config {
	return handler.Config{
		WeddingDate:     cfg.WeddingDate,
		WeddingLocation: cfg.WeddingLocation,
		BrideName:       cfg.BrideName,
		GroomName:       cfg.GroomName,
		CountryCode:     cfg.DefaultCountryCode,
	}
}

func whatsappConfig(cmd *cobra.Command, cfg *config.Config) whatsapp.Config {
	return whatsapp.Config{
		DataDir:     cfg.WhatsAppDataDir,
		CountryCode: cfg.DefaultCountryCode,
		QROut:       cmd.ErrOrStderr(),
	}
}

// NewServeCommand runs the HTTP API, the sync watcher and, when enabled, the WhatsApp bot
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync watcher",
		Long: `Run the HTTP API and the sync watcher until interrupted.

With WHATSAPP_ENABLED=true the WhatsApp client is connected as well and
replies to invitations are recorded as RSVPs. The first connection prints a
pairing QR code to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, opts)
		},
	}
}

func serve(ctx context.Context, cmd *cobra.Command, opts *RootOptions) error {
	cfg, logger := opts.Config, opts.Logger

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot start API", err)
	}

	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to close store")
		}
	}()

	var (
		messenger handler.Messenger
		wa        *whatsapp.Service
	)
	if cfg.WhatsAppEnabled {
		wa, err = whatsapp.NewService(ctx, whatsappConfig(cmd, cfg), logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to initialize WhatsApp", err)
		}
		messenger = wa
	}

	rsvps := handler.NewRSVPHandler(a.records, a.materializer, messenger, handlerConfig(cfg), nil, nil, logger)

	if wa != nil {
		wa.SetMessageHandler(rsvps.HandleReply)
		if err := wa.Connect(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to connect to WhatsApp", err)
		}
		defer wa.Disconnect()
		logger.Info().Msg("Connected to WhatsApp, listening for RSVP replies")
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := httpapi.NewIPRateLimiter(cfg.RSVPRatePerMin, cfg.RSVPRateBurst, 10*time.Minute)
	router := httpapi.NewRouter(httpapi.Deps{
		Records:      a.records,
		Issuer:       issuer,
		RSVPs:        rsvps,
		Materializer: a.materializer,
		Seating:      a.seating,
		CheckIn:      a.checkin,
		Limiter:      limiter,
		Logger:       logger,
	}, httpapi.Options{CORSOrigins: cfg.CORSOrigins})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	watcher := syncwatch.New(a.records, a.materializer, syncwatch.Options{Interval: cfg.ResyncInterval}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("HTTP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "server stopped", err)
	}
	logger.Info().Msg("Shut down cleanly")
	return nil
}
