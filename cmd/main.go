package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/backend"
	notifapp "github.com/cristianortiz/auctionSettlement/internal/notification/application"
	notifdomain "github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	notifamqp "github.com/cristianortiz/auctionSettlement/internal/notification/infra/amqp"
	notifhttp "github.com/cristianortiz/auctionSettlement/internal/notification/infra/http"
	notifws "github.com/cristianortiz/auctionSettlement/internal/notification/infra/websocket"
	offerapp "github.com/cristianortiz/auctionSettlement/internal/offer/application"
	offerhttp "github.com/cristianortiz/auctionSettlement/internal/offer/infra/http"
	paymentapp "github.com/cristianortiz/auctionSettlement/internal/payment/application"
	paymentdomain "github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	paymenthttp "github.com/cristianortiz/auctionSettlement/internal/payment/infra/http"
	"github.com/cristianortiz/auctionSettlement/internal/payment/infra/repository/memory"
	"github.com/cristianortiz/auctionSettlement/internal/payment/infra/repository/postgres"
	settlementapp "github.com/cristianortiz/auctionSettlement/internal/settlement/application"
	settlementdomain "github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	settlementhttp "github.com/cristianortiz/auctionSettlement/internal/settlement/infra/http"
	"github.com/cristianortiz/auctionSettlement/internal/shared/config"
	"github.com/cristianortiz/auctionSettlement/internal/shared/db"
	"github.com/cristianortiz/auctionSettlement/internal/shared/db/migrations"
	"github.com/cristianortiz/auctionSettlement/internal/shared/httpserver"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/cristianortiz/auctionSettlement/internal/shared/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = 10 * time.Minute
)

// returnStore is a return-context store that can drop its expired entries.
type returnStore interface {
	paymentdomain.ReturnContextStore
	PurgeExpired(ctx context.Context) (int64, error)
}

func main() {
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting AuctionSettlement server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("AuctionSettlement server failed", zap.Error(err))
	}
	log.Info("AuctionSettlement server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.GetLogger()
	clock := scheduler.New()

	var store returnStore = memory.NewReturnContextRepository(clock)
	if cfg.DB.Enabled() {
		log.Info("Running database migrations...")
		if err := migrations.RunMigrations(cfg.DB); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		log.Info("Database migrations completed successfully.")

		pool, err := db.GetPostgresDBPool(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewReturnContextRepository(pool)
	} else {
		log.Warn("No database configured, payment return contexts are kept in memory")
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	payments := paymentapp.NewPaymentService(client, store, clock, client, paymentdomain.Policy{
		MaxAttempts:   cfg.Payment.MaxVerifyAttempts,
		PendingDelay:  cfg.Payment.PendingDelay,
		ErrorDelay:    cfg.Payment.ErrorDelay,
		RedirectDelay: cfg.Payment.RedirectDelay,
		MaxAmount:     paymentdomain.Amount(cfg.Payment.MaxAmount),
	}, cfg.Payment.Currency)

	var external notifapp.ExternalSourceFactory
	if cfg.AMQPURL != "" {
		external = notifamqp.NewSourceFactory(cfg.AMQPURL, cfg.AMQPExchange)
	}
	lifecycle := notifapp.NewLifecycle(notifws.NewPushTransport(cfg.PushURL, client.Token), clock, notifapp.LifecycleConfig{
		Channels: cfg.PushChannels,
		Router: notifapp.RouterConfig{
			DedupWindow:  cfg.Notification.DedupWindow,
			DedupHistory: cfg.Notification.DedupHistory,
			Buffer:       cfg.Notification.Buffer,
		},
		Reconnect:    notifapp.ReconnectPolicy{BaseDelay: cfg.Reconnect.BaseDelay, MaxAttempts: cfg.Reconnect.MaxAttempts},
		PollInterval: cfg.Notification.PollInterval,
	}, external, client, payments)

	offers := offerapp.NewService(client, clock, cfg.OfferTick)
	settlement := settlementapp.NewSettlementService(client, settlementdomain.Thresholds{
		Winning:   cfg.WinRate.Winning,
		Favorable: cfg.WinRate.Favorable,
	})

	lifecycle.OnLogin(func(s *notifapp.UserSession) {
		payments.Bind(s.UserID)
		settlement.Reset()
		offers.Reset()
		s.Router.Subscribe(notifdomain.TypePaymentStatus, payments.HandleNotification)
		s.Router.Subscribe(notifdomain.TypeSecondChanceOffer, offers.HandleNotification)
		s.Router.Subscribe(notifdomain.TypeAuctionResult, func(_ context.Context, m notifdomain.Message) error {
			if r, ok := m.(*notifdomain.AuctionResult); ok {
				settlement.Forget(r.AuctionID)
			}
			return nil
		})
		go func() {
			if err := offers.Load(ctx); err != nil {
				log.Warn("failed to load second-chance offers", zap.String("user_id", s.UserID), zap.Error(err))
			}
		}()
	})
	lifecycle.OnLogout(func(userID string) {
		if err := payments.Unbind(); err != nil {
			log.Warn("payment session closed with errors", zap.String("user_id", userID), zap.Error(err))
		}
		settlement.Reset()
		offers.Reset()
	})

	hub := websocket.NewHub()
	views := notifws.NewNotificationWSHandler(lifecycle, hub)

	checkout := func(_ context.Context, req *settlementapp.PaymentRequest) (any, error) {
		s, err := payments.Current()
		if err != nil {
			return nil, err
		}
		nights := make([]string, len(req.Nights))
		for i, n := range req.Nights {
			nights[i] = n.Date.String()
		}
		m, err := s.Start(paymentapp.StartRequest{
			Amount: paymentdomain.Amount(req.Amount),
			Context: paymentdomain.BookingContext{
				AuctionID: req.AuctionID,
				WinnerID:  req.WinnerID,
				Nights:    nights,
				OrderInfo: "Auction " + req.AuctionID,
			},
		})
		if err != nil {
			return nil, err
		}
		return paymenthttp.NewMachineView(m), nil
	}

	server := httpserver.NewServer(
		notifhttp.NewSessionHandler(lifecycle, client),
		views,
		settlementhttp.NewWinnerHandler(settlement, checkout),
		offerhttp.NewOfferHandler(offers),
		paymenthttp.NewPaymentHandler(payments),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		views.ListenForMessages(gctx)
		return nil
	})
	g.Go(func() error {
		purgeReturnContexts(gctx, store)
		return nil
	})
	g.Go(func() error {
		return server.Start(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			server.Shutdown(shutdownCtx),
			lifecycle.Logout(),
			offers.Close(),
			payments.Close(),
		)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func purgeReturnContexts(ctx context.Context, store returnStore) {
	log := logger.GetLogger()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Warn("failed to purge return contexts", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired return contexts", zap.Int64("count", n))
			}
		}
	}
}
