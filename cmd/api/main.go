package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-inbox/internal/api/http/handlers"
	"github.com/spec-kit/support-inbox/internal/auth"
	"github.com/spec-kit/support-inbox/internal/billing"
	"github.com/spec-kit/support-inbox/internal/channel"
	"github.com/spec-kit/support-inbox/internal/config"
	"github.com/spec-kit/support-inbox/internal/events"
	"github.com/spec-kit/support-inbox/internal/locker"
	"github.com/spec-kit/support-inbox/internal/observability"
	"github.com/spec-kit/support-inbox/internal/persistence"
	"github.com/spec-kit/support-inbox/internal/repository"
	"github.com/spec-kit/support-inbox/internal/service"

	httptransport "github.com/spec-kit/support-inbox/internal/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo   repository.TicketRepository
		messageRepo  repository.MessageRepository
		customerRepo repository.CustomerRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
		messageRepo = repository.NewMessageRepository(pool)
		customerRepo = repository.NewCustomerRepository(pool)
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		messageRepo = repository.NewMemoryMessageRepository()
		customerRepo = repository.NewMemoryCustomerRepository()
	}

	broker := events.NewBroker(cfg.Realtime.SubscriberBuffer, logger)

	var publisher events.Publisher = broker
	var relay *events.RedisRelay
	if redis.Client != nil {
		relay = events.NewRedisRelay(redis.Client, broker, logger)
		publisher = relay
	}

	var counter billing.UsageCounter
	if redis.Client != nil {
		counter = billing.NewRedisCounter(redis.Client)
	} else {
		counter = billing.NewMemoryCounter()
	}
	gate := billing.NewPlanGate(cfg.Billing, counter)

	locks := locker.NewKeyedMutex()
	metrics := observability.NewMetrics()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Locks:       locks,
		Publisher:   publisher,
		Logger:      logger,
		LockWait:    cfg.Coordinator.LockWait(),
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		TicketRepo:   ticketRepo,
		MessageRepo:  messageRepo,
		CustomerRepo: customerRepo,
		Locks:        locks,
		Publisher:    publisher,
		Gate:         gate,
		Logger:       logger,
		LockWait:     cfg.Coordinator.LockWait(),
	})

	inbound := channel.NewInbound(customerRepo, messageService, logger)
	dispatcher := channel.NewDispatcher(channel.DispatcherDependencies{
		Broker:       broker,
		Sender:       channel.NewHTTPSender(cfg.Channel),
		TicketRepo:   ticketRepo,
		CustomerRepo: customerRepo,
		Logger:       logger,
		MaxRetries:   cfg.Channel.MaxRetries,
	})

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService, metrics),
		Messages:       handlers.NewMessagesHandler(messageService, metrics),
		Channel:        handlers.NewChannelHandler(inbound, cfg.Channel, metrics),
		Realtime:       handlers.NewRealtimeHandler(broker, authMiddleware, logger),
		AuthMiddleware: authMiddleware,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return app.Listen(cfg.App.Addr())
	})
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})
	if relay != nil {
		group.Go(func() error {
			return relay.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.Shutdown()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service stopped", zap.Error(err))
	}
}
