// cmd/fulfillment-service/main.go
package main

import (
	"context"
	"flag"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/config"
	"atlas/internal/pkg/httpclient"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/fulfillment/application"
	"atlas/internal/service/fulfillment/domain"
	"atlas/internal/service/fulfillment/infrastructure"
	"atlas/internal/service/fulfillment/infrastructure/adapter"
	"atlas/internal/service/fulfillment/interfaces"
)

const (
	serviceName = "fulfillment-service"
	servicePort = 8090
)

var tracer = otel.Tracer(serviceName)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init(serviceName)
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to load config")
	}

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			registerFulfillment(appCtx, cfg)
		},
	})
}

func registerFulfillment(appCtx bootstrap.AppCtx, cfg *config.Config) {
	ctx := context.Background()

	// --- 基础设施 ---
	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect mysql")
	}
	if err := infrastructure.AutoMigrate(db); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to migrate schema")
	}

	orders := infrastructure.NewGormOrderRepository(db)
	coupons := infrastructure.NewGormCouponRepository(db)
	links := infrastructure.NewGormPaymentLinkRepository(db)
	reservations := infrastructure.NewGormReservationRepository(db)
	attempts := infrastructure.NewGormPaymentAttemptRepository(db)

	// 库存台账：默认 MySQL 行级 CAS，高并发租户可切到 Redis Lua 热路径
	var ledger domain.StockLedger = infrastructure.NewGormStockLedger(db)
	if cfg.App.UseRedisStockLedger {
		redisClient, err := redis.NewClient(ctx, cfg.Infra.RedisAddr)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect redis")
		}
		ledger, err = infrastructure.NewRedisStockLedger(redisClient)
		if err != nil {
			logger.Ctx(ctx).Fatal().Err(err).Msg("failed to init redis stock ledger")
		}
		appCtx.OnShutdown(func(ctx context.Context) {
			if err := redisClient.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("error closing redis client")
			}
		})
	}

	ruleEngine, err := infrastructure.NewCelRuleEngine()
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to init rule engine")
	}

	publisher := infrastructure.NewKafkaEventPublisher(cfg.Infra.KafkaBrokers)
	appCtx.OnShutdown(func(ctx context.Context) {
		if err := publisher.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("error closing event publisher")
		}
	})

	httpClient := httpclient.NewClient(tracer)
	paypal := adapter.NewPaypalAdapter(httpClient, cfg.App.Providers.Paypal.BaseURL)
	midtrans := adapter.NewMidtransAdapter(httpClient, cfg.App.Providers.Midtrans.BaseURL)

	// --- 应用服务 ---
	clock := domain.SystemClock{}
	couponEngine := application.NewCouponEngine(coupons, ruleEngine, tracer)
	linkSvc := application.NewPaymentLinkService(links, orders, clock, tracer)
	orderSvc := application.NewOrderService(orders, reservations, ledger, clock, tracer)
	checkoutSvc := application.NewCheckoutService(
		ledger, orders, reservations, couponEngine, linkSvc, clock, tracer,
		cfg.App.ReservationTTL, cfg.App.PaymentLinkTTL,
	)
	reconcileSvc := application.NewReconciliationService(
		attempts, links, orders, orderSvc, publisher,
		[]domain.ProviderClient{paypal, midtrans},
		clock, tracer,
	)

	// --- 接口层 ---
	handler := interfaces.NewFulfillmentHandler(
		checkoutSvc, orderSvc, linkSvc, reconcileSvc,
		[]interfaces.WebhookDecoder{paypal, midtrans},
		cfg.App.PaymentLinkTTL,
	)
	handler.RegisterRoutes(appCtx.Mux)
	appCtx.Mux.Handle("/metrics", promhttp.Handler())

	// 队列化的支付通知与 webhook 汇入同一个对账入口
	reader := mq.NewKafkaReader(cfg.Infra.KafkaBrokers, interfaces.TopicPaymentNotifications, serviceName+"-group")
	consumer := interfaces.NewNotificationConsumer(reader, reconcileSvc)
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	consumer.Start(consumerCtx)
	appCtx.OnShutdown(func(ctx context.Context) {
		cancelConsumer()
		consumer.Stop()
	})
}
