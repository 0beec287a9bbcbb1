// cmd/link-sweeper/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"atlas/internal/pkg/config"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/tracing"
	"atlas/internal/pkg/zookeeper"
	"atlas/internal/service/fulfillment/application"
	"atlas/internal/service/fulfillment/domain"
	"atlas/internal/service/fulfillment/infrastructure"
	"atlas/internal/service/fulfillment/interfaces"
)

const (
	serviceName  = "link-sweeper"
	lockResource = "link-sweeper"
)

var tracer = otel.Tracer(serviceName)

// 清扫进程：过期支付链接 + 强制释放超时库存预留。
// 清扫本身幂等，ZooKeeper 锁只用来避免多实例重复扫表。
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger.Init(serviceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to load config")
	}

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.JaegerURL)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())

	db, err := gorm.Open(mysql.Open(cfg.Infra.MysqlDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect mysql")
	}

	orders := infrastructure.NewGormOrderRepository(db)
	links := infrastructure.NewGormPaymentLinkRepository(db)
	reservations := infrastructure.NewGormReservationRepository(db)
	ledger := infrastructure.NewGormStockLedger(db)

	clock := domain.SystemClock{}
	linkSvc := application.NewPaymentLinkService(links, orders, clock, tracer)
	orderSvc := application.NewOrderService(orders, reservations, ledger, clock, tracer)
	sweepSvc := application.NewSweepService(linkSvc, orderSvc, reservations, clock, tracer)

	// 领导者选举：拿到锁的实例才启动清扫循环，锁随会话消失自动转移
	zkConn, err := zookeeper.Connect(cfg.Infra.ZkServers, 10*time.Second)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect zookeeper")
	}
	defer zkConn.Close()

	lock, err := zookeeper.NewDistributedLock(zkConn, lockResource)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to create sweeper lock")
	}

	logger.Ctx(ctx).Info().Msg("waiting for sweeper leadership")
	if err := lock.Lock(24 * time.Hour); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to acquire sweeper lock")
	}
	defer lock.Unlock()
	logger.Ctx(ctx).Info().Msg("sweeper leadership acquired")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		interfaces.NewSweepTask(sweepSvc, cfg.App.SweepInterval).Run(gctx)
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("sweeper exited with error")
	}
	logger.Ctx(ctx).Info().Msg("sweeper shut down")
}
