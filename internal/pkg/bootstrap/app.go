// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"atlas/internal/pkg/config"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/tracing"
)

// AppCtx 在注册路由时暴露给各个服务的上下文对象。
type AppCtx struct {
	Mux    *http.ServeMux
	Config *config.Config
	hooks  *[]func(ctx context.Context)
}

// OnShutdown 注册一个在 HTTP 服务器停止后执行的清理函数，
// 按注册顺序执行。必须在 RegisterHandlers 运行期间调用。
func (a AppCtx) OnShutdown(fn func(ctx context.Context)) {
	*a.hooks = append(*a.hooks, fn)
}

// AppInfo 包含了启动一个服务进程所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由，
	// 并通过 AppCtx.OnShutdown 挂接下游连接的清理
	RegisterHandlers func(appCtx AppCtx)
}

// StartService 封装了服务的通用启动和优雅关停逻辑。
func StartService(cfg *config.Config, info AppInfo) {
	logger.Init(info.ServiceName)

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.JaegerURL)
	if err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	mux := http.NewServeMux()
	var hooks []func(ctx context.Context)
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg, hooks: &hooks})
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Ctx(context.Background()).Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Ctx(context.Background()).Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 阻塞主 goroutine，直到接收到退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Ctx(context.Background()).Info().Msgf("shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序：先停止接收新请求，再清理下游连接，最后冲刷追踪数据
	if err := server.Shutdown(ctx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("error shutting down http server")
	}
	for _, fn := range hooks {
		fn(ctx)
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("error shutting down tracer provider")
	}

	logger.Ctx(ctx).Info().Msgf("service %s gracefully shut down", info.ServiceName)
}
