package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/any-hub/imgcache/internal/blob"
	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/config"
	"github.com/any-hub/imgcache/internal/logging"
	"github.com/any-hub/imgcache/internal/metrics"
	"github.com/any-hub/imgcache/internal/server"
	"github.com/any-hub/imgcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	overrides   config.Overrides
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath, opts.overrides)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(*cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_dir"] = cfg.CacheDir
		fields["listen"] = cfg.Addr()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存目录 → metrics → Fiber server，任一步失败均以非零退出码结束。
	m := metrics.New()
	store, err := cache.NewStore(afero.NewOsFs(), cfg.CacheDir, m.Storage())
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_dir"] = cfg.CacheDir
	fields["listen"] = cfg.Addr()
	fields["max_body_size"] = cfg.MaxBodySize
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("缓存目录已就绪")

	handler := blob.NewHandler(logger, store, cfg.MaxBodySize)
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Handler:     handler,
		Metrics:     m,
		MaxBodySize: cfg.MaxBodySize,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 HTTP 服务失败: %v\n", err)
		return 1
	}

	if err := serve(ctx, cfg, app, m, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，仅把显式设置的标志写入 overrides。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("imgcache", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		host       string
		port       int
		cacheDir   string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&host, "host", "h", "localhost", "监听地址")
	fs.IntVarP(&port, "port", "p", 8080, "监听端口")
	fs.StringVarP(&cacheDir, "cache", "c", "", "缓存目录（必填，可由配置文件或 IMGCACHE_CACHEDIR 提供）")
	fs.StringVar(&configFlag, "config", "", "可选 TOML 配置文件路径（可被 IMGCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("解析参数失败: 未知参数 %v", fs.Args())
	}

	overrides := config.Overrides{}
	if fs.Changed("host") {
		overrides["Host"] = host
	}
	if fs.Changed("port") {
		overrides["ListenPort"] = port
	}
	if fs.Changed("cache") {
		overrides["CacheDir"] = cacheDir
	}

	path := os.Getenv("IMGCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		overrides:   overrides,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// serve 启动 Fiber 与可选的 metrics 监听，ctx 结束后在 ShutdownTimeout 内优雅退出。
func serve(ctx context.Context, cfg *config.Config, app *fiber.App, m *metrics.Metrics, logger *logrus.Logger) error {
	var metricsSrv *http.Server
	if cfg.MetricsEnabled() {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.WithFields(logrus.Fields{"action": "listen", "addr": cfg.MetricsListen}).Info("metrics 服务启动")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).WithField("addr", cfg.MetricsListen).Error("metrics_listen_failed")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		timeout := cfg.ShutdownTimeout.DurationValue()
		logger.WithFields(logrus.Fields{"action": "shutdown", "timeout": timeout.String()}).Info("收到退出信号")
		if err := app.ShutdownWithTimeout(timeout); err != nil {
			logger.WithError(err).Warn("shutdown_failed")
		}
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   cfg.Addr(),
	}).Info("Fiber 服务启动")

	return app.Listen(cfg.Addr())
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
