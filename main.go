package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/aiandcryptoagents/bags-launchpad-site/internal/bags"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/config"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/db"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/handler"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/listener"
	"github.com/aiandcryptoagents/bags-launchpad-site/internal/services"
	"github.com/aiandcryptoagents/bags-launchpad-site/utils"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "配置文件路径")
	pflag.Parse()

	// 默认配置文件不存在时只用环境变量
	path := *configPath
	if _, err := os.Stat(path); err != nil && !pflag.CommandLine.Changed("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("读取配置失败:", err)
	}

	logger, err := utils.NewLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	utils.SetDefault(logger)
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Error("服务退出: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 数据库
	dsn := cfg.DB.SQLitePath
	if cfg.DB.Driver == "mysql" {
		dsn = cfg.MySQLDSN()
	}
	conn, err := db.Open(cfg.DB.Driver, dsn)
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	if err := db.Migrate(conn); err != nil {
		return fmt.Errorf("表迁移失败: %w", err)
	}
	store := db.NewStore(conn)
	logger.Info("数据库初始化完成 (%s)", cfg.DB.Driver)

	// Solana
	network := services.NewRPCNetwork(rpc.New(cfg.Solana.RPCURL), cfg.Solana.ConfirmTimeout, cfg.Solana.PollInterval)
	wallet, err := services.KeypairWalletFromBase58(cfg.Solana.WalletSecret, network)
	if err != nil {
		return fmt.Errorf("加载签名钱包失败: %w", err)
	}
	logger.Info("签名钱包: %s, 网络: %s", wallet.PublicKey(), cfg.Solana.Cluster)

	metrics, err := services.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("注册指标失败: %w", err)
	}

	pipeline := services.NewPipeline(network, wallet, store)
	pipeline.Simulate = cfg.Solana.Simulate
	pipeline.Metrics = metrics

	client := bags.NewClient(cfg.Bags.APIBase, cfg.Bags.APIKey, cfg.Bags.Timeout)
	if cfg.Bags.APIKey == "" {
		logger.Warn("未配置 BAGS_API_KEY，上游请求会被拒绝")
	}

	launcher := services.NewLauncher(client, store, pipeline, wallet.PublicKey(), cfg.Solana.Cluster)
	launcher.Metrics = metrics
	revoker := services.NewRevoker(network, pipeline, wallet.PublicKey(), cfg.Token.Mint)

	// 价格只在配置了 token.mint 时拉取
	var prices handler.PriceSeries
	sched := cron.New()
	if cfg.Token.Mint != "" {
		feed := services.NewPriceFeed(cfg.Price.Endpoint, cfg.Token.Mint, cfg.Price.Window)
		feed.Metrics = metrics
		if _, err := feed.Schedule(ctx, sched, cfg.Price.Schedule); err != nil {
			return fmt.Errorf("价格任务配置错误: %w", err)
		}
		prices = feed
	}

	reconciler := listener.New(network, store, cfg.Reconcile.Interval, cfg.Solana.Cluster)

	health := handler.NewHealth(cfg.App.ReadinessDelay,
		handler.ReadyCheck{Name: "db", Check: store.Ping},
		handler.ReadyCheck{Name: "bags", Check: func(ctx context.Context) error {
			_, err := client.Ping(ctx)
			return err
		}},
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	handler.RegisterRoutes(r, handler.Deps{
		Launch:      launcher,
		Revoker:     revoker,
		Relay:       client,
		Submissions: store,
		Prices:      prices,
		Health:      health,
		Metrics:     promhttp.Handler(),
		Wallet:      wallet.PublicKey(),
		Cluster:     cfg.Solana.Cluster,
	})

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.App.Port),
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.App.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}).Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("服务器启动于端口 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务启动失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("收到退出信号，正在关闭服务")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
