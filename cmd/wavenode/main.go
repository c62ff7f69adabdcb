package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/handler"
	"github.com/jmerrifield20/waveledger/internal/health"
	"github.com/jmerrifield20/waveledger/internal/ledger"
	"github.com/jmerrifield20/waveledger/internal/network"
	"github.com/jmerrifield20/waveledger/internal/webhooks"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("wavenode exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("wavenode")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("node.port", 8545)
	viper.SetDefault("node.rate_limit_rps", 50)
	viper.SetDefault("node.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("ledger.max_message_length", ledger.DefaultMaxMessageLength)
	viper.SetDefault("ledger.confirmation_timeout", "30s")
	viper.SetDefault("ledger.block_interval", "0s")
	viper.SetDefault("network.accounts", network.DefaultAccounts)
	viper.SetDefault("network.seed", "")
	viper.SetDefault("network.token_ttl", "1h")
	viper.SetDefault("health.check_interval", "1m")
	viper.SetDefault("health.fail_threshold", 3)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Info("no config file found, using defaults and environment")
	}

	// ── Network and deployer ─────────────────────────────────────────────────
	net, err := network.New(network.Config{
		Accounts: viper.GetInt("network.accounts"),
		Seed:     viper.GetString("network.seed"),
		TokenTTL: viper.GetDuration("network.token_ttl"),
	}, logger)
	if err != nil {
		return fmt.Errorf("create network: %w", err)
	}

	ledgerCfg := ledger.Config{
		MaxMessageLength:    viper.GetInt("ledger.max_message_length"),
		ConfirmationTimeout: viper.GetDuration("ledger.confirmation_timeout"),
		BlockInterval:       viper.GetDuration("ledger.block_interval"),
	}
	deployments := deploy.NewLocal(net, ledgerCfg, logger)
	deployments.SetMetricsFactory(handler.NewLedgerMetrics)
	defer deployments.Close()

	// ── Webhooks ──────────────────────────────────────────────────────────────
	hooks := webhooks.NewService(webhooks.NewRepository(), logger)
	hooks.SetMetricsRecorder(handler.RecordWebhookDelivery)
	deployments.OnDeploy(func(ctx context.Context, d *deploy.Deployment, svc *ledger.Service) {
		hooks.Dispatch(ctx, webhooks.EventLedgerDeployed, map[string]string{
			"ledger":      d.Address,
			"deployed_by": d.DeployedBy,
		})
		go hooks.Watch(ctx, d.Address, svc.Subscribe(ctx))
	})

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := handler.NewRouter(ctx, net, deployments, handler.RouterConfig{
		CORSOrigins:  viper.GetStringSlice("node.cors_origins"),
		RateLimitRPS: viper.GetInt("node.rate_limit_rps"),
		Webhooks:     hooks,
	}, logger)

	// ── Background: audit every ledger's hash chain ─────────────────────────
	checker := health.New(deployments, health.Config{
		CheckInterval: viper.GetDuration("health.check_interval"),
		FailThreshold: viper.GetInt("health.fail_threshold"),
	}, logger)
	checker.SetMetricsRecord(handler.RecordIntegrityCheck)
	checker.SetWebhookDispatch(hooks.Dispatch)
	go checker.Start(ctx)

	port := viper.GetInt("node.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("wavenode HTTP listening",
			zap.Int("port", port),
			zap.String("network_id", net.ID().String()),
			zap.Duration("block_interval", ledgerCfg.BlockInterval),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutting down wavenode...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("wavenode stopped", zap.Int("deployments", deployments.Len()))
	return nil
}
