package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joripage/stock-oms/config"
	"github.com/joripage/stock-oms/pkg/api"
	"github.com/joripage/stock-oms/pkg/eventbus"
	redis_wrapper "github.com/joripage/stock-oms/pkg/infra/redis"
	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/oms"
	fixgateway "github.com/joripage/stock-oms/pkg/oms/fix"
	"github.com/joripage/stock-oms/pkg/oms/paper"
	riskrule "github.com/joripage/stock-oms/pkg/oms/risk_rule"
	"github.com/joripage/stock-oms/pkg/position"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	if err := run(configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() // nolint
	zap.ReplaceGlobals(logger.With(zap.String("service", cfg.ServiceName)))
	logger = zap.L()

	go func() {
		_ = http.ListenAndServe("localhost:6060", nil)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis != nil && cfg.Redis.ConnectionURL != "" {
		if redisClient, err = redis_wrapper.InitRedis(ctx, cfg.Redis); err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer redisClient.Close()
	}

	guard, err := newGuard(cfg.Risk)
	if err != nil {
		return err
	}

	bus, err := eventbus.New(cfg.Bus, logger)
	if err != nil {
		return fmt.Errorf("init bus: %w", err)
	}
	defer bus.Close()

	tracker, sink := newPositions(ctx, cfg, redisClient, logger)

	var gateway oms.Gateway
	switch cfg.Gateway.Driver {
	case "fix":
		var ids fixgateway.IdentifierSource = fixgateway.NewLocalIdentifierSource(0)
		if cfg.Gateway.IdentifierSource == "redis" {
			ids = fixgateway.NewRedisIdentifierSource(redisClient, cfg.Gateway.IdentifierKey)
		}
		fixCfg := cfg.Gateway.FIX
		gateway = fixgateway.NewFixGateway(&fixCfg, ids, logger)
	default:
		gateway = paper.New(cfg.Gateway.Paper, sink, logger)
	}

	hub := api.NewHub(logger)
	coordinator := oms.New(gateway,
		oms.WithConfig(cfg.Coordinator),
		oms.WithPositionTracker(tracker),
		oms.WithEventBus(hub.Tee(bus)),
		oms.WithGuard(guard),
		oms.WithLogger(logger),
	)
	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coordinator.Stop()

	if err := coordinator.ConsumePlaceOrders(ctx, bus); err != nil {
		return fmt.Errorf("subscribe %s: %w", eventbus.TopicPlaceOrder, err)
	}

	server := api.NewServer(cfg.API, coordinator, hub, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	logger.Info("order coordinator started",
		zap.String("gateway", cfg.Gateway.Driver),
		zap.String("bus", cfg.Bus.Driver),
		zap.String("positions", cfg.Positions.Driver),
		zap.Strings("risk_rules", guard.Rules()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}
	return nil
}

func newGuard(cfg config.RiskConfig) (*riskrule.Guard, error) {
	var extra []riskrule.RiskRule
	if cfg.TickSizeFile != "" {
		rule, err := riskrule.NewTickSizeRuleFromFile(cfg.TickSizeFile)
		if err != nil {
			return nil, err
		}
		extra = append(extra, rule)
	}
	if len(cfg.PriceBands) > 0 {
		extra = append(extra, riskrule.NewLimitPriceRule(cfg.PriceBands))
	}
	return riskrule.DefaultGuard(extra...), nil
}

// newPositions returns the tracker the coordinator reads and the sink the
// paper gateway books fills into.
func newPositions(ctx context.Context, cfg *config.AppConfig, client *redis.Client, logger *zap.Logger) (oms.PositionTracker, paper.FillSink) {
	if cfg.Positions.Driver == "redis" {
		tracker := position.NewRedisTracker(client, cfg.Positions.Key)
		return tracker, tracker.FillSink(ctx, logger)
	}
	// the in-memory book starts flat and follows paper fills
	tracker := position.NewMemoryTracker()
	tracker.Update(nil)
	return tracker, tracker
}
