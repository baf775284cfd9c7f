package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/joripage/stock-oms/config"
	"github.com/joripage/stock-oms/pkg/eventbus"
	postgres_wrapper "github.com/joripage/stock-oms/pkg/infra/postgres"
	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/oms/repo"
	"github.com/joripage/stock-oms/pkg/oms/worker"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // nolint
	zap.ReplaceGlobals(logger.With(zap.String("service", cfg.ServiceName+"-worker")))

	if cfg.JournalDB == nil {
		fmt.Fprintln(os.Stderr, "journal_db is not configured")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// init db
	db, err := postgres_wrapper.InitPostgresWithBackoff(ctx, cfg.JournalDB)
	if err != nil {
		zap.S().Errorf("init db fail with err: %v", err)
		panic(err)
	}

	// init repo
	sqlRepo := repo.NewRepo(db)

	bus, err := eventbus.New(cfg.Bus, zap.L())
	if err != nil {
		zap.S().Errorf("init bus fail with err: %v", err)
		panic(err)
	}
	defer bus.Close()

	// Worker
	w := worker.NewWorker(sqlRepo, zap.L())
	if err := w.StartConsumer(ctx, bus); err != nil {
		zap.S().Errorf("start consumer fail with err: %v", err)
		panic(err)
	}
	zap.S().Infof("sale journal worker consuming %s over %s", eventbus.TopicOrderFilled, cfg.Bus.Driver)

	<-ctx.Done()
}
