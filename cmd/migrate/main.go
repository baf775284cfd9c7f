package main

import (
	"encoding/json"
	"flag"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/joripage/stock-oms/config"
	"github.com/joripage/stock-oms/pkg/infra"
)

func main() {
	var configFile, source string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migration/sql", "Migration source")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	configBytes, err := json.MarshalIndent(cfg.JournalDB, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}
	if cfg.JournalDB == nil {
		panic("journal_db is not configured")
	}

	mgTool := infra.GetMigrateTool()
	if err := mgTool.Migrate(source, cfg.JournalDB.MigrationConnURL); err != nil {
		panic(err)
	}
}
