package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joripage/stock-oms/pkg/api"
	"github.com/joripage/stock-oms/pkg/eventbus"
	postgres_wrapper "github.com/joripage/stock-oms/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/stock-oms/pkg/infra/redis"
	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/oms"
	fixgateway "github.com/joripage/stock-oms/pkg/oms/fix"
	"github.com/joripage/stock-oms/pkg/oms/paper"
	riskrule "github.com/joripage/stock-oms/pkg/oms/risk_rule"
)

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	Log         logging.Config                   `yaml:"log"`
	Coordinator oms.Config                       `yaml:"coordinator"`
	Gateway     GatewayConfig                    `yaml:"gateway"`
	Bus         eventbus.Config                  `yaml:"bus"`
	Positions   PositionsConfig                  `yaml:"positions"`
	Redis       *redis_wrapper.RedisConfig       `yaml:"redis"`
	JournalDB   *postgres_wrapper.PostgresConfig `yaml:"journal_db"`
	API         api.Config                       `yaml:"api"`
	Risk        RiskConfig                       `yaml:"risk"`
}

type GatewayConfig struct {
	Driver string                      `yaml:"driver"` // fix|paper
	FIX    fixgateway.FixGatewayConfig `yaml:"fix"`
	Paper  paper.Config                `yaml:"paper"`
	// IdentifierSource is local|redis; redis shares the ClOrdID counter.
	IdentifierSource string `yaml:"identifier_source"`
	IdentifierKey    string `yaml:"identifier_key"`
}

type PositionsConfig struct {
	Driver string `yaml:"driver"` // memory|redis
	Key    string `yaml:"key"`
}

type RiskConfig struct {
	TickSizeFile string                        `yaml:"tick_size_file"`
	PriceBands   map[string]riskrule.PriceBand `yaml:"price_bands"`
}

// Load load config from file and environment variables. A .env file next to
// the working directory is read first when present.
func Load(filePath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.S().Warnf("load .env: %v", err)
	}

	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}

	cfg, err := Parse(configBytes)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}

// Default returns the configuration used for every key the file omits.
func Default() *AppConfig {
	return &AppConfig{
		ServiceName: "stock-oms",
		Log:         logging.Config{Level: "info", Encoding: "json"},
		Coordinator: oms.DefaultConfig(),
		Gateway: GatewayConfig{
			Driver:           "paper",
			IdentifierSource: "local",
			FIX:              fixgateway.FixGatewayConfig{LogonTimeout: 30 * time.Second},
			Paper:            paper.Config{FillDelay: 500 * time.Millisecond},
		},
		Bus:       eventbus.Config{Driver: "memory"},
		Positions: PositionsConfig{Driver: "memory"},
		API:       api.Config{Listen: ":8080"},
	}
}

// Parse expands ${VAR} references and decodes the YAML over Default, so
// an explicit zero (settle_delay: 0s) is kept.
func Parse(data []byte) (*AppConfig, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Gateway.Driver {
	case "fix":
		if c.Gateway.FIX.ConfigFilepath == "" {
			return fmt.Errorf("gateway.fix.config_filepath is required for the fix driver")
		}
	case "paper":
	default:
		return fmt.Errorf("unknown gateway driver %q", c.Gateway.Driver)
	}
	if c.Gateway.IdentifierSource == "redis" || c.Positions.Driver == "redis" {
		if c.Redis == nil || c.Redis.ConnectionURL == "" {
			return fmt.Errorf("redis.connection_url is required by the redis identifier source and position tracker")
		}
	}
	switch c.Positions.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown positions driver %q", c.Positions.Driver)
	}
	return nil
}
