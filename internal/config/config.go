package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gregtusar/updown/pkg/binance"
	"github.com/gregtusar/updown/pkg/polymarket"
	"github.com/gregtusar/updown/pkg/secrets"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GCP        GCPConfig        `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type BinanceConfig struct {
	URL      string `mapstructure:"url"`
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"`
}

type PolymarketConfig struct {
	CLOBURL  string `mapstructure:"clob_url"`
	GammaURL string `mapstructure:"gamma_url"`
	WSURL    string `mapstructure:"ws_url"`
	RPCURL   string `mapstructure:"rpc_url"`

	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Passphrase string `mapstructure:"passphrase"`
	Address    string `mapstructure:"address"`

	Timezone    string `mapstructure:"timezone"`
	SearchLimit int    `mapstructure:"search_limit"`

	// DryRun places paper orders against PaperBalance instead of the venue.
	DryRun       bool    `mapstructure:"dry_run"`
	PaperBalance float64 `mapstructure:"paper_balance"`
}

type TradingConfig struct {
	Threshold       float64       `mapstructure:"threshold"`
	StopLoss        float64       `mapstructure:"stop_loss"`
	TakeProfit      float64       `mapstructure:"take_profit"`
	CooldownSeconds int           `mapstructure:"cooldown_seconds"`
	TradeAmount     float64       `mapstructure:"trade_amount"`
	MinBalance      float64       `mapstructure:"min_balance"`
	BalanceBuffer   float64       `mapstructure:"balance_buffer"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BalanceInterval time.Duration `mapstructure:"balance_interval"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	HistorySize     int           `mapstructure:"history_size"`
}

func (t TradingConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

// envBindings maps config keys to the plain environment variables operators
// already use.
var envBindings = map[string]string{
	"trading.threshold":        "PROBABILITY_THRESHOLD",
	"trading.stop_loss":        "STOP_LOSS_AMOUNT",
	"trading.take_profit":      "TAKE_PROFIT_AMOUNT",
	"trading.cooldown_seconds": "COOLDOWN_SECONDS",
	"trading.trade_amount":     "TRADE_AMOUNT",
	"trading.min_balance":      "MIN_BALANCE",
	"polymarket.api_key":       "POLY_API_KEY",
	"polymarket.api_secret":    "POLY_API_SECRET",
	"polymarket.passphrase":    "POLY_PASSPHRASE",
	"polymarket.address":       "POLY_ADDRESS",
	"server.jwt_secret":        "API_JWT_SECRET",
	"gcp.project_id":           "GCP_PROJECT_ID",
	"gcp.use_secrets":          "GCP_USE_SECRETS",
}

func Load(configPath string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/updown-trader")
	}

	v.SetEnvPrefix("UPDOWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
		if err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
		defer secretManager.Close()

		loadSecrets(ctx, &config, secretManager)
		logger.Info("Successfully loaded secrets from GCP Secret Manager")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("binance.url", binance.DefaultStreamURL)
	v.SetDefault("binance.symbol", binance.DefaultSymbol)
	v.SetDefault("binance.interval", binance.DefaultInterval)

	v.SetDefault("polymarket.clob_url", polymarket.DefaultCLOBURL)
	v.SetDefault("polymarket.gamma_url", polymarket.DefaultGammaURL)
	v.SetDefault("polymarket.ws_url", polymarket.DefaultMarketStreamURL)
	v.SetDefault("polymarket.rpc_url", polymarket.DefaultRPCURL)
	v.SetDefault("polymarket.api_key", "")
	v.SetDefault("polymarket.api_secret", "")
	v.SetDefault("polymarket.passphrase", "")
	v.SetDefault("polymarket.address", "")
	v.SetDefault("polymarket.timezone", polymarket.DefaultTimezone)
	v.SetDefault("polymarket.search_limit", polymarket.DefaultSearchLimit)
	v.SetDefault("polymarket.dry_run", false)
	v.SetDefault("polymarket.paper_balance", 100.0)

	v.SetDefault("trading.threshold", 0.015)
	v.SetDefault("trading.stop_loss", 0.05)
	v.SetDefault("trading.take_profit", 0.05)
	v.SetDefault("trading.cooldown_seconds", 30)
	v.SetDefault("trading.trade_amount", 5.0)
	v.SetDefault("trading.min_balance", 10.0)
	v.SetDefault("trading.balance_buffer", 0.1)
	v.SetDefault("trading.poll_interval", time.Second)
	v.SetDefault("trading.balance_interval", 60*time.Second)
	v.SetDefault("trading.reconnect_delay", 5*time.Second)
	v.SetDefault("trading.history_size", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.poly_api_key", secretNames.PolyAPIKey)
	v.SetDefault("gcp.secret_names.poly_api_secret", secretNames.PolyAPISecret)
	v.SetDefault("gcp.secret_names.poly_passphrase", secretNames.PolyPassphrase)
	v.SetDefault("gcp.secret_names.poly_address", secretNames.PolyAddress)
	v.SetDefault("gcp.secret_names.api_jwt_secret", secretNames.APIJWTSecret)
}

// loadSecrets fills credentials that are not already set.
func loadSecrets(ctx context.Context, config *Config, store secrets.Store) {
	names := config.GCP.SecretNames
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = store.GetSecretWithDefault(ctx, name, "")
		}
	}

	fill(&config.Polymarket.APIKey, names.PolyAPIKey)
	fill(&config.Polymarket.APISecret, names.PolyAPISecret)
	fill(&config.Polymarket.Passphrase, names.PolyPassphrase)
	fill(&config.Polymarket.Address, names.PolyAddress)
	fill(&config.Server.JWTSecret, names.APIJWTSecret)
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var problems []string
	t := c.Trading

	if t.Threshold <= 0 || t.Threshold >= 1 {
		problems = append(problems, fmt.Sprintf("trading.threshold must be in (0,1), got %v", t.Threshold))
	}
	if t.StopLoss <= 0 {
		problems = append(problems, "trading.stop_loss must be positive")
	}
	if t.TakeProfit <= 0 {
		problems = append(problems, "trading.take_profit must be positive")
	}
	if t.TradeAmount <= 0 {
		problems = append(problems, "trading.trade_amount must be positive")
	}
	if t.MinBalance < 0 || t.BalanceBuffer < 0 {
		problems = append(problems, "trading.min_balance and trading.balance_buffer must not be negative")
	}
	if t.CooldownSeconds < 0 {
		problems = append(problems, "trading.cooldown_seconds must not be negative")
	}
	if t.PollInterval <= 0 || t.BalanceInterval <= 0 || t.ReconnectDelay <= 0 {
		problems = append(problems, "trading intervals must be positive")
	}

	if !c.Polymarket.DryRun {
		p := c.Polymarket
		if p.APIKey == "" || p.APISecret == "" || p.Passphrase == "" || p.Address == "" {
			problems = append(problems, "polymarket credentials (POLY_API_KEY, POLY_API_SECRET, POLY_PASSPHRASE, POLY_ADDRESS) are required unless dry_run is set")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
