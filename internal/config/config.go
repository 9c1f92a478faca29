// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure so callers can treat them as fatal.
var ErrInvalid = errors.New("invalid config")

// Strategy modes accepted by Validate and the strategy factory.
const (
	ModeLT3 = "lt3"
	ModeSOR = "sor"
	ModeVaR = "var"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	Mode        string `yaml:"mode"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange describes how to reach the simulated exchange REST API.
type Exchange struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Retry tunes the backoff used by every retry-forever loop.
type Retry struct {
	MinDelayMs int     `yaml:"min_delay_ms"`
	MaxDelayMs int     `yaml:"max_delay_ms"`
	Factor     float64 `yaml:"factor"`
	Jitter     float64 `yaml:"jitter"`
}

// LT3 configures the tender-driven liquidity strategy.
type LT3 struct {
	TradeUntilTick     int       `yaml:"trade_until_tick"`
	MarketDepth        int       `yaml:"market_depth"`
	MinVWAPMargin      float64   `yaml:"min_vwap_margin"`
	NetLimit           int       `yaml:"net_limit"`
	GrossLimit         int       `yaml:"gross_limit"`
	BatchSize          int       `yaml:"batch_size"`
	SquareOffBatchSize int       `yaml:"square_off_batch_size"`
	PollIntervalMs     int       `yaml:"poll_interval_ms"`
	PaceMs             int       `yaml:"pace_ms"`
	ConfirmAttempts    int       `yaml:"confirm_attempts"`
	ConfirmDelayMs     int       `yaml:"confirm_delay_ms"`
	PriceOffsets       []float64 `yaml:"price_offsets"`
}

// SOR configures the smart order routing strategy.
type SOR struct {
	TradeUntilTick int      `yaml:"trade_until_tick"`
	MinVWAPMargin  float64  `yaml:"min_vwap_margin"`
	SlippageMargin float64  `yaml:"slippage_margin"`
	BlockQuantity  int      `yaml:"block_quantity"`
	Tickers        []string `yaml:"tickers"`
	NearCloseTicks int      `yaml:"near_close_ticks"`
	RouteEveryMs   int      `yaml:"route_every_ms"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
}

// VaR configures the value-at-risk driven news strategy.
type VaR struct {
	Assets       []string    `yaml:"assets"`
	CashTicker   string      `yaml:"cash_ticker"`
	Volatilities []float64   `yaml:"volatilities"`
	Correlations [][]float64 `yaml:"correlations"`
	Ceiling      float64     `yaml:"ceiling"`
	Confidence   float64     `yaml:"confidence"`
	UnitBudget   float64     `yaml:"unit_budget"`
	ZScore       float64     `yaml:"z_score"`
	SafetyFactor float64     `yaml:"safety_factor"`
	TrimQuantity int         `yaml:"trim_quantity"`
	BatchSize    int         `yaml:"batch_size"`
	CycleMs      int         `yaml:"cycle_ms"`
}

// Admin configures the administrative HTTP façade.
type Admin struct {
	Addr             string `yaml:"addr"`
	StatusEveryMs    int    `yaml:"status_every_ms"`
	DefaultBatchSize int    `yaml:"default_batch_size"`
}

// Journal configures the optional JSONL fill journal.
type Journal struct {
	FillsPath string `yaml:"fills_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Retry    Retry    `yaml:"retry"`
	LT3      LT3      `yaml:"lt3"`
	SOR      SOR      `yaml:"sor"`
	VaR      VaR      `yaml:"var"`
	Admin    Admin    `yaml:"admin"`
	Journal  Journal  `yaml:"journal"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// LoadWithEnv loads the YAML file, then overlays exchange credentials from
// the process environment and an optional .env file.
func LoadWithEnv(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("RIT_HOST")); v != "" {
		c.Exchange.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("RIT_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: RIT_PORT %q: %v", ErrInvalid, v, err)
		}
		c.Exchange.Port = port
	}
	if v := os.Getenv("RIT_USERNAME"); v != "" {
		c.Exchange.Username = v
	}
	if v := os.Getenv("RIT_PASSWORD"); v != "" {
		c.Exchange.Password = v
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
