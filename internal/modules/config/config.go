package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	strategy "signal_bot/internal/modules/strategy/service"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Service struct {
		Name       string `yaml:"name"`
		LogLevel   string `yaml:"log_level"`
		HealthAddr string `yaml:"health_addr" validate:"required"`
	} `yaml:"service"`

	// Symbol в терминах сигналов, InstID в терминах OKX
	Symbol     string   `yaml:"symbol" validate:"required"`
	InstID     string   `yaml:"inst_id" validate:"required"`
	Timeframes []string `yaml:"timeframes" validate:"min=1,dive,required"`

	Strategy strategy.Params `yaml:"strategy"`

	Validator ValidatorConfig `yaml:"validator"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Worker    WorkerConfig    `yaml:"worker"`
	OKX       OKXConfig       `yaml:"okx"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Execution ExecutionConfig `yaml:"execution"`
	Tracing   TracingConfig   `yaml:"tracing"`

	DB         string `yaml:"db_dsn"`
	DBMaxConns int32  `yaml:"db_max_conns"`
}

type ValidatorConfig struct {
	MinRiskReward     float64       `yaml:"min_risk_reward" validate:"gt=0"`
	MinConfidence     float64       `yaml:"min_confidence" validate:"gte=0,lte=1"`
	MaxEntryDeviation float64       `yaml:"max_entry_deviation" validate:"gt=0"`
	MaxCandleAgeBars  int           `yaml:"max_candle_age_bars" validate:"gte=1"`
	DuplicateWindow   time.Duration `yaml:"duplicate_window"`
	HistoryRetention  time.Duration `yaml:"history_retention"`
	PipSize           float64       `yaml:"pip_size" validate:"gt=0"`
}

type DedupConfig struct {
	Window      time.Duration `yaml:"window" validate:"gt=0"`
	PricePlaces int           `yaml:"price_places" validate:"gte=0,lte=8"`
	Rehydrate   bool          `yaml:"rehydrate"`
}

type WorkerConfig struct {
	WindowSize        int           `yaml:"window_size" validate:"gte=10"`
	PricePollInterval time.Duration `yaml:"price_poll_interval" validate:"gt=0"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	SourceTimeout     time.Duration `yaml:"source_timeout" validate:"gt=0"`
	BackoffBase       time.Duration `yaml:"backoff_base" validate:"gt=0"`
	BackoffMax        time.Duration `yaml:"backoff_max" validate:"gt=0"`
	Stagger           time.Duration `yaml:"stagger"`
	StatusInterval    time.Duration `yaml:"status_interval"`
}

type OKXConfig struct {
	RestURL   string  `yaml:"rest_url" validate:"required,url"`
	WSURL     string  `yaml:"ws_url" validate:"required"`
	RateLimit float64 `yaml:"rate_limit" validate:"gt=0"` // запросов в секунду
	Burst     int     `yaml:"burst" validate:"gte=1"`
}

type SinksConfig struct {
	// Order: порядок доставки. Доступно: postgres, log, console, telegram, kafka, execution
	Order []string `yaml:"order"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ExecutionConfig struct {
	DryRun bool `yaml:"dry_run"`
	// денежный риск на сделку, % от equity
	RiskPct          float64 `yaml:"risk_pct" validate:"gt=0,lte=100"`
	Equity           float64 `yaml:"equity" validate:"gt=0"`
	MaxOpenPositions int     `yaml:"max_open_positions" validate:"gte=1"`
	MaxDailyLossPct  float64 `yaml:"max_daily_loss_pct" validate:"gte=0"`
	TickSize         float64 `yaml:"tick_size" validate:"gte=0"`
	LotSize          float64 `yaml:"lot_size" validate:"gte=0"`
	MinSize          float64 `yaml:"min_size" validate:"gte=0"`
	// тянуть tick/lot с биржи вместо статических значений
	FetchInstrument bool `yaml:"fetch_instrument"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Host       string  `yaml:"host"`
	Port       int     `yaml:"port"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Default: конфиг со всеми значениями по умолчанию и env-оверрайдами.
func Default() Config {
	cfg := Config{
		Symbol:     getenvDefault("SYMBOL", "XAUUSD"),
		InstID:     getenvDefault("INST_ID", "XAU-USDT-SWAP"),
		Timeframes: []string{"5m", "15m", "30m", "1h", "4h", "1d"},
		Strategy:   strategy.DefaultParams(),
		DB:         "",
		DBMaxConns: int32(intFromEnv("DB_MAX_CONNS", 4)),
	}
	cfg.Service.Name = getenvDefault("SERVICE_NAME", "signal_bot")
	cfg.Service.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.Service.HealthAddr = getenvDefault("HEALTH_ADDR", ":8080")

	cfg.Validator = ValidatorConfig{
		MinRiskReward:     floatFromEnv("MIN_RISK_REWARD", 1.5),
		MinConfidence:     floatFromEnv("MIN_CONFIDENCE", 0),
		MaxEntryDeviation: floatFromEnv("MAX_ENTRY_DEVIATION", 0.05),
		MaxCandleAgeBars:  intFromEnv("MAX_CANDLE_AGE_BARS", 3),
		DuplicateWindow:   durationFromEnv("VALIDATOR_DUPLICATE_WINDOW", "4h"),
		HistoryRetention:  durationFromEnv("VALIDATOR_HISTORY_RETENTION", "24h"),
		PipSize:           floatFromEnv("PIP_SIZE", 0.1),
	}
	cfg.Dedup = DedupConfig{
		Window:      durationFromEnv("DEDUP_WINDOW", "4h"),
		PricePlaces: intFromEnv("DEDUP_PRICE_PLACES", 2),
		Rehydrate:   boolFromEnv("DEDUP_REHYDRATE", true),
	}
	cfg.Worker = WorkerConfig{
		WindowSize:        intFromEnv("WINDOW_SIZE", 200),
		PricePollInterval: durationFromEnv("PRICE_POLL_INTERVAL", "10s"),
		SettleDelay:       durationFromEnv("SETTLE_DELAY", "3s"),
		SourceTimeout:     durationFromEnv("SOURCE_TIMEOUT", "10s"),
		BackoffBase:       durationFromEnv("BACKOFF_BASE", "1s"),
		BackoffMax:        durationFromEnv("BACKOFF_MAX", "60s"),
		Stagger:           durationFromEnv("WORKER_STAGGER", "2s"),
		StatusInterval:    durationFromEnv("STATUS_INTERVAL", "5m"),
	}
	cfg.OKX = OKXConfig{
		RestURL:   getenvDefault("OKX_REST_URL", "https://www.okx.com"),
		WSURL:     getenvDefault("OKX_WS_URL", "wss://ws.okx.com:8443/ws/v5/public"),
		RateLimit: floatFromEnv("OKX_RATE_LIMIT", 10),
		Burst:     intFromEnv("OKX_BURST", 5),
	}
	cfg.Sinks.Order = []string{"postgres", "log", "console", "telegram", "kafka", "execution"}
	cfg.Kafka = KafkaConfig{
		Topic:        getenvDefault("KAFKA_TOPIC", "signals.validated"),
		WriteTimeout: durationFromEnv("KAFKA_WRITE_TIMEOUT", "10s"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Execution = ExecutionConfig{
		DryRun:           boolFromEnv("EXECUTION_DRY_RUN", true),
		RiskPct:          floatFromEnv("RISK_PCT", 1.0),
		Equity:           floatFromEnv("EQUITY", 10000),
		MaxOpenPositions: intFromEnv("MAX_OPEN_POSITIONS", 3),
		MaxDailyLossPct:  floatFromEnv("MAX_DAILY_LOSS_PCT", 5),
		TickSize:         floatFromEnv("TICK_SIZE", 0.01),
		LotSize:          floatFromEnv("LOT_SIZE", 0.01),
		MinSize:          floatFromEnv("MIN_SIZE", 0.01),
		FetchInstrument:  boolFromEnv("FETCH_INSTRUMENT", false),
	}
	cfg.Tracing = TracingConfig{
		Enabled:    boolFromEnv("TRACING_ENABLED", false),
		Host:       getenvDefault("JAEGER_HOST", "localhost"),
		Port:       intFromEnv("JAEGER_PORT", 6831),
		SampleRate: floatFromEnv("TRACING_SAMPLE_RATE", 1),
	}
	return cfg
}

func NewConfig() (*Config, error) {
	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	path := filepath.Join(getenvDefault(configDirENV, "configs"), configFileName)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	return Load(file)
}

// Load читает YAML поверх значений по умолчанию, применяет секреты из env
// и валидирует результат.
func Load(r io.Reader) (*Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Worker.BackoffMax < c.Worker.BackoffBase {
		return fmt.Errorf("invalid config: backoff_max %s < backoff_base %s", c.Worker.BackoffMax, c.Worker.BackoffBase)
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
