package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config mirrors config/vend-service.yaml.
type Config struct {
	Name     string         `mapstructure:"name"`
	LogLevel string         `mapstructure:"logLevel"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Mysql    MysqlConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Chains   ChainsConfig   `mapstructure:"chains"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Purchase PurchaseConfig `mapstructure:"purchase"`
	Provider ProviderConfig `mapstructure:"provider"`
	Custody  CustodyConfig  `mapstructure:"custody"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rateLimit"` // requests per second per ip+route
	Burst     int     `mapstructure:"burst"`
}

type MysqlConfig struct {
	DataSource  string `mapstructure:"dataSource"`
	MaxIdle     int    `mapstructure:"maxIdle"`
	MaxOpen     int    `mapstructure:"maxOpen"`
	MaxLifetime int    `mapstructure:"maxLifetime"`
	LogLevel    string `mapstructure:"logLevel"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TraceConfig struct {
	Host        string  `mapstructure:"host"`
	SampleRatio float64 `mapstructure:"sampleRatio"`
}

// ChainConfig is one chain's treasury and its ranked endpoint list.
type ChainConfig struct {
	Treasury  string   `mapstructure:"treasury"`
	Endpoints []string `mapstructure:"endpoints"`
	APIKey    string   `mapstructure:"apiKey"` // Subscan only
	Contract  string   `mapstructure:"contract"`
	Decimals  int32    `mapstructure:"decimals"`
}

type ChainsConfig struct {
	AttemptTimeout time.Duration          `mapstructure:"attemptTimeout"`
	RatePerSecond  float64                `mapstructure:"ratePerSecond"`
	Burst          int                    `mapstructure:"burst"`
	Networks       map[string]ChainConfig `mapstructure:"networks"` // keyed by chain id, e.g. "ethereum"
}

type PricingConfig struct {
	OracleURL string                     `mapstructure:"oracleURL"`
	APIKey    string                     `mapstructure:"apiKey"`
	TTL       time.Duration              `mapstructure:"ttl"`
	Timeout   time.Duration              `mapstructure:"timeout"`
	Static    map[string]decimal.Decimal `mapstructure:"static"` // NGN per coin
}

type Bounds struct {
	Min decimal.Decimal `mapstructure:"min"`
	Max decimal.Decimal `mapstructure:"max"`
}

type PurchaseConfig struct {
	TolerancePercent decimal.Decimal `mapstructure:"tolerancePercent"`
	Airtime          Bounds          `mapstructure:"airtime"`
	Data             Bounds          `mapstructure:"data"`
	Electricity      Bounds          `mapstructure:"electricity"`
}

type ProviderConfig struct {
	BaseURL     string        `mapstructure:"baseURL"`
	UserID      string        `mapstructure:"userID"`
	APIKey      string        `mapstructure:"apiKey"`
	CallbackURL string        `mapstructure:"callbackURL"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PlanTTL     time.Duration `mapstructure:"planTTL"`
}

type StarknetConfig struct {
	RPC              map[string]string `mapstructure:"rpc"` // network -> url
	AccountClassHash string            `mapstructure:"accountClassHash"`
	MinBalance       decimal.Decimal   `mapstructure:"minBalance"`
	FeeMultiplier    float64           `mapstructure:"feeMultiplier"` // applied to the estimated fee
	PollInterval     time.Duration     `mapstructure:"pollInterval"`
}

type CustodyConfig struct {
	Mnemonic         string         `mapstructure:"mnemonic"`
	EncryptionSecret string         `mapstructure:"encryptionSecret"`
	EncryptionSalt   string         `mapstructure:"encryptionSalt"`
	Starknet         StarknetConfig `mapstructure:"starknet"`
}

type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	LockKey     string        `mapstructure:"lockKey"`
	LockTTL     time.Duration `mapstructure:"lockTTL"`
	PaymentTTL  time.Duration `mapstructure:"paymentTTL"`
}

// Normalize fills defaults; it runs after every load and hot reload.
func (c *Config) Normalize() {
	if c.Name == "" {
		c.Name = "vend-service"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit <= 0 {
		c.HTTP.RateLimit = 50
	}
	if c.HTTP.Burst <= 0 {
		c.HTTP.Burst = 100
	}
	if c.Mysql.MaxIdle == 0 {
		c.Mysql.MaxIdle = 10
	}
	if c.Mysql.MaxOpen == 0 {
		c.Mysql.MaxOpen = 100
	}
	if c.Mysql.MaxLifetime == 0 {
		c.Mysql.MaxLifetime = 3600
	}
	if c.Chains.AttemptTimeout <= 0 {
		c.Chains.AttemptTimeout = 12 * time.Second
	}
	if c.Chains.RatePerSecond <= 0 {
		c.Chains.RatePerSecond = 5
	}
	if c.Chains.Burst <= 0 {
		c.Chains.Burst = 5
	}
	if c.Pricing.OracleURL == "" {
		c.Pricing.OracleURL = "https://api.coingecko.com/api/v3"
	}
	if c.Pricing.TTL <= 0 {
		c.Pricing.TTL = 5 * time.Minute
	}
	if c.Pricing.Timeout <= 0 {
		c.Pricing.Timeout = 10 * time.Second
	}
	if c.Purchase.TolerancePercent.IsZero() {
		c.Purchase.TolerancePercent = decimal.NewFromInt(1)
	}
	defaultBounds(&c.Purchase.Airtime, 50, 50000)
	defaultBounds(&c.Purchase.Data, 50, 100000)
	defaultBounds(&c.Purchase.Electricity, 1000, 500000)
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://www.nellobytesystems.com"
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.PlanTTL <= 0 {
		c.Provider.PlanTTL = 6 * time.Hour
	}
	if c.Custody.Starknet.MinBalance.IsZero() {
		c.Custody.Starknet.MinBalance = decimal.RequireFromString("0.5")
	}
	if c.Custody.Starknet.FeeMultiplier <= 0 {
		c.Custody.Starknet.FeeMultiplier = 1.5
	}
	if c.Custody.Starknet.PollInterval <= 0 {
		c.Custody.Starknet.PollInterval = 5 * time.Second
	}
	if c.Custody.EncryptionSalt == "" {
		c.Custody.EncryptionSalt = "chainvend-custody"
	}
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 15 * time.Second
	}
	if c.Monitor.Concurrency <= 0 {
		c.Monitor.Concurrency = 8
	}
	if c.Monitor.LockKey == "" {
		c.Monitor.LockKey = "chainvend:monitor:leader"
	}
	if c.Monitor.LockTTL <= 0 {
		c.Monitor.LockTTL = 3 * c.Monitor.Interval
	}
	if c.Monitor.PaymentTTL <= 0 {
		c.Monitor.PaymentTTL = 30 * time.Minute
	}
}

func defaultBounds(b *Bounds, min, max int64) {
	if b.Min.IsZero() {
		b.Min = decimal.NewFromInt(min)
	}
	if b.Max.IsZero() {
		b.Max = decimal.NewFromInt(max)
	}
}
