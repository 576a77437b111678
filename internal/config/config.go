package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lancepay/lps/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Stellar   StellarConfig   `mapstructure:"stellar"`
	Escrow    EscrowConfig    `mapstructure:"escrow"`
	Funding   FundingConfig   `mapstructure:"funding"`
	Waterfall WaterfallConfig `mapstructure:"waterfall"`
	Rescue    RescueConfig    `mapstructure:"rescue"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// StellarConfig Stellar 链配置
type StellarConfig struct {
	HorizonURL        string        `mapstructure:"horizon_url"`        // Horizon 节点地址
	NetworkPassphrase string        `mapstructure:"network_passphrase"` // 网络口令
	FundingSeed       string        `mapstructure:"funding_seed"`       // 资金账户私钥（仅内存持有，禁止落日志）
	PlatformSeed      string        `mapstructure:"platform_seed"`      // 平台手续费账户私钥
	ArbiterAddress    string        `mapstructure:"arbiter_address"`    // 仲裁账户地址
	UsdcCode          string        `mapstructure:"usdc_code"`          // 结算资产代码
	UsdcIssuer        string        `mapstructure:"usdc_issuer"`        // 结算资产发行方
	EscrowWasmHash    string        `mapstructure:"escrow_wasm_hash"`   // 托管合约 wasm 哈希（hex）
	BaseFeeTTL        time.Duration `mapstructure:"base_fee_ttl"`       // 基础费缓存时长
}

// EscrowConfig 托管配置
type EscrowConfig struct {
	FeeBps             int64         `mapstructure:"fee_bps"`             // 平台费（基点）
	MonitorInterval    time.Duration `mapstructure:"monitor_interval"`    // 入金监控间隔
	MonitorConcurrency int           `mapstructure:"monitor_concurrency"` // 入金监控并发数
}

// FundingConfig 钱包开户配置
type FundingConfig struct {
	StartingBalance      string        `mapstructure:"starting_balance"`       // 非赞助开户初始余额
	MinReserve           string        `mapstructure:"min_reserve"`            // 资金账户余额告警阈值
	ReserveCheckInterval time.Duration `mapstructure:"reserve_check_interval"` // 资金池巡检间隔
	RetryMaxAttempts     int           `mapstructure:"retry_max_attempts"`     // 提交最大尝试次数
	RetryInitialBackoff  time.Duration `mapstructure:"retry_initial_backoff"`  // 首次退避时长
	RetryMaxBackoff      time.Duration `mapstructure:"retry_max_backoff"`      // 退避上限
	RetryJitter          time.Duration `mapstructure:"retry_jitter"`           // 退避抖动上限
}

// WaterfallConfig 分账配置
type WaterfallConfig struct {
	Concurrency int `mapstructure:"concurrency"` // 分账并发数
}

// RescueConfig 交易救援配置
type RescueConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`     // 扫描间隔
	StuckAfter       time.Duration `mapstructure:"stuck_after"`        // 超过该时长未确认视为卡住
	MaxFeeMultiplier int64         `mapstructure:"max_fee_multiplier"` // 费用上限 = 基础费 × 倍数
	BatchSize        int           `mapstructure:"batch_size"`         // 单次扫描处理条数
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"` // 为空则仅记录日志
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别: debug, info, warn, error, fatal
	File       string `mapstructure:"file"`        // 日志文件路径，为空则只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 单文件最大大小（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 保留文件数
	MaxAge     int    `mapstructure:"max_age"`     // 保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩
}

// DSN 拼接 Postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/lps")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "lancepay")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("stellar.horizon_url", "https://horizon-testnet.stellar.org")
	viper.SetDefault("stellar.network_passphrase", "Test SDF Network ; September 2015")
	viper.SetDefault("stellar.usdc_code", "USDC")
	viper.SetDefault("stellar.base_fee_ttl", 5*time.Minute)
	viper.SetDefault("escrow.fee_bps", 100)
	viper.SetDefault("escrow.monitor_interval", 30*time.Second)
	viper.SetDefault("escrow.monitor_concurrency", 4)
	viper.SetDefault("funding.starting_balance", "2.0000000")
	viper.SetDefault("funding.min_reserve", "100.0000000")
	viper.SetDefault("funding.reserve_check_interval", 5*time.Minute)
	viper.SetDefault("funding.retry_max_attempts", 3)
	viper.SetDefault("funding.retry_initial_backoff", 750*time.Millisecond)
	viper.SetDefault("funding.retry_max_backoff", 8*time.Second)
	viper.SetDefault("funding.retry_jitter", 250*time.Millisecond)
	viper.SetDefault("waterfall.concurrency", 4)
	viper.SetDefault("rescue.sweep_interval", time.Minute)
	viper.SetDefault("rescue.stuck_after", 90*time.Second)
	viper.SetDefault("rescue.max_fee_multiplier", 10)
	viper.SetDefault("rescue.batch_size", 20)
	viper.SetDefault("notify.timeout", 5*time.Second)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "logs/app.log")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// 自动读取环境变量，如 LPS_STELLAR_FUNDING_SEED
	viper.SetEnvPrefix("lps")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
