package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Backend BackendConfig `mapstructure:"backend"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Pigeon  PigeonConfig  `mapstructure:"pigeon"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	// AutoApprove 无人值守模式: 结账请求直接批准执行
	AutoApprove bool `mapstructure:"auto_approve"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// BackendConfig 消息中转/估气后端 (BRAPIClient 对应物)
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChainConfig struct {
	BTCNetwork string `mapstructure:"btc_network"` // mainnet / testnet3
	EthRpcUrl  string `mapstructure:"eth_rpc_url"`
	EthChainID int64  `mapstructure:"eth_chain_id"`
	BtcRpcUrl  string `mapstructure:"btc_rpc_url"`
	BtcRpcUser string `mapstructure:"btc_rpc_user"`
	BtcRpcPass string `mapstructure:"btc_rpc_pass"`
}

type WalletConfig struct {
	Mnemonic     string `mapstructure:"mnemonic"`
	KeystorePath string `mapstructure:"keystore_path"` // 本地 Keystore 文件路径
	Password     string `mapstructure:"password"`      // Keystore 密码 (通常通过环境变量 WALLET_PASSWORD 传入)
}

// PigeonConfig 配对/收件箱协议参数
type PigeonConfig struct {
	Service         string        `mapstructure:"service"`           // 信封 service 标签
	FetchInterval   time.Duration `mapstructure:"fetch_interval"`    // 收件箱轮询间隔
	PairingAttempts int           `mapstructure:"pairing_attempts"`  // LINK 响应等待次数上限
	PushEnabled     bool          `mapstructure:"push_enabled"`      // 推送通知是否为活跃投递通道
	InboxLimit      int           `mapstructure:"inbox_limit"`       // 单次 fetch 条数上限
}

var Global Config

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")
	viper.SetDefault("app.auto_approve", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "payments_user")
	viper.SetDefault("db.password", "payments_password")
	viper.SetDefault("db.name", "payments_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("backend.base_url", "https://api.localhost")
	viper.SetDefault("backend.timeout", 15*time.Second)

	viper.SetDefault("chain.btc_network", "mainnet")
	viper.SetDefault("chain.eth_chain_id", int64(1))

	viper.SetDefault("wallet.keystore_path", "wallet.json")

	viper.SetDefault("pigeon.service", "PWB")
	viper.SetDefault("pigeon.fetch_interval", 3*time.Second)
	viper.SetDefault("pigeon.pairing_attempts", 10)
	viper.SetDefault("pigeon.inbox_limit", 100)
}
