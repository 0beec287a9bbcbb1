// internal/pkg/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是整个应用的配置根对象，从 YAML 文件加载，并允许环境变量覆盖基础设施地址。
type Config struct {
	Infra InfraConfig `yaml:"infra"`
	App   AppConfig   `yaml:"app"`
}

// InfraConfig 汇总所有基础设施依赖的连接信息。
type InfraConfig struct {
	MysqlDSN     string   `yaml:"mysql_dsn"`
	RedisAddr    string   `yaml:"redis_addr"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	JaegerURL    string   `yaml:"jaeger_url"`
	ZkServers    []string `yaml:"zk_servers"`
}

// AppConfig 是履约引擎自身的业务参数。
type AppConfig struct {
	// ReservationTTL 是一笔库存预留在未支付状态下允许存活的最长时间。
	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	// PaymentLinkTTL 是支付链接的默认有效期。
	PaymentLinkTTL time.Duration `yaml:"payment_link_ttl"`
	// SweepInterval 是过期清扫任务的轮询周期。
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// UseRedisStockLedger 为 true 时库存台账走 Redis Lua 热路径，否则走 MySQL 行级条件更新。
	UseRedisStockLedger bool `yaml:"use_redis_stock_ledger"`

	Providers ProvidersConfig `yaml:"providers"`
}

// ProvidersConfig 是两个独立支付渠道的接入配置。
type ProvidersConfig struct {
	Paypal   ProviderEndpoint `yaml:"paypal"`
	Midtrans ProviderEndpoint `yaml:"midtrans"`
}

type ProviderEndpoint struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// Load 从指定路径读取配置文件并应用默认值。
// 路径为空时使用 CONFIG_PATH 环境变量，最后回退到 ./config.yaml。
func Load(path string) (*Config, error) {
	if path == "" {
		path = getEnv("CONFIG_PATH", "config.yaml")
	}

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// 没有配置文件时允许纯环境变量启动，方便容器部署
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config file %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Infra: InfraConfig{
			MysqlDSN:     "root:root@tcp(localhost:3306)/atlas?charset=utf8mb4&parseTime=True&loc=UTC",
			RedisAddr:    "localhost:6379",
			KafkaBrokers: []string{"localhost:9092"},
			JaegerURL:    "http://localhost:14268/api/traces",
			ZkServers:    []string{"localhost:2181"},
		},
		App: AppConfig{
			ReservationTTL: 30 * time.Minute,
			PaymentLinkTTL: 15 * time.Minute,
			SweepInterval:  time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Infra.MysqlDSN = getEnv("MYSQL_DSN", cfg.Infra.MysqlDSN)
	cfg.Infra.RedisAddr = getEnv("REDIS_ADDR", cfg.Infra.RedisAddr)
	cfg.Infra.JaegerURL = getEnv("JAEGER_ENDPOINT", cfg.Infra.JaegerURL)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.KafkaBrokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.ZkServers = strings.Split(v, ",")
	}
}

// getEnv 从环境变量中读取配置，不存在时返回默认值。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
