package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Port           int           `mapstructure:"port" validate:"gt=0,lt=65536"`
		LogLevel       string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
		ReadinessDelay time.Duration `mapstructure:"readiness_delay"` // 启动后多久才报告就绪
		AllowedOrigins []string      `mapstructure:"allowed_origins"`
	} `mapstructure:"app"`
	DB struct {
		Driver string `mapstructure:"driver" validate:"oneof=mysql sqlite"`
		MySQL  struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			DBName   string `mapstructure:"dbname"`
		} `mapstructure:"mysql"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"db"`
	Solana struct {
		RPCURL         string        `mapstructure:"rpc_url" validate:"required,url"`
		Cluster        string        `mapstructure:"cluster" validate:"oneof=mainnet-beta devnet testnet"`
		WalletSecret   string        `mapstructure:"wallet_secret" validate:"required"` // base58
		ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" validate:"gt=0"`
		PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
		Simulate       bool          `mapstructure:"simulate"`
	} `mapstructure:"solana"`
	Bags struct {
		APIBase string        `mapstructure:"api_base" validate:"required,url"`
		APIKey  string        `mapstructure:"api_key"`
		Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	} `mapstructure:"bags"`
	Token struct {
		Mint string `mapstructure:"mint"`
	} `mapstructure:"token"`
	Price struct {
		Endpoint string `mapstructure:"endpoint" validate:"required,url"`
		Schedule string `mapstructure:"schedule" validate:"required"`
		Window   int    `mapstructure:"window" validate:"gt=0"`
	} `mapstructure:"price"`
	Reconcile struct {
		Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	} `mapstructure:"reconcile"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.readiness_delay", 5*time.Second)
	v.SetDefault("app.allowed_origins", []string{"*"})
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.sqlite_path", "launchpad.db")
	v.SetDefault("db.mysql.port", 3306)
	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.cluster", "devnet")
	v.SetDefault("solana.confirm_timeout", 90*time.Second)
	v.SetDefault("solana.poll_interval", 2*time.Second)
	v.SetDefault("solana.simulate", true)
	v.SetDefault("bags.api_base", "https://public-api-v2.bags.fm/api/v1")
	v.SetDefault("bags.timeout", 60*time.Second)
	v.SetDefault("price.endpoint", "https://price.jup.ag/v6/price")
	v.SetDefault("price.schedule", "@every 5s")
	v.SetDefault("price.window", 20)
	v.SetDefault("reconcile.interval", 30*time.Second)
}

// Load 读取配置文件，环境变量优先（BAGS_API_KEY、SOLANA_WALLET_SECRET 等）
// path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 只对已知 key 生效，secret 没有默认值，需要显式绑定
	for _, key := range []string{"bags.api_key", "solana.wallet_secret", "token.mint", "db.mysql.password"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.DB.Driver == "mysql" && (c.DB.MySQL.Host == "" || c.DB.MySQL.DBName == "") {
		return errors.New("invalid config: db.mysql.host and db.mysql.dbname are required for mysql")
	}
	return nil
}

// MySQLDSN 与原服务相同的连接串格式
func (c *Config) MySQLDSN() string {
	m := c.DB.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.User, m.Password, m.Host, m.Port, m.DBName)
}
