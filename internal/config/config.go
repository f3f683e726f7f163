package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:""`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
}

type ChatConfig struct {
	PerSenderLimit int           `yaml:"per_sender_limit" env-default:"5"`
	HistoryLimit   int           `yaml:"history_limit" env-default:"50"`
	RetainPerRoom  int           `yaml:"retain_per_room" env-default:"500"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-secret-change-me"
	}
	if c.Chat.PerSenderLimit <= 0 {
		c.Chat.PerSenderLimit = 5
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Chat.RetainPerRoom <= 0 {
		c.Chat.RetainPerRoom = 500
	}
	if c.Chat.IdleTimeout <= 0 {
		c.Chat.IdleTimeout = 60 * time.Second
	}
}
