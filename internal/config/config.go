package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	LockerDB    = "db"
	LockerRedis = "redis"
)

type Config struct {
	Env       string        `yaml:"env" env:"ENV" env-default:"local"`
	StaticDir string        `yaml:"static_dir" env:"STATIC_DIR"`
	HTTP      HTTPConfig    `yaml:"http"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Storage   StorageConfig `yaml:"storage"`
	Locker    LockerConfig  `yaml:"locker"`
	Auth      AuthConfig    `yaml:"auth"`
	Kafka     KafkaConfig   `yaml:"kafka"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type MetricsConfig struct {
	Port int `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	// Path is the sqlite database file; DSN is the postgres connection string.
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"./data/auth.db"`
	DSN  string `yaml:"dsn" env:"STORAGE_DSN"`
}

type LockerConfig struct {
	Backend   string `yaml:"backend" env:"LOCKER_BACKEND" env-default:"db"`
	RedisAddr string `yaml:"redis_addr" env:"LOCKER_REDIS_ADDR" env-default:"localhost:6379"`
}

type AuthConfig struct {
	MaxFailed    int           `yaml:"max_failed" env:"AUTH_MAX_FAILED" env-default:"5"`
	LockDuration time.Duration `yaml:"lock_duration" env:"AUTH_LOCK_DURATION" env-default:"5m"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"user_registered"`
}

// MustLoad reads the config file named by --config or CONFIG_PATH; without
// one, defaults and environment overrides alone apply.
func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		var cfg Config
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			panic("failed to read config from environment: " + err.Error())
		}
		return &cfg
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	return path
}
