package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "5s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Server struct {
	Addr            string   `yaml:"addr"`
	MetricsAddr     string   `yaml:"metrics_addr"` // empty disables the metrics listener
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Log struct {
	File string `yaml:"file"` // empty logs to stdout only
}

type Kafka struct {
	Brokers []string `yaml:"brokers"` // empty disables the trade feed
	Topic   string   `yaml:"topic"`
}

type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
	Kafka   Kafka   `yaml:"kafka"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":3000",
			MetricsAddr:     ":9090",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: Storage{
			Path: "data/exchange",
		},
		Kafka: Kafka{
			Topic: "trades",
		},
	}
}

// Load reads configuration in precedence order: environment variables
// override the YAML file, which overrides the defaults. The .env file is
// loaded first so it can feed the environment overrides. Both files are
// optional.
func Load(configPath, envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// LoadFromEnv loads configuration from the environment and an optional
// .env file, skipping the YAML layer.
func LoadFromEnv(envPath string) Config {
	cfg, _ := Load("", envPath)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(time.Duration(ms) * time.Millisecond)
		}
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
}
