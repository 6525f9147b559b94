package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree, loaded from YAML with optional
// environment-variable overrides for secrets.
type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Logging struct {
		AggregateErrors bool          `yaml:"aggregate_errors"`
		FlushInterval   time.Duration `yaml:"flush_interval" default:"30s"`
		CountThreshold  int           `yaml:"count_threshold" default:"100"`
		Topic           string        `yaml:"topic" default:"sentioracle.logs.aggregated"`
	} `yaml:"logging"`

	Cycle struct {
		PeriodSeconds int `yaml:"period_s"`
		JitterSeconds int `yaml:"jitter_s"`
		Assets        []string `yaml:"assets"`
	} `yaml:"cycle"`

	Dedup struct {
		HorizonSeconds int `yaml:"horizon_s"`
		Capacity       int `yaml:"capacity"`
		Redis          struct {
			Enabled bool   `yaml:"enabled"`
			Addr    string `yaml:"addr"`
			Prefix  string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"dedup"`

	Collectors []CollectorConfig `yaml:"collectors"`

	Scorer struct {
		PrimaryURL     string        `yaml:"primary_url"`
		Timeout        time.Duration `yaml:"timeout"`
		PrimaryWeight  float64       `yaml:"primary_weight"`
		DegradedFactor float64       `yaml:"degraded_factor"`
	} `yaml:"scorer"`

	Manipulation struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"manipulation"`

	Submitter struct {
		BatchSize          int     `yaml:"batch_size"`
		MinIntervalSeconds int     `yaml:"min_interval_s"`
		MaxScoreChangeFP   int64   `yaml:"max_score_change_fp"`
		Confirmations      int     `yaml:"confirmations"`
		GasMultiplier      float64 `yaml:"gas_multiplier"`
		GasCeilingWei      uint64  `yaml:"gas_ceiling_wei"`
	} `yaml:"submitter"`

	Chain struct {
		RPCURL          string `yaml:"rpc_url"`
		ContractAddress string `yaml:"contract_address"`
		ChainID         int64  `yaml:"chain_id"`
		Simulate        bool   `yaml:"simulate"`
	} `yaml:"chain"`

	Signer struct {
		Kind          string `yaml:"kind"` // "local" or "remote"
		PrivateKeyHex string `yaml:"private_key_hex"`
		RemoteURL     string `yaml:"remote_url"`
	} `yaml:"signer"`

	Secrets struct {
		Dir           string `yaml:"dir"`             // mounted secret volume; one <source>.key file per collector
		SignerKeyFile string `yaml:"signer_key_file"`  // overrides signer.private_key_hex when present
	} `yaml:"secrets"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// CollectorConfig configures one Collector instance: HTTP-polled or
// WebSocket-streamed sources share the same shape, with unused fields
// left zero for the mode that doesn't need them.
type CollectorConfig struct {
	Source string `yaml:"source" validate:"required"`
	Mode   string `yaml:"mode" validate:"required,oneof=poll stream kafka"`

	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`

	StreamURL      string        `yaml:"stream_url"`
	APIKey         string        `yaml:"api_key"`
	Channels       []string      `yaml:"channels"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`

	RateCapacity float64 `yaml:"rate_capacity" default:"5"`
	RateRefillS  float64 `yaml:"rate_refill_per_s" default:"1"`

	Topic   string `yaml:"topic"`    // "kafka" mode only
	GroupID string `yaml:"group_id"` // "kafka" mode only
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c.Logging); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	for i := range c.Collectors {
		if err := defaults.Set(&c.Collectors[i]); err != nil {
			return nil, fmt.Errorf("collector %s: apply defaults: %w", c.Collectors[i].Source, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

var fieldValidator = validator.New()

// LoadWithEnv loads config from YAML and overrides secrets from the
// environment, the same split the teacher keeps between versioned YAML
// and runtime-injected credentials.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("OPERATOR_PRIVATE_KEY"); v != "" {
		c.Signer.PrivateKeyHex = v
	}
	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	return c, nil
}

// Validate fails fast on a configuration that could not possibly drive a
// working pipeline, surfacing as the ConfigInvalid condition at startup.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Cycle.PeriodSeconds <= 0 {
		return fmt.Errorf("cycle.period_s must be positive")
	}
	if len(c.Cycle.Assets) == 0 {
		return fmt.Errorf("cycle.assets cannot be empty")
	}
	if len(c.Collectors) == 0 {
		return fmt.Errorf("at least one collector must be configured")
	}
	for _, cc := range c.Collectors {
		if err := fieldValidator.Struct(cc); err != nil {
			return fmt.Errorf("collector %s: %w", cc.Source, err)
		}
	}
	if c.Scorer.PrimaryWeight < 0 || c.Scorer.PrimaryWeight > 1 {
		return fmt.Errorf("scorer.primary_weight must be in [0,1]")
	}
	if c.Submitter.BatchSize <= 0 {
		return fmt.Errorf("submitter.batch_size must be positive")
	}
	if c.Signer.Kind != "local" && c.Signer.Kind != "remote" {
		return fmt.Errorf("signer.kind must be 'local' or 'remote', got %q", c.Signer.Kind)
	}
	if !c.Chain.Simulate && c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required unless chain.simulate is set")
	}
	if c.Chain.ContractAddress == "" && !c.Chain.Simulate {
		return fmt.Errorf("chain.contract_address is required unless chain.simulate is set")
	}
	return nil
}
