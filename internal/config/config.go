package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultAddress          = ":4000"
	defaultLockName         = "civicrm.job.Cloverrecurring"
	defaultLockTTL          = 30 * time.Minute
	defaultInterval         = time.Hour
	defaultRunTimeout       = 20 * time.Minute
	defaultFailureThreshold = 3
	defaultFailureCeiling   = 3
	defaultGatewayTimeout   = 2 * time.Second
	defaultCurrency         = "USD"
	defaultTimezone         = "UTC"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Recurring Recurring `yaml:"recurring"`
	Clover    Clover    `yaml:"clover"`
}

type Recurring struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// RunTimeout bounds one batch run.
	RunTimeout time.Duration `yaml:"run_timeout"`
	LockName   string        `yaml:"lock_name"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
	// FailureThreshold is the failure count from which a failed installment
	// no longer rolls the schedule back.
	FailureThreshold int `yaml:"failure_threshold"`
	// FailureCeiling caps failure_count when a run asks to skip series that
	// keep failing.
	FailureCeiling int    `yaml:"failure_ceiling"`
	Timezone       string `yaml:"timezone"`
}

type Clover struct {
	Timeout         time.Duration `yaml:"timeout"`
	DefaultCurrency string        `yaml:"default_currency"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config data: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrideString(&c.Server.Address, "SERVER_ADDRESS")
	overrideString(&c.Database.URL, "DATABASE_URL")
	overrideString(&c.Redis.Addr, "REDIS_ADDR")
	overrideString(&c.Redis.Password, "REDIS_PASSWORD")
	overrideString(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&c.Recurring.LockName, "RECURRING_LOCK_NAME")
	overrideString(&c.Recurring.Timezone, "RECURRING_TIMEZONE")

	if v, err := readIntEnv("REDIS_DB"); err != nil {
		return fmt.Errorf("parse REDIS_DB: %w", err)
	} else if v != nil {
		c.Redis.DB = *v
	}
	if v, err := readIntEnv("RECURRING_FAILURE_THRESHOLD"); err != nil {
		return fmt.Errorf("parse RECURRING_FAILURE_THRESHOLD: %w", err)
	} else if v != nil {
		c.Recurring.FailureThreshold = *v
	}
	if v, err := readDurationEnv("RECURRING_INTERVAL"); err != nil {
		return fmt.Errorf("parse RECURRING_INTERVAL: %w", err)
	} else if v != nil {
		c.Recurring.Interval = *v
	}
	if v, err := readDurationEnv("CLOVER_TIMEOUT"); err != nil {
		return fmt.Errorf("parse CLOVER_TIMEOUT: %w", err)
	} else if v != nil {
		c.Clover.Timeout = *v
	}
	if v := strings.TrimSpace(os.Getenv("RECURRING_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse RECURRING_ENABLED: %w", err)
		}
		c.Recurring.Enabled = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	r := &c.Recurring
	if r.Interval <= 0 {
		r.Interval = defaultInterval
	}
	if r.RunTimeout <= 0 {
		r.RunTimeout = defaultRunTimeout
	}
	if r.LockName == "" {
		r.LockName = defaultLockName
	}
	if r.LockTTL <= 0 {
		r.LockTTL = defaultLockTTL
	}
	if r.FailureThreshold <= 0 {
		r.FailureThreshold = defaultFailureThreshold
	}
	if r.FailureCeiling <= 0 {
		r.FailureCeiling = defaultFailureCeiling
	}
	if r.Timezone == "" {
		r.Timezone = defaultTimezone
	}
	if c.Clover.Timeout <= 0 {
		c.Clover.Timeout = defaultGatewayTimeout
	}
	if c.Clover.DefaultCurrency == "" {
		c.Clover.DefaultCurrency = defaultCurrency
	}
	c.Clover.DefaultCurrency = strings.ToUpper(c.Clover.DefaultCurrency)
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Recurring.LockTTL < c.Recurring.RunTimeout {
		errs = append(errs, fmt.Errorf("recurring.lock_ttl (%s) must not be shorter than recurring.run_timeout (%s)", c.Recurring.LockTTL, c.Recurring.RunTimeout))
	}
	if _, err := time.LoadLocation(c.Recurring.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("recurring.timezone: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func readIntEnv(key string) (*int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func readDurationEnv(key string) (*time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
