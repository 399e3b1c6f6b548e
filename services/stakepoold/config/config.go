package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8090"
	defaultMetricsListen = ":9109"
	defaultCooldown      = 14 * 24 * time.Hour
	defaultDuration      = 30 * 24 * time.Hour
	defaultStreamBuffer  = 64
)

// Store backends understood by the daemon.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Config captures the runtime settings for the stake pool daemon.
type Config struct {
	ListenAddress  string           `yaml:"listen"`
	MetricsListen  string           `yaml:"metrics_listen"`
	Owner          string           `yaml:"owner"`
	Custody        string           `yaml:"custody"`
	Asset          string           `yaml:"asset"`
	Paused         bool             `yaml:"paused"`
	Pool           PoolConfig       `yaml:"pool"`
	Store          StoreConfig      `yaml:"store"`
	Bank           BankConfig       `yaml:"bank"`
	Journal        JournalConfig    `yaml:"journal"`
	Auth           AuthConfig       `yaml:"auth"`
	RateLimits     map[string]Limit `yaml:"rate_limits"`
	Logging        LoggingConfig    `yaml:"logging"`
	StreamBuffer   int              `yaml:"stream_buffer"`
	ShutdownPeriod time.Duration    `yaml:"shutdown_timeout"`
}

// PoolConfig seeds the pool parameters on first start.
type PoolConfig struct {
	CooldownPeriod  time.Duration `yaml:"cooldown"`
	RewardsDuration time.Duration `yaml:"rewards_duration"`
}

// StoreConfig selects where pool and account records live.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// BankConfig configures the internal asset book.
type BankConfig struct {
	Path    string          `yaml:"path"`
	Genesis []GenesisCredit `yaml:"genesis"`
}

// GenesisCredit mints an opening balance when the daemon starts.
type GenesisCredit struct {
	Asset  string `yaml:"asset"`
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

// JournalConfig points at the SQL database holding emitted events.
type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig describes the bearer token verification settings.
type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ScopeClaim    string        `yaml:"scope_claim"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
	// TrustSubjectHeader takes the caller from X-Stakepool-Subject while
	// auth is disabled. Never set it outside local development.
	TrustSubjectHeader bool `yaml:"dev_trust_subject_header"`
}

// Limit is a per-route request budget.
type Limit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Requests   bool   `yaml:"requests"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.MetricsListen = strings.TrimSpace(cfg.MetricsListen)
	if cfg.MetricsListen == "" {
		cfg.MetricsListen = defaultMetricsListen
	}
	cfg.Owner = strings.TrimSpace(cfg.Owner)
	cfg.Custody = strings.TrimSpace(cfg.Custody)
	cfg.Asset = strings.TrimSpace(cfg.Asset)
	if cfg.Pool.CooldownPeriod == 0 {
		cfg.Pool.CooldownPeriod = defaultCooldown
	}
	if cfg.Pool.RewardsDuration == 0 {
		cfg.Pool.RewardsDuration = defaultDuration
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendMemory
	}
	cfg.Store.Path = strings.TrimSpace(cfg.Store.Path)
	cfg.Bank.Path = strings.TrimSpace(cfg.Bank.Path)
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	if cfg.Journal.DSN == "" {
		cfg.Journal.DSN = "file:stakepool-journal?mode=memory&cache=shared"
	}
	cfg.Auth.HMACSecretEnv = strings.TrimSpace(cfg.Auth.HMACSecretEnv)
	if cfg.Auth.HMACSecret == "" && cfg.Auth.HMACSecretEnv != "" {
		cfg.Auth.HMACSecret = os.Getenv(cfg.Auth.HMACSecretEnv)
	}
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]Limit{
			"query":  {RequestsPerMinute: 600, Burst: 60},
			"ledger": {RequestsPerMinute: 120, Burst: 20},
			"admin":  {RequestsPerMinute: 30, Burst: 5},
		}
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = defaultStreamBuffer
	}
	if cfg.ShutdownPeriod <= 0 {
		cfg.ShutdownPeriod = 5 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if _, err := parseAddress("owner", cfg.Owner, true); err != nil {
		return err
	}
	if _, err := parseAddress("custody", cfg.Custody, true); err != nil {
		return err
	}
	if _, err := parseAddress("asset", cfg.Asset, false); err != nil {
		return err
	}
	if cfg.Pool.CooldownPeriod < 0 {
		return fmt.Errorf("pool: cooldown must not be negative")
	}
	if cfg.Pool.RewardsDuration < time.Second {
		return fmt.Errorf("pool: rewards_duration must be at least 1s")
	}
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if cfg.Store.Path == "" {
			return fmt.Errorf("store: path required for %s backend", cfg.Store.Backend)
		}
	default:
		return fmt.Errorf("store: unknown backend %q", cfg.Store.Backend)
	}
	for i, credit := range cfg.Bank.Genesis {
		if _, err := credit.Parse(); err != nil {
			return fmt.Errorf("bank: genesis[%d]: %w", i, err)
		}
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac secret required when auth is enabled")
	}
	if cfg.Auth.Enabled && cfg.Auth.TrustSubjectHeader {
		return fmt.Errorf("auth: dev_trust_subject_header cannot be combined with enabled auth")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits: %s must not be negative", name)
		}
	}
	return nil
}

// BankPath is the LevelDB directory backing the asset book. An empty result
// means the book shares the store database. A bolt store cannot host the
// book, so it gets a sibling directory unless one is configured.
func (cfg Config) BankPath() string {
	if cfg.Bank.Path != "" {
		return cfg.Bank.Path
	}
	if cfg.Store.Backend == BackendBolt && cfg.Store.Path != "" {
		return cfg.Store.Path + ".bank"
	}
	return ""
}

// OwnerAddress returns the parsed owner address.
func (cfg Config) OwnerAddress() common.Address {
	return common.HexToAddress(cfg.Owner)
}

// CustodyAddress returns the parsed custody address.
func (cfg Config) CustodyAddress() common.Address {
	return common.HexToAddress(cfg.Custody)
}

// AssetAddress returns the configured asset and whether one was set.
func (cfg Config) AssetAddress() (common.Address, bool) {
	if cfg.Asset == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(cfg.Asset), true
}

// ParsedCredit is a validated genesis credit.
type ParsedCredit struct {
	Asset  common.Address
	Holder common.Address
	Amount *uint256.Int
}

// Parse validates the credit entry.
func (c GenesisCredit) Parse() (ParsedCredit, error) {
	asset, err := parseAddress("asset", c.Asset, true)
	if err != nil {
		return ParsedCredit{}, err
	}
	holder, err := parseAddress("holder", c.Holder, true)
	if err != nil {
		return ParsedCredit{}, err
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(c.Amount))
	if err != nil {
		return ParsedCredit{}, fmt.Errorf("amount: %w", err)
	}
	if amount.IsZero() {
		return ParsedCredit{}, fmt.Errorf("amount must be positive")
	}
	return ParsedCredit{Asset: asset, Holder: holder, Amount: amount}, nil
}

func parseAddress(field, value string, required bool) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s address required", field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s address must not be zero", field)
	}
	return addr, nil
}
