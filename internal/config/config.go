// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        // e.g. "8080"
	Env            string        // "development" | "production"
	ReadTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s
	APIKey         string        // static key for mutating endpoints; "" disables auth in dev
	AllowedOrigins string        // comma-separated WS origins; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// ChainConfig holds ledger RPC settings.
type ChainConfig struct {
	RPCEndpoint    string        // default devnet
	TreasurySecret string        // base58 private key funding distributions
	SubmitTimeout  time.Duration // per submission attempt, default 10s
	ConfirmTimeout time.Duration // per confirmation wait, default 30s
	ConfirmPoll    time.Duration // status poll interval, default 500ms
}

// PoolConfig holds resource-pool housekeeping settings.
type PoolConfig struct {
	StaleThreshold  time.Duration // claims older than this are reclaimed, default 15m
	SweepInterval   time.Duration // reconciliation sweep period, default 1m
	BalanceInterval time.Duration // advisory balance refresh period, default 5m
}

// CurveConfig holds the initial bonding-curve reserves for new instruments.
type CurveConfig struct {
	VirtualTokenReserve int64
	VirtualBaseReserve  int64
	RealTokenReserve    int64
}

// DistributionConfig holds planner and executor settings.
type DistributionConfig struct {
	OverheadPerSlot       uint64        // lamports reserved per slot for fees/rent
	MinViableTransfer     uint64        // slots below this are zeroed out
	LargeSlotFraction     float64       // share of slots flagged large, e.g. 0.2
	LargeWeightMultiplier float64       // weight boost for large slots, e.g. 3.0
	MaxAttempts           int           // retry budget per slot / reserve commit
	RetryBackoff          time.Duration // pause between attempts, default 250ms
	BatchBudget           time.Duration // wall clock per batch; 0 = unbounded
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server       ServerConfig
	DB           DBConfig
	Chain        ChainConfig
	Pool         PoolConfig
	Curve        CurveConfig
	Distribution DistributionConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	if c.Chain.TreasurySecret == "" {
		errs = append(errs, errors.New("CHAIN_TREASURY_SECRET must be set"))
	}

	// In production, DB DSN and the API key must be explicit
	if c.IsProd() {
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
		if c.Server.APIKey == "" {
			errs = append(errs, errors.New("API_KEY must be set in production"))
		}
	}

	if c.Curve.VirtualTokenReserve <= 0 || c.Curve.VirtualBaseReserve <= 0 || c.Curve.RealTokenReserve <= 0 {
		errs = append(errs, fmt.Errorf(
			"curve reserves must be positive, got vToken=%d vBase=%d real=%d",
			c.Curve.VirtualTokenReserve, c.Curve.VirtualBaseReserve, c.Curve.RealTokenReserve,
		))
	}

	if c.Distribution.LargeSlotFraction < 0 || c.Distribution.LargeSlotFraction > 1 {
		errs = append(errs, fmt.Errorf(
			"DIST_LARGE_SLOT_FRACTION must be within [0, 1], got %.4f",
			c.Distribution.LargeSlotFraction,
		))
	}
	if c.Distribution.LargeWeightMultiplier < 1 {
		errs = append(errs, fmt.Errorf(
			"DIST_LARGE_WEIGHT_MULTIPLIER must be >= 1, got %.4f",
			c.Distribution.LargeWeightMultiplier,
		))
	}
	if c.Distribution.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf(
			"DIST_MAX_ATTEMPTS must be >= 1, got %d", c.Distribution.MaxAttempts,
		))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:           getEnv("SERVER_PORT", "8080"),
		Env:            getEnv("ENVIRONMENT", "development"),
		ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		APIKey:         getEnv("API_KEY", ""),
		AllowedOrigins: getEnv("WS_ALLOWED_ORIGINS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "launchpad"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── Chain ─────────────────────────────────────────────────────────────────
	cfg.Chain = ChainConfig{
		RPCEndpoint:    getEnv("CHAIN_RPC_ENDPOINT", "https://api.devnet.solana.com"),
		TreasurySecret: getEnv("CHAIN_TREASURY_SECRET", ""),
		SubmitTimeout:  getDuration("CHAIN_SUBMIT_TIMEOUT", 10*time.Second),
		ConfirmTimeout: getDuration("CHAIN_CONFIRM_TIMEOUT", 30*time.Second),
		ConfirmPoll:    getDuration("CHAIN_CONFIRM_POLL", 500*time.Millisecond),
	}

	// ── Pool ──────────────────────────────────────────────────────────────────
	cfg.Pool = PoolConfig{
		StaleThreshold:  getDuration("POOL_STALE_THRESHOLD", 15*time.Minute),
		SweepInterval:   getDuration("POOL_SWEEP_INTERVAL", time.Minute),
		BalanceInterval: getDuration("POOL_BALANCE_INTERVAL", 5*time.Minute),
	}

	// ── Curve ─────────────────────────────────────────────────────────────────
	// Defaults mirror the canonical launch curve: 1.073B virtual tokens,
	// 30 SOL virtual base, 793.1M real tokens, all in smallest units.
	vToken, err := getInt64("CURVE_VIRTUAL_TOKEN_RESERVE", 1_073_000_000_000_000)
	if err != nil {
		return nil, fmt.Errorf("CURVE_VIRTUAL_TOKEN_RESERVE: %w", err)
	}
	vBase, err := getInt64("CURVE_VIRTUAL_BASE_RESERVE", 30_000_000_000)
	if err != nil {
		return nil, fmt.Errorf("CURVE_VIRTUAL_BASE_RESERVE: %w", err)
	}
	realToken, err := getInt64("CURVE_REAL_TOKEN_RESERVE", 793_100_000_000_000)
	if err != nil {
		return nil, fmt.Errorf("CURVE_REAL_TOKEN_RESERVE: %w", err)
	}
	cfg.Curve = CurveConfig{
		VirtualTokenReserve: vToken,
		VirtualBaseReserve:  vBase,
		RealTokenReserve:    realToken,
	}

	// ── Distribution ──────────────────────────────────────────────────────────
	overhead, err := getInt64("DIST_OVERHEAD_PER_SLOT", 5_000)
	if err != nil {
		return nil, fmt.Errorf("DIST_OVERHEAD_PER_SLOT: %w", err)
	}
	minViable, err := getInt64("DIST_MIN_VIABLE_TRANSFER", 1_000_000)
	if err != nil {
		return nil, fmt.Errorf("DIST_MIN_VIABLE_TRANSFER: %w", err)
	}
	largeFrac, err := getFloat("DIST_LARGE_SLOT_FRACTION", 0.2)
	if err != nil {
		return nil, fmt.Errorf("DIST_LARGE_SLOT_FRACTION: %w", err)
	}
	largeMult, err := getFloat("DIST_LARGE_WEIGHT_MULTIPLIER", 3.0)
	if err != nil {
		return nil, fmt.Errorf("DIST_LARGE_WEIGHT_MULTIPLIER: %w", err)
	}
	maxAttempts, err := getInt("DIST_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("DIST_MAX_ATTEMPTS: %w", err)
	}

	cfg.Distribution = DistributionConfig{
		OverheadPerSlot:       uint64(overhead),
		MinViableTransfer:     uint64(minViable),
		LargeSlotFraction:     largeFrac,
		LargeWeightMultiplier: largeMult,
		MaxAttempts:           maxAttempts,
		RetryBackoff:          getDuration("DIST_RETRY_BACKOFF", 250*time.Millisecond),
		BatchBudget:           getDuration("DIST_BATCH_BUDGET", 0),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Log warning and fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
