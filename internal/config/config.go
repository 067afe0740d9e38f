package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	SeedAdminPassword     string
	SeedCashierPassword   string

	CashTolerance  decimal.Decimal
	TaxRatePercent decimal.Decimal
	TaxIncluded    bool
	ReportCacheTTL time.Duration
}

var (
	defaultTolerance = decimal.RequireFromString("0.01")
	maxTaxRate       = decimal.NewFromInt(100)
)

// Load reads an optional .env file, then the process environment. Values in
// the environment win over .env entries.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("RUN_MIGRATIONS", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_STORE_ID", "main-store")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("MANAGER_PIN", "")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")
	v.SetDefault("SEED_CASHIER_PASSWORD", "")
	v.SetDefault("CASH_TOLERANCE", defaultTolerance.String())
	v.SetDefault("TAX_RATE_PERCENT", "0")
	v.SetDefault("TAX_INCLUDED", false)
	v.SetDefault("REPORT_CACHE_TTL_SECONDS", 300)
	v.AutomaticEnv()

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	cacheTTL := v.GetInt("REPORT_CACHE_TTL_SECONDS")
	if cacheTTL < 1 {
		cacheTTL = 300
	}

	tolerance := parseDecimal(v.GetString("CASH_TOLERANCE"), "CASH_TOLERANCE", defaultTolerance)
	if tolerance.IsNegative() {
		log.Printf("[config] WARN CASH_TOLERANCE must not be negative, using %s", defaultTolerance)
		tolerance = defaultTolerance
	}
	taxRate := parseDecimal(v.GetString("TAX_RATE_PERCENT"), "TAX_RATE_PERCENT", decimal.Zero)
	if taxRate.IsNegative() || taxRate.GreaterThan(maxTaxRate) {
		log.Printf("[config] WARN TAX_RATE_PERCENT must be within 0..100, using 0")
		taxRate = decimal.Zero
	}

	return Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		RunMigrations:         v.GetBool("RUN_MIGRATIONS"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		StoreID:               v.GetString("DEFAULT_STORE_ID"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(v.GetString("MANAGER_PIN")),
		SeedAdminPassword:     v.GetString("SEED_ADMIN_PASSWORD"),
		SeedCashierPassword:   v.GetString("SEED_CASHIER_PASSWORD"),
		CashTolerance:         tolerance,
		TaxRatePercent:        taxRate,
		TaxIncluded:           v.GetBool("TAX_INCLUDED"),
		ReportCacheTTL:        time.Duration(cacheTTL) * time.Second,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func parseDecimal(raw string, key string, fallback decimal.Decimal) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	val, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("[config] WARN invalid %s %q, using %s", key, raw, fallback)
		return fallback
	}
	return val
}
