package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bell-backend/pkg/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store and provider names accepted by the configuration
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ProviderNoop    = "noop"
	ProviderAuthKey = "authkey"
	ProviderSMTP    = "smtp"
)

// Config holds every setting the server reads at startup
type Config struct {
	Env      string
	Port     string
	GinMode  string
	LogLevel string

	Database DatabaseConfig
	Redis    RedisConfig
	OTP      OTPConfig
	AuthKey  AuthKeyConfig
	SMTP     SMTPConfig
	NATS     NATSConfig
	JWT      JWTConfig

	CORSAllowedOrigins []string
}

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OTPConfig holds the one-time code policy
type OTPConfig struct {
	Store           string
	Limiter         string
	TTL             time.Duration
	MaxAttempts     int
	DispatchTimeout time.Duration
	SweepInterval   time.Duration
	Secret          string

	SendCooldown     time.Duration
	SendWindow       time.Duration
	SendMaxPerWindow int

	SMSProvider   string
	EmailProvider string
}

// AuthKeyConfig holds AuthKey.io SMS gateway credentials
type AuthKeyConfig struct {
	APIKey      string
	TemplateID  string
	CountryCode string
	Company     string
}

// SMTPConfig holds email gateway settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NATSConfig holds lifecycle event publishing settings
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// JWTConfig holds session token settings
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", utils.EnvLocal)
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bell")
	v.SetDefault("DB_SSL_MODE", "disable")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("OTP_STORE", BackendMemory)
	v.SetDefault("OTP_LIMITER", BackendMemory)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_DISPATCH_TIMEOUT", "10s")
	v.SetDefault("OTP_SWEEP_INTERVAL", "1m")
	v.SetDefault("OTP_SECRET", "")
	v.SetDefault("OTP_SEND_COOLDOWN", "30s")
	v.SetDefault("OTP_SEND_WINDOW", "10m")
	v.SetDefault("OTP_SEND_MAX_PER_WINDOW", 5)
	v.SetDefault("OTP_SMS_PROVIDER", ProviderNoop)
	v.SetDefault("OTP_EMAIL_PROVIDER", ProviderNoop)

	v.SetDefault("AUTHKEY_API_KEY", "")
	v.SetDefault("AUTHKEY_TEMPLATE_ID", "")
	v.SetDefault("AUTHKEY_COUNTRY_CODE", "91")
	v.SetDefault("AUTHKEY_COMPANY", "Bell24h")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "bell.otp")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

// Load reads .env (when present) and the process environment into a Config
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env:      utils.NormalizeEnvironment(v.GetString("APP_ENV")),
		Port:     v.GetString("PORT"),
		GinMode:  v.GetString("GIN_MODE"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		OTP: OTPConfig{
			Store:            strings.ToLower(v.GetString("OTP_STORE")),
			Limiter:          strings.ToLower(v.GetString("OTP_LIMITER")),
			TTL:              v.GetDuration("OTP_TTL"),
			MaxAttempts:      v.GetInt("OTP_MAX_ATTEMPTS"),
			DispatchTimeout:  v.GetDuration("OTP_DISPATCH_TIMEOUT"),
			SweepInterval:    v.GetDuration("OTP_SWEEP_INTERVAL"),
			Secret:           v.GetString("OTP_SECRET"),
			SendCooldown:     v.GetDuration("OTP_SEND_COOLDOWN"),
			SendWindow:       v.GetDuration("OTP_SEND_WINDOW"),
			SendMaxPerWindow: v.GetInt("OTP_SEND_MAX_PER_WINDOW"),
			SMSProvider:      strings.ToLower(v.GetString("OTP_SMS_PROVIDER")),
			EmailProvider:    strings.ToLower(v.GetString("OTP_EMAIL_PROVIDER")),
		},
		AuthKey: AuthKeyConfig{
			APIKey:      v.GetString("AUTHKEY_API_KEY"),
			TemplateID:  v.GetString("AUTHKEY_TEMPLATE_ID"),
			CountryCode: v.GetString("AUTHKEY_COUNTRY_CODE"),
			Company:     v.GetString("AUTHKEY_COMPANY"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		CORSAllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail at request time
func (c *Config) Validate() error {
	var errs []error

	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.OTP.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("OTP_DISPATCH_TIMEOUT must be positive"))
	}
	if c.OTP.SweepInterval < 0 {
		errs = append(errs, errors.New("OTP_SWEEP_INTERVAL cannot be negative"))
	}
	if !oneOf(c.OTP.Store, BackendMemory, BackendRedis, BackendPostgres) {
		errs = append(errs, fmt.Errorf("OTP_STORE %q is not one of memory, redis, postgres", c.OTP.Store))
	}
	if !oneOf(c.OTP.Limiter, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("OTP_LIMITER %q is not one of memory, redis", c.OTP.Limiter))
	}
	if !oneOf(c.OTP.SMSProvider, ProviderNoop, ProviderAuthKey) {
		errs = append(errs, fmt.Errorf("OTP_SMS_PROVIDER %q is not one of noop, authkey", c.OTP.SMSProvider))
	}
	if !oneOf(c.OTP.EmailProvider, ProviderNoop, ProviderSMTP) {
		errs = append(errs, fmt.Errorf("OTP_EMAIL_PROVIDER %q is not one of noop, smtp", c.OTP.EmailProvider))
	}
	if c.OTP.SMSProvider == ProviderAuthKey && (c.AuthKey.APIKey == "" || c.AuthKey.TemplateID == "") {
		errs = append(errs, errors.New("AUTHKEY_API_KEY and AUTHKEY_TEMPLATE_ID are required for the authkey provider"))
	}
	if c.OTP.EmailProvider == ProviderSMTP && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM are required for the smtp provider"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}

	if c.IsProduction() {
		if c.OTP.Secret == "" {
			errs = append(errs, errors.New("OTP_SECRET must be set in production"))
		}
		if c.JWT.Secret == "" {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if len(c.CORSAllowedOrigins) == 0 {
			errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must be set in production"))
		}
		if c.OTP.SMSProvider == ProviderNoop {
			errs = append(errs, errors.New("OTP_SMS_PROVIDER cannot be noop in production"))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in the production environment
func (c *Config) IsProduction() bool {
	return utils.IsProduction(c.Env)
}

// NeedsRedis reports whether any component is backed by redis
func (c *Config) NeedsRedis() bool {
	return c.OTP.Store == BackendRedis || c.OTP.Limiter == BackendRedis
}

func parseList(raw string) []string {
	var result []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
