package config // package config loads application configuration from environment variables

import (
	"errors"  // errors reports missing required keys
	"fmt"     // fmt builds error messages
	"strings" // strings joins the list of missing keys
	"time"    // time parses duration settings

	"github.com/joho/godotenv" // godotenv loads a local .env file when present
	"github.com/spf13/viper"   // viper resolves environment variables with defaults
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are parsed with time.ParseDuration
// semantics (e.g. "5s", "5m").
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // logrus level name

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret      string // secret used to verify access tokens
	CronSecretHash string // bcrypt hash of the scheduler's shared secret

	ShowVoteCap   int            // votes a user may cast per show
	DailyVoteCap  int            // votes a user may cast per calendar day
	VoteTxTimeout time.Duration  // upper bound for one admission transaction
	VoteDayZone   *time.Location // time zone that defines a "day" for the daily cap

	TrendingInterval    time.Duration // in-process recalculation period; 0 disables the ticker
	TrendingWindowDays  int           // only shows starting within this many days are scored
	TrendingConcurrency int           // parallel single-row score updates
	ShowDuration        time.Duration // how long after start an ONGOING show becomes COMPLETED

	PresenceTTL           time.Duration // viewers not seen for this long are dropped
	PresenceSweepInterval time.Duration // how often expired viewers are swept

	AMQPURL          string // RabbitMQ URL; empty disables cross-instance fan-out
	RealtimeExchange string // fanout exchange carrying realtime events
}

var required = []string{"APP_PORT", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME", "JWT_SECRET"}

// Load reads configuration values from the environment (optionally seeded
// by a .env file) and returns a Config.  Missing required variables are
// reported together in a single error.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	var missing []string
	for _, k := range required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	loc, err := time.LoadLocation(v.GetString("VOTE_DAY_TZ"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid VOTE_DAY_TZ: %w", err)
	}

	amqpURL := v.GetString("RABBITMQ_URL")
	if amqpURL == "" {
		amqpURL = v.GetString("AMQP_URL")
	}

	cfg := Config{
		Env:                   v.GetString("APP_ENV"),
		Port:                  v.GetString("APP_PORT"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		DBUser:                v.GetString("DB_USER"),
		DBPass:                v.GetString("DB_PASS"),
		DBHost:                v.GetString("DB_HOST"),
		DBPort:                v.GetString("DB_PORT"),
		DBName:                v.GetString("DB_NAME"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		CronSecretHash:        v.GetString("CRON_SECRET_HASH"),
		ShowVoteCap:           v.GetInt("VOTE_SHOW_CAP"),
		DailyVoteCap:          v.GetInt("VOTE_DAILY_CAP"),
		VoteTxTimeout:         v.GetDuration("VOTE_TX_TIMEOUT"),
		VoteDayZone:           loc,
		TrendingInterval:      v.GetDuration("TRENDING_INTERVAL"),
		TrendingWindowDays:    v.GetInt("TRENDING_WINDOW_DAYS"),
		TrendingConcurrency:   v.GetInt("TRENDING_CONCURRENCY"),
		ShowDuration:          v.GetDuration("SHOW_DURATION"),
		PresenceTTL:           v.GetDuration("PRESENCE_TTL"),
		PresenceSweepInterval: v.GetDuration("PRESENCE_SWEEP_INTERVAL"),
		AMQPURL:               amqpURL,
		RealtimeExchange:      v.GetString("REALTIME_EXCHANGE"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("VOTE_SHOW_CAP", 10)
	v.SetDefault("VOTE_DAILY_CAP", 50)
	v.SetDefault("VOTE_TX_TIMEOUT", "5s")
	v.SetDefault("VOTE_DAY_TZ", "UTC")
	v.SetDefault("TRENDING_INTERVAL", "5m")
	v.SetDefault("TRENDING_WINDOW_DAYS", 30)
	v.SetDefault("TRENDING_CONCURRENCY", 4)
	v.SetDefault("SHOW_DURATION", "6h")
	v.SetDefault("PRESENCE_TTL", "90s")
	v.SetDefault("PRESENCE_SWEEP_INTERVAL", "30s")
	v.SetDefault("REALTIME_EXCHANGE", "setlist.realtime")
}

func (c Config) validate() error {
	switch {
	case c.ShowVoteCap < 1:
		return errors.New("VOTE_SHOW_CAP must be positive")
	case c.DailyVoteCap < 1:
		return errors.New("VOTE_DAILY_CAP must be positive")
	case c.VoteTxTimeout <= 0:
		return errors.New("VOTE_TX_TIMEOUT must be positive")
	case c.TrendingWindowDays < 1:
		return errors.New("TRENDING_WINDOW_DAYS must be positive")
	case c.PresenceTTL <= 0:
		return errors.New("PRESENCE_TTL must be positive")
	}
	return nil
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }
