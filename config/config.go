// Package config loads service configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/JeremyLoy/config"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"matchmaking-service/matchmaking"
)

type Config struct {
	Port           string `config:"PORT"`
	Env            string `config:"APP_ENV"`
	LogLevel       string `config:"LOG_LEVEL"`
	AllowedOrigins string `config:"ALLOWED_ORIGINS"`

	DatabaseURL       string        `config:"DATABASE_URL"`
	DBMaxOpenConns    int           `config:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `config:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `config:"DB_CONN_MAX_LIFETIME"`

	GameServiceToken string `config:"GAME_SERVICE_TOKEN"`

	InitialThreshold      float64       `config:"MM_INITIAL_THRESHOLD"`
	MinimumThreshold      float64       `config:"MM_MINIMUM_THRESHOLD"`
	DecayRatePerSecond    float64       `config:"MM_DECAY_RATE_PER_SECOND"`
	PollInterval          time.Duration `config:"MM_POLL_INTERVAL"`
	Timeout               time.Duration `config:"MM_TIMEOUT"`
	BatchSize             int           `config:"MM_BATCH_SIZE"`
	LockTimeout           time.Duration `config:"MM_LOCK_TIMEOUT"`
	RatingBand            int           `config:"MM_RATING_BAND"`
	StreamBuffer          int           `config:"MM_STREAM_BUFFER"`
	SweepGrace            time.Duration `config:"MM_SWEEP_GRACE"`
	ArchiveRetention      time.Duration `config:"MM_ARCHIVE_RETENTION"`
	ArchiveBatchSize      int           `config:"MM_ARCHIVE_BATCH_SIZE"`
	EloK                  float64       `config:"ELO_K_FACTOR"`
	LeaderboardLimit      int           `config:"LEADERBOARD_LIMIT"`
	RedisURL              string        `config:"REDIS_URL"`
	ProfileCacheTTL       time.Duration `config:"PROFILE_CACHE_TTL"`
	AMQPURL               string        `config:"AMQP_URL"`
	AMQPExchange          string        `config:"AMQP_EXCHANGE"`
	CloudflareAccountID   string        `config:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID         string        `config:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret     string        `config:"R2_ACCESS_KEY_SECRET"`
	R2BucketName          string        `config:"R2_BUCKET_NAME"`
	R2ArchivePrefix       string        `config:"R2_ARCHIVE_PREFIX"`
	ShutdownGracePeriod   time.Duration `config:"SHUTDOWN_GRACE_PERIOD"`
	StreamHeartbeatPeriod time.Duration `config:"MM_STREAM_HEARTBEAT"`
}

// Default returns the configuration used for every variable left unset.
func Default() Config {
	mm := matchmaking.DefaultConfig()
	return Config{
		Port:                  "5200",
		Env:                   "development",
		LogLevel:              "info",
		AllowedOrigins:        "http://localhost:3000",
		DBMaxOpenConns:        20,
		DBMaxIdleConns:        5,
		DBConnMaxLifetime:     30 * time.Minute,
		InitialThreshold:      mm.Decay.Initial,
		MinimumThreshold:      mm.Decay.Minimum,
		DecayRatePerSecond:    mm.Decay.RatePerSecond,
		PollInterval:          mm.PollInterval,
		Timeout:               mm.Timeout,
		BatchSize:             mm.BatchSize,
		LockTimeout:           2 * time.Second,
		RatingBand:            matchmaking.DefaultRatingBand,
		StreamBuffer:          16,
		SweepGrace:            time.Minute,
		ArchiveRetention:      24 * time.Hour,
		ArchiveBatchSize:      500,
		EloK:                  32,
		LeaderboardLimit:      50,
		ProfileCacheTTL:       30 * time.Second,
		AMQPExchange:          "contests",
		R2ArchivePrefix:       "matchmaking/closed-tickets",
		ShutdownGracePeriod:   10 * time.Second,
		StreamHeartbeatPeriod: 15 * time.Second,
	}
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv overlays the process environment onto Default and validates the
// result.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := config.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "failed to read environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return eris.New("DATABASE_URL environment variable not set")
	}
	if c.GameServiceToken == "" {
		return eris.New("GAME_SERVICE_TOKEN environment variable not set")
	}
	if c.StreamBuffer < 1 {
		return eris.New("MM_STREAM_BUFFER must be at least 1")
	}
	if err := c.Matchmaking().Validate(); err != nil {
		return eris.Wrap(err, "invalid matchmaking configuration")
	}
	return nil
}

// Matchmaking returns the engine configuration.
func (c Config) Matchmaking() matchmaking.Config {
	return matchmaking.Config{
		Decay: matchmaking.Decay{
			Initial:       c.InitialThreshold,
			Minimum:       c.MinimumThreshold,
			RatePerSecond: c.DecayRatePerSecond,
		},
		PollInterval: c.PollInterval,
		Timeout:      c.Timeout,
		BatchSize:    c.BatchSize,
	}
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) Development() bool { return c.Env == "development" }

func (c Config) RedisEnabled() bool { return c.RedisURL != "" }

func (c Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// R2Enabled reports whether every R2 setting the archiver needs is present.
func (c Config) R2Enabled() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" &&
		c.R2AccessKeySecret != "" && c.R2BucketName != ""
}
