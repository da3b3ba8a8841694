package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
	Cold RedisInstanceConfig `mapstructure:"cold"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		RatingEvents     string `mapstructure:"rating_events"`
		CatalogIngestion string `mapstructure:"catalog_ingestion"`
	} `mapstructure:"topics"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Admin   int           `mapstructure:"admin"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig carries every tunable of the recommendation pipeline. The
// defaults reproduce the engine's reference behavior; override with care,
// cached results are only comparable within one parameter set.
type EngineConfig struct {
	// LikedThreshold is the minimum rating treated as a positive signal
	// (collaborative seeds, affinity signals, evaluation relevance).
	LikedThreshold int `mapstructure:"liked_threshold"`

	Content       ContentConfig       `mapstructure:"content"`
	Public        PublicConfig        `mapstructure:"public"`
	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
	ColdStart     ColdStartConfig     `mapstructure:"cold_start"`
	Signals       SignalsConfig       `mapstructure:"signals"`
	Fusion        FusionConfig        `mapstructure:"fusion"`
	Evaluation    EvaluationConfig    `mapstructure:"evaluation"`
}

// ContentConfig drives the private (profile-based) content scorer.
type ContentConfig struct {
	MaxGenres          int     `mapstructure:"max_genres"`
	MaxItemsPerGenre   int     `mapstructure:"max_items_per_genre"`
	DefaultPreference  float64 `mapstructure:"default_preference"`
	RelativityDecimals int     `mapstructure:"relativity_decimals"`
}

// PublicConfig drives the anonymous genre-interest endpoint.
type PublicConfig struct {
	MaxGenres         int     `mapstructure:"max_genres"`
	MaxItemsPerGenre  int     `mapstructure:"max_items_per_genre"`
	DefaultPreference float64 `mapstructure:"default_preference"`
	MaxRequestGenres  int     `mapstructure:"max_request_genres"`
}

type CollaborativeConfig struct {
	MaxSeedItems     int           `mapstructure:"max_seed_items"`
	NeighborsPerSeed int           `mapstructure:"neighbors_per_seed"`
	Shrinkage        float64       `mapstructure:"shrinkage"`
	SimilarityTTL    time.Duration `mapstructure:"similarity_ttl"`
}

type ColdStartConfig struct {
	MinRatings  int     `mapstructure:"min_ratings"`
	BoostFactor float64 `mapstructure:"boost_factor"`
	MaxBoosted  int     `mapstructure:"max_boosted"`
}

type SignalsConfig struct {
	MaxBonus         float64 `mapstructure:"max_bonus"`
	PopularityWeight float64 `mapstructure:"popularity_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`
	AuthorWeight     float64 `mapstructure:"author_weight"`
	LanguageWeight   float64 `mapstructure:"language_weight"`
	MediaTypeWeight  float64 `mapstructure:"media_type_weight"`
}

type FusionConfig struct {
	CFWeight       float64       `mapstructure:"cf_weight"`
	CountThreshold int           `mapstructure:"count_threshold"`
	TopN           int           `mapstructure:"top_n"`
	ResultTTL      time.Duration `mapstructure:"result_ttl"`
}

type EvaluationConfig struct {
	K          int     `mapstructure:"k"`
	SplitRatio float64 `mapstructure:"split_ratio"`
	Seed       int64   `mapstructure:"seed"`
	MaxUsers   int     `mapstructure:"max_users"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults: hot = sessions/rate limits, warm = recommendation
	// results and preference vectors, cold = item similarities
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")
	viper.SetDefault("redis.cold.max_retries", 3)
	viper.SetDefault("redis.cold.pool_size", 5)
	viper.SetDefault("redis.cold.timeout", "15s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.rating_events", "rating-events")
	viper.SetDefault("kafka.topics.catalog_ingestion", "catalog-ingestion")
	viper.SetDefault("kafka.consumer_group", "engine-workers")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.admin", 10000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Engine defaults
	viper.SetDefault("engine.liked_threshold", 7)

	viper.SetDefault("engine.content.max_genres", 10)
	viper.SetDefault("engine.content.max_items_per_genre", 21)
	viper.SetDefault("engine.content.default_preference", 6.0)
	viper.SetDefault("engine.content.relativity_decimals", 1)

	viper.SetDefault("engine.public.max_genres", 5)
	viper.SetDefault("engine.public.max_items_per_genre", 6)
	viper.SetDefault("engine.public.default_preference", 6.0)
	viper.SetDefault("engine.public.max_request_genres", 20)

	viper.SetDefault("engine.collaborative.max_seed_items", 10)
	viper.SetDefault("engine.collaborative.neighbors_per_seed", 50)
	viper.SetDefault("engine.collaborative.shrinkage", 25.0)
	viper.SetDefault("engine.collaborative.similarity_ttl", "6h")

	viper.SetDefault("engine.cold_start.min_ratings", 5)
	viper.SetDefault("engine.cold_start.boost_factor", 15.0)
	viper.SetDefault("engine.cold_start.max_boosted", 10)

	viper.SetDefault("engine.signals.max_bonus", 30.0)
	viper.SetDefault("engine.signals.popularity_weight", 10.0)
	viper.SetDefault("engine.signals.recency_weight", 8.0)
	viper.SetDefault("engine.signals.author_weight", 12.0)
	viper.SetDefault("engine.signals.language_weight", 5.0)
	viper.SetDefault("engine.signals.media_type_weight", 8.0)

	viper.SetDefault("engine.fusion.cf_weight", 0.4)
	viper.SetDefault("engine.fusion.count_threshold", 15)
	viper.SetDefault("engine.fusion.top_n", 100)
	viper.SetDefault("engine.fusion.result_ttl", "1h")

	viper.SetDefault("engine.evaluation.k", 10)
	viper.SetDefault("engine.evaluation.split_ratio", 0.8)
	viper.SetDefault("engine.evaluation.seed", 42)
	viper.SetDefault("engine.evaluation.max_users", 50)

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
