package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheMemory = "memory"
	CacheMongo  = "mongo"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

type Config struct {
	// Backend
	NewsAPIKey   string
	NewsAPIURL   string
	HTTPTimeout  time.Duration
	RateLimitRPS float64

	// Paging
	PageSize         int
	PrefetchDistance int
	SearchDebounce   time.Duration
	DefaultQuery     string

	// Cache
	CacheBackend string
	CacheSize    int
	CacheTTL     time.Duration
	RedisURL     string

	// Storage
	MongoURI               string
	MongoDBName            string
	MongoCacheCollection   string
	MongoArchiveCollection string

	// Messaging
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	// Connectivity
	ConnectivityProbe    string
	ConnectivityInterval time.Duration

	ServerPort string
}

func Load() *Config {
	// Load .env file if it exists; the API key is expected to live there.
	_ = godotenv.Load()

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	cfg := &Config{
		NewsAPIKey:             getEnv("NEWS_API_KEY", ""),
		NewsAPIURL:             getEnv("NEWS_API_URL", "https://newsapi.org"),
		HTTPTimeout:            getDurationEnv("HTTP_TIMEOUT", 10*time.Second),
		RateLimitRPS:           getFloatEnv("RATE_LIMIT_RPS", 5),
		PageSize:               getIntEnv("PAGE_SIZE", 20),
		PrefetchDistance:       getIntEnv("PREFETCH_DISTANCE", 10),
		SearchDebounce:         getDurationEnv("SEARCH_DEBOUNCE", 300*time.Millisecond),
		DefaultQuery:           getEnv("DEFAULT_QUERY", ""),
		CacheBackend:           getEnv("CACHE_BACKEND", CacheMemory),
		CacheSize:              getIntEnv("CACHE_SIZE", 256),
		CacheTTL:               getDurationEnv("CACHE_TTL", 5*time.Minute),
		RedisURL:               getEnv("REDIS_URL", ""),
		MongoURI:               getEnv("MONGO_URI", ""),
		MongoDBName:            getEnv("MONGO_DB_NAME", "news_pager"),
		MongoCacheCollection:   getEnv("MONGO_CACHE_COLLECTION", "page_cache"),
		MongoArchiveCollection: getEnv("MONGO_ARCHIVE_COLLECTION", "articles"),
		KafkaBrokers:           brokers,
		KafkaTopic:             getEnv("KAFKA_TOPIC", "news_pages"),
		KafkaDLQTopic:          getEnv("KAFKA_DLQ_TOPIC", "news_pages_dlq"),
		ConnectivityInterval:   getDurationEnv("CONNECTIVITY_INTERVAL", 5*time.Second),
		ServerPort:             getEnv("SERVER_PORT", "8080"),
	}
	cfg.ConnectivityProbe = getEnv("CONNECTIVITY_PROBE", probeAddr(cfg.NewsAPIURL))
	return cfg
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("invalid page size: %d (must be 1-100)", c.PageSize)
	}
	if c.PrefetchDistance < 0 {
		return fmt.Errorf("invalid prefetch distance: %d", c.PrefetchDistance)
	}
	if c.SearchDebounce < 0 {
		return fmt.Errorf("invalid search debounce: %s", c.SearchDebounce)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("invalid rate limit: %v", c.RateLimitRPS)
	}
	if _, err := url.Parse(c.NewsAPIURL); err != nil || c.NewsAPIURL == "" {
		return fmt.Errorf("invalid news api url %q", c.NewsAPIURL)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheNone:
	case CacheMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("cache backend %q requires MONGO_URI", c.CacheBackend)
		}
	case CacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("cache backend %q requires REDIS_URL", c.CacheBackend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	return nil
}

// KafkaEnabled reports whether page events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// MongoEnabled reports whether a MongoDB connection is configured.
func (c *Config) MongoEnabled() bool {
	return c.MongoURI != ""
}

// probeAddr derives a host:port for the connectivity probe from the API URL.
func probeAddr(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		// Try parsing as duration string (e.g. "300ms", "5s")
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Try parsing as integer milliseconds
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return fallback
}
