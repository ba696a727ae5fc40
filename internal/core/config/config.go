package config

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const DefaultCacheExpire = 60 * time.Second

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	ServiceURL     string
	StylesURL      string
	CacheSize      int
	CacheBackend   string
	RedisAddr      string
	CacheOpTimeout time.Duration
	FetchTimeout   time.Duration
	DialectsFile   string
	StyleAuthUser  string
	StyleAuthPass  string
	MetricsEnabled bool
	Invalidation   InvalidationCfg

	// CacheExpire is shared so that updates reach already cached entries.
	CacheExpire *Expiry
}

func FromEnv() Config {
	exp := NewExpiry(getduration("CACHE_EXPIRE", DefaultCacheExpire))
	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		ServiceURL:     getenv("SERVICE_URL", "http://localhost:8080/geoserver/ogc/tiles"),
		StylesURL:      getenv("STYLES_URL", "http://localhost:8080/geoserver/ogc/styles"),
		CacheSize:      getint("CACHE_SIZE", 256),
		CacheBackend:   strings.ToLower(getenv("CACHE_BACKEND", "memory")),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		FetchTimeout:   getduration("FETCH_TIMEOUT", 15*time.Second),
		DialectsFile:   getenv("DIALECTS_FILE", ""),
		StyleAuthUser:  getenv("STYLE_AUTH_USER", ""),
		StyleAuthPass:  getenv("STYLE_AUTH_PASSWORD", ""),
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "ogc-capabilities-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "ogcapi-resolver"),
		},
		CacheExpire: exp,
	}
}

// Expiry is the cache expiry setting, read at validity-check time.
type Expiry struct {
	v atomic.Int64
}

func NewExpiry(d time.Duration) *Expiry {
	e := &Expiry{}
	e.Set(d)
	return e
}

func (e *Expiry) Set(d time.Duration) {
	e.v.Store(int64(d))
}

// Get returns the configured expiry; unset, zero or negative values mean DefaultCacheExpire.
func (e *Expiry) Get() time.Duration {
	if e == nil {
		return DefaultCacheExpire
	}
	d := time.Duration(e.v.Load())
	if d <= 0 {
		return DefaultCacheExpire
	}
	return d
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

// accepts Go durations ("90s") or plain seconds ("90")
func getduration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
