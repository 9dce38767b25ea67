package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	RedisURL      string // empty disables the dedupe fast path

	FeedURL string

	TorrentCacheURL        string
	TorrentCacheRatePerSec float64

	ObjectStoreURL           string
	ObjectStoreKey           string
	ObjectStoreRatePerSec    float64
	DownloadPath             string
	FilterExtensions         []string

	LogLevel string
	LogFormat string
	LogFile   string

	OTLPEndpoint string

	HeartbeatInterval     time.Duration
	ReaperInterval        time.Duration
	ReaperStaleAfter      time.Duration
	BeginDownloadInterval time.Duration
	CheckDownloadsInterval time.Duration
	FeedPollInterval      time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MongoURI:      getEnv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "rssbox"),
		RedisURL:      getEnv("REDIS_URL", ""),

		FeedURL: getEnv("RSS_URL", ""),

		TorrentCacheURL:        getEnv("TORRENT_CACHE_URL", ""),
		TorrentCacheRatePerSec: getEnvFloat("TORRENT_CACHE_RATE_LIMIT", 5),

		ObjectStoreURL:         getEnv("OBJECT_STORE_URL", ""),
		ObjectStoreKey:         getEnv("OBJECT_STORE_KEY", ""),
		ObjectStoreRatePerSec:  getEnvFloat("OBJECT_STORE_RATE_LIMIT", 5),
		DownloadPath:           getEnv("DOWNLOAD_PATH", "downloads"),
		FilterExtensions:       parseCSV(strings.ToLower(getEnv("FILTER_EXTENSIONS", ""))),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:   getEnv("LOG_FILE", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		HeartbeatInterval:      getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		ReaperInterval:         getEnvDuration("REAPER_INTERVAL", 40*time.Second),
		ReaperStaleAfter:       getEnvDuration("REAPER_STALE_AFTER", 2*time.Minute),
		BeginDownloadInterval:  getEnvDuration("BEGIN_DOWNLOAD_INTERVAL", 30*time.Second),
		CheckDownloadsInterval: getEnvDuration("CHECK_DOWNLOADS_INTERVAL", 30*time.Second),
		FeedPollInterval:       getEnvDuration("FEED_POLL_INTERVAL", time.Minute),
	}
}

// ApplyDebugFlag elevates LogLevel to debug, mirroring a --debug/--verbose
// CLI flag taking precedence over LOG_LEVEL.
func (c Config) ApplyDebugFlag(debug bool) Config {
	if debug {
		c.LogLevel = "debug"
	}
	return c
}

// FilterExtensionSet returns FilterExtensions as a lookup set, or nil
// (meaning "no filter") if none were configured.
func (c Config) FilterExtensionSet() map[string]struct{} {
	if len(c.FilterExtensions) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.FilterExtensions))
	for _, ext := range c.FilterExtensions {
		set[strings.TrimPrefix(ext, ".")] = struct{}{}
	}
	return set
}

func parseCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
