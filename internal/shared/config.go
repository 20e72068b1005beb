package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	BreadcastBase   string
	BreadcastRPS    int
	UpstreamTimeout time.Duration

	CacheTTL     time.Duration
	SessionTTL   time.Duration
	ViewTTL      time.Duration
	IndexWorkers int

	WarmWorkers   int
	WarmBakeryIDs []string
}

func Load() Config {
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/breadcast?parseTime=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		BreadcastBase:   strings.TrimRight(env("BREADCAST_BASE_URL", "http://localhost:8081"), "/"),
		BreadcastRPS:    atoi("BREADCAST_RPS", 10),
		UpstreamTimeout: seconds("UPSTREAM_TIMEOUT_SECONDS", 15),

		CacheTTL:     seconds("CACHE_TTL_SECONDS", 900),
		SessionTTL:   seconds("SESSION_TTL_SECONDS", 86400),
		ViewTTL:      seconds("VIEW_TTL_SECONDS", 1800),
		IndexWorkers: atoi("INDEX_WORKERS", 8),

		WarmWorkers:   atoi("WARM_WORKERS", 4),
		WarmBakeryIDs: SplitIDs(os.Getenv("WARM_BAKERY_IDS")),
	}
	if c.BreadcastRPS <= 0 {
		log.Warn().Int("rps", c.BreadcastRPS).Msg("BREADCAST_RPS must be positive; using 10")
		c.BreadcastRPS = 10
	}
	return c
}

// SplitIDs parses a comma separated id list, dropping blanks.
func SplitIDs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer; using default")
	}
	return def
}

func seconds(k string, def int) time.Duration {
	return time.Duration(atoi(k, def)) * time.Second
}
