package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_ADDR", "BREADCAST_BASE_URL", "BREADCAST_RPS",
		"CACHE_TTL_SECONDS", "VIEW_TTL_SECONDS", "WARM_BAKERY_IDS", "REDIS_DB"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, "prod", c.AppEnv)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 10, c.BreadcastRPS)
	assert.Equal(t, 15*time.Minute, c.CacheTTL)
	assert.Equal(t, 30*time.Minute, c.ViewTTL)
	assert.Empty(t, c.WarmBakeryIDs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BREADCAST_BASE_URL", "https://api.breadcast.test/")
	t.Setenv("BREADCAST_RPS", "0")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TTL_SECONDS", "60")
	t.Setenv("INDEX_WORKERS", "nope")
	t.Setenv("WARM_BAKERY_IDS", " 7, ,12,")

	c := Load()
	assert.Equal(t, "https://api.breadcast.test", c.BreadcastBase)
	assert.Equal(t, 10, c.BreadcastRPS, "non-positive rate falls back")
	assert.Equal(t, 3, c.RedisDB)
	assert.Equal(t, time.Minute, c.SessionTTL)
	assert.Equal(t, 8, c.IndexWorkers, "unparsable value falls back")
	assert.Equal(t, []string{"7", "12"}, c.WarmBakeryIDs)
}
