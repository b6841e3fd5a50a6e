package router

import (
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/amirphl/magpie/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingApp(ttl time.Duration) (*fiber.App, *int) {
	cfg := &config.ProductionConfig{}
	cfg.Server.PublicCacheTTL = ttl
	r := &FiberRouter{cfg: cfg}

	hits := 0
	app := fiber.New()
	app.Get("/links", r.publicCache(), func(c fiber.Ctx) error {
		hits++
		return c.SendString(c.Query("page") + ":" + strconv.Itoa(hits))
	})
	return app, &hits
}

func get(t *testing.T, app *fiber.App, target string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, target, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestPublicCache(t *testing.T) {
	t.Run("RepeatedRequestIsServedFromCache", func(t *testing.T) {
		app, hits := countingApp(time.Minute)
		get(t, app, "/links?page=1")
		get(t, app, "/links?page=1")
		assert.Equal(t, 1, *hits)

		get(t, app, "/links?page=2")
		assert.Equal(t, 2, *hits, "query string is part of the key")
	})

	t.Run("ZeroTTLDisablesCache", func(t *testing.T) {
		app, hits := countingApp(0)
		get(t, app, "/links?page=1")
		get(t, app, "/links?page=1")
		assert.Equal(t, 2, *hits)
	})
}
