package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"streamcode/internal/config"
	"streamcode/internal/database"
	"streamcode/internal/observability"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	observability.Config.EnableRepoLogging = false

	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            "8375",
		Env:             "test",
		DBDriver:        "sqlite",
		DBPath:          ":memory:",
		CodeTTL:         24 * time.Hour,
		CodeMaxAttempts: 10,
		CodeCacheTTL:    10 * time.Minute,
		IssueRateLimit:  30,
		PublicBaseURL:   "https://connect.example",
		SiteName:        "JKT48 Connect",
		AdminToken:      "operator-token",
		FeatureFlags:    "resolve_cache=on,og_preview=on",
	}
}

func setupSQLiteDB(t *testing.T, cfg *config.Config) *gorm.DB {
	t.Helper()
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// newTestApp wires a Server over an in-memory database and returns a Fiber app
// with its routes registered. rdb may be nil.
func newTestApp(t *testing.T, cfg *config.Config, rdb *redis.Client) (*Server, *fiber.App) {
	t.Helper()
	db := setupSQLiteDB(t, cfg)
	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	srv.SetupRoutes(app)
	return srv, app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}
