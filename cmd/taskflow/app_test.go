package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"taskflow/backend/internal/auth"
	"taskflow/backend/internal/config"
	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"ENVIRONMENT":    "test",
		"DB_DRIVER":      "sqlite",
		"DB_SQLITE_PATH": filepath.Join(t.TempDir(), "db", "taskflow.db"),
		"STORE_DRIVER":   "memory",
		"BCRYPT_COST":    "4",
		"WORKER_ENABLED": "false",
	}
	for k, v := range vars {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func newTestApp(t *testing.T, vars map[string]string) *app {
	t.Helper()
	a, err := newApp(context.Background(), testConfig(t, vars), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func request(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestApplicationStartup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(t, nil)
	router := handlers.NewRouter(a.routerConfig(nil))

	w := request(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var health struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Checks, "database")
	assert.Contains(t, health.Checks, "store")

	w = request(t, router, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignUpToFirstTask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := newTestApp(t, nil)
	router := handlers.NewRouter(a.routerConfig(nil))

	w := request(t, router, http.MethodPost, "/auth/signup", "", gin.H{
		"name": "Ada", "email": "ada@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	categories := a.tasks.Categories()
	require.Len(t, categories, 3)

	w = request(t, router, http.MethodPost, "/api/tasks", session.AccessToken, gin.H{
		"title": "Write the quarterly report", "due_date": "2030-01-01", "category_id": categories[0].ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = request(t, router, http.MethodGet, "/api/tasks", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestOpenBackend_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(mr.Addr())
	cfg := testConfig(t, map[string]string{
		"STORE_DRIVER": "redis",
		"REDIS_HOST":   host,
		"REDIS_PORT":   port,
	})

	backend, rdb, err := openBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer backend.Close()
	require.NotNil(t, rdb)

	_, wrapped := backend.(*store.BreakerBackend)
	assert.True(t, wrapped, "breaker is enabled by default")

	require.NoError(t, backend.Save(context.Background(), store.KeyTasks, []byte("[]")))
	assert.True(t, mr.Exists("taskflow:"+store.KeyTasks))
}

func TestOpenBackend_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := net.SplitHostPort(mr.Addr())
	mr.Close()

	cfg := testConfig(t, map[string]string{
		"STORE_DRIVER":       "redis",
		"REDIS_HOST":         host,
		"REDIS_PORT":         port,
		"REDIS_MAX_RETRIES":  "0",
		"REDIS_DIAL_TIMEOUT": "200ms",
	})
	_, _, err := openBackend(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenBackend_SQLNeedsDatabase(t *testing.T) {
	cfg := testConfig(t, map[string]string{"STORE_DRIVER": "sql"})
	_, _, err := openBackend(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestApp_SQLStorePersistsAcrossRestarts(t *testing.T) {
	vars := map[string]string{"STORE_DRIVER": "sql", "STORE_BREAKER_ENABLED": "false"}
	cfg := testConfig(t, vars)

	first, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	ctx := auth.WithUser(context.Background(), models.Identity{ID: uuid.Must(uuid.NewV4()), Email: "ada@example.com"})
	_, err = first.tasks.AddCategory(ctx, models.NewCategory{Name: "Garden", Color: "#22C55E"})
	require.NoError(t, err)
	first.Close()

	second, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, second.tasks.Categories(), 1)
	assert.Equal(t, "Garden", second.tasks.Categories()[0].Name)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	envPath := filepath.Join(t.TempDir(), "test.env")
	content := "ENVIRONMENT=test\nDB_DRIVER=sqlite\nDB_SQLITE_PATH=" + dbPath + "\nSTORE_DRIVER=memory\nLOG_LEVEL=error\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))
	for _, k := range []string{"ENVIRONMENT", "DB_DRIVER", "DB_SQLITE_PATH", "STORE_DRIVER", "LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"migrate", "--env-file", envPath})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		envFile = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "migration complete")
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
