package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router       *gin.Engine
	tasks        *services.TaskProvider
	authService  *services.AuthServiceImpl
	provisioning *services.ProvisioningService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.RefreshToken{}))

	tasks, err := services.NewTaskProvider(context.Background(), store.NewMemoryBackend(), nil,
		services.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	authService := services.NewAuthService(db, tasks, services.AuthConfig{
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
	}, nil)
	provisioning := services.NewProvisioningService(authService, tasks, nil)

	return &testServer{
		router: handlers.NewRouter(handlers.RouterConfig{
			Tasks:        tasks,
			Auth:         authService,
			Provisioning: provisioning,
		}),
		tasks:        tasks,
		authService:  authService,
		provisioning: provisioning,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) signUp(t *testing.T, name, email string) *models.Session {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"name": name, "email": email, "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	return &session
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSignUp_ProvisionsProfileAndCategories(t *testing.T) {
	s := newTestServer(t)
	session := s.signUp(t, "Ada Lovelace", "ada@example.com")

	profile, ok := s.tasks.UserByID(session.Identity.ID)
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", profile.Name)

	w := s.do(t, http.MethodGet, "/api/categories", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Categories []models.Category `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	colors := map[string]string{}
	for _, c := range body.Categories {
		colors[c.Name] = c.Color
	}
	assert.Equal(t, map[string]string{"Work": "#3B82F6", "Personal": "#10B981", "Urgent": "#EF4444"}, colors)

	w = s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "ada@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignInRefreshSignOut(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "", "grace@example.com")

	w := s.do(t, http.MethodPost, "/auth/signin", "", gin.H{"email": "grace@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/signin", "", gin.H{"email": "grace@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	w = s.do(t, http.MethodGet, "/auth/session", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "grace", body["profile"].(map[string]interface{})["name"])

	w = s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": session.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))

	w = s.do(t, http.MethodPost, "/auth/signout", "", gin.H{"refresh_token": refreshed.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": refreshed.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignIn_ProvisionsWhenProfileMissing(t *testing.T) {
	s := newTestServer(t)
	_, err := s.authService.SignUp(context.Background(), "linus@example.com", "secret123")
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/auth/signin", "", gin.H{"email": "linus@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, s.tasks.Users(), 1)
	assert.Len(t, s.tasks.Categories(), 3)
}

func TestTasksRequireAuthentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/tasks", "garbage", gin.H{"title": "x", "due_date": "2024-03-15"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, s.tasks.TotalCount())
}

func TestTaskCRUD(t *testing.T) {
	s := newTestServer(t)
	session := s.signUp(t, "Ada", "ada@example.com")
	token := session.AccessToken

	w := s.do(t, http.MethodPost, "/api/tasks", token, gin.H{"title": "Pay rent", "due_date": "2024-03-14"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, session.Identity.ID.String(), created["created_by"])
	assert.Equal(t, true, created["overdue"])
	assert.Equal(t, "Mar 14, 2024", created["due_label"])
	assert.Equal(t, "2 days ago", created["due_relative"])
	id := created["id"].(string)

	w = s.do(t, http.MethodGet, "/api/tasks/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pay rent", decode(t, w)["title"])

	w = s.do(t, http.MethodPatch, "/api/tasks/"+id, token, gin.H{"description": "before the 15th"})
	require.Equal(t, http.StatusOK, w.Code)
	patched := decode(t, w)
	assert.Equal(t, "before the 15th", patched["description"])
	assert.Equal(t, "Pay rent", patched["title"])

	w = s.do(t, http.MethodPut, "/api/tasks/"+id+"/status", token, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["overdue"])

	w = s.do(t, http.MethodPut, "/api/tasks/"+id+"/status", token, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/tasks/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/tasks/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/tasks/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/tasks/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTaskValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "Ada", "ada@example.com").AccessToken

	w := s.do(t, http.MethodPost, "/api/tasks", token, gin.H{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/tasks", token, gin.H{"title": "x", "due_date": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/tasks/"+uuid.Must(uuid.NewV4()).String(), token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/tasks/"+uuid.Must(uuid.NewV4()).String(), token, gin.H{"title": "y"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFilteredViewsAndAnalytics(t *testing.T) {
	s := newTestServer(t)
	token := s.signUp(t, "Ada", "ada@example.com").AccessToken

	for _, body := range []gin.H{
		{"title": "late", "due_date": "2024-03-10"},
		{"title": "today", "due_date": "2024-03-15", "status": "in-progress"},
		{"title": "done", "due_date": "2024-03-01", "status": "completed"},
		{"title": "later", "due_date": "2024-04-01"},
	} {
		w := s.do(t, http.MethodPost, "/api/tasks", token, body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	cases := map[string]float64{"overdue": 1, "today": 1, "pending": 2, "in-progress": 1, "completed": 1}
	for filter, want := range cases {
		w := s.do(t, http.MethodGet, "/api/tasks/filter/"+filter, token, nil)
		require.Equal(t, http.StatusOK, w.Code, filter)
		assert.Equal(t, want, decode(t, w)["total"], filter)
	}

	w := s.do(t, http.MethodGet, "/api/tasks/filter/someday", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/analytics", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	analytics := decode(t, w)
	assert.Equal(t, 0.25, analytics["completion_rate"])
	assert.Equal(t, float64(25), analytics["completion_percent"])
	assert.Len(t, analytics["by_category"], 3)

	w = s.do(t, http.MethodGet, "/api/home", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	home := decode(t, w)
	assert.Len(t, home["overdue"], 1)
	assert.Len(t, home["due_today"], 1)
	assert.Equal(t, float64(4), home["stats"].(map[string]interface{})["total"])
}

func TestCategoriesAndUsers(t *testing.T) {
	s := newTestServer(t)
	session := s.signUp(t, "Ada", "ada@example.com")
	token := session.AccessToken

	w := s.do(t, http.MethodPost, "/api/categories", token, gin.H{"name": "Garden", "color": "#22C55E"})
	require.Equal(t, http.StatusCreated, w.Code)
	categoryID := decode(t, w)["id"].(string)

	w = s.do(t, http.MethodPost, "/api/tasks", token, gin.H{
		"title": "Plant tulips", "due_date": "2024-03-20", "category_id": categoryID, "assigned_to": session.Identity.ID.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/categories/"+categoryID+"/tasks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = s.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["users"], 1)

	w = s.do(t, http.MethodGet, "/api/users/"+session.Identity.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["assigned_tasks"], 1)

	w = s.do(t, http.MethodDelete, "/api/categories/"+categoryID, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/categories/"+categoryID+"/tasks", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/users/"+uuid.Must(uuid.NewV4()).String(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateUserFunction(t *testing.T) {
	s := newTestServer(t)
	session, err := s.authService.SignUp(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)

	w := s.do(t, http.MethodOptions, "/functions/v1/create-user", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = s.do(t, http.MethodPost, "/functions/v1/create-user", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no authorization header", decode(t, w)["error"])

	w = s.do(t, http.MethodPost, "/functions/v1/create-user", "forged", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/functions/v1/create-user", session.AccessToken, gin.H{"name": "Ada"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = s.do(t, http.MethodPost, "/functions/v1/create-user", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Len(t, s.tasks.Categories(), 3)
	profile, ok := s.tasks.UserByID(session.Identity.ID)
	require.True(t, ok)
	assert.Equal(t, "ada", profile.Name, "second call without a name falls back to the email")
}

func TestCreateUserFunction_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/create-user", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_CORSPreflightSkipsAuth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/tasks", "/api/tasks/abc/status", "/auth/signin"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code, path)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

type failingTasks struct {
	services.TaskService
}

func (failingTasks) AddTask(context.Context, models.NewTask) (models.Task, error) {
	return models.Task{}, errors.New("disk on fire")
}

func (failingTasks) DeleteTask(context.Context, uuid.UUID) (bool, error) {
	return true, store.ErrCircuitOpen
}

func (failingTasks) Now() time.Time { return fixedNow }

func TestTaskHandler_ServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewTaskHandler(failingTasks{})
	router := gin.New()
	router.POST("/tasks", handler.CreateTask)
	router.DELETE("/tasks/:id", handler.DeleteTask)

	raw, _ := json.Marshal(gin.H{"title": "x", "due_date": "2024-03-15"})
	req, _ := http.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to process request"}`, w.Body.String())

	req, _ = http.NewRequest(http.MethodDelete, "/tasks/"+uuid.Must(uuid.NewV4()).String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
