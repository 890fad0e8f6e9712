package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-expense-backend/internal/config"
	"github.com/tbourn/go-expense-backend/internal/domain"
	"github.com/tbourn/go-expense-backend/internal/http/middleware"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newRouterDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// full schema so list endpoints don't explode
	if err := db.AutoMigrate(
		&domain.Expense{}, &domain.Tag{}, &domain.ExpenseTag{},
		&domain.UserCredit{}, &domain.CreditTransaction{},
		&domain.ChatThread{}, &domain.ChatMessage{}, &domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // allow-all branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
		Credits: config.CreditsConfig{
			FunctionCallLimit: 10,
			MessageLimit:      10,
			ResetInterval:     24 * time.Hour,
		},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newRouterDB(t, "file:routerdb?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, baseConfig())

	// /health works
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) -> header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute -> 404 envelope
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod -> 405 (POST /health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_VersionedAPI_Mounted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newRouterDB(t, "file:routerdb_api?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, baseConfig())

	// Tags list on a fresh user answers 200 with an empty array.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tags", nil)
	req.Header.Set("X-User-ID", "router-u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/tags = %d body=%s", w.Code, w.Body.String())
	}

	// Credits snapshot lazily creates a ledger for the user.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("X-User-ID", "router-u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/credits = %d body=%s", w.Code, w.Body.String())
	}
	var snap map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("credits json: %v", err)
	}
	if snap["messagesRemaining"] != float64(10) {
		t.Fatalf("expected messagesRemaining=10, got %v", snap["messagesRemaining"])
	}

	// Chat answers 503 when no assistant session factory is wired.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString(`{"message":"hi"}`))
	req.Header.Set("X-User-ID", "router-u1")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("POST /api/v1/chat without assistant = %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := baseConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}

	db := newRouterDB(t, "file:routerdb_cors?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// Smoke test that a request traverses the full idempotency + ratelimit +
// otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := baseConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // only emitted on https

	db := newRouterDB(t, "file:routerdb_smoke?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRegisterRoutes_IdempotencyCallback_MissAndHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := baseConfig()
	cfg.APIBasePath = "/api/vX"

	db := newRouterDB(t, "file:routerdb_idem?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, cfg)

	const userID = "u1"
	const key = "key-hit"

	// MISS: record does not exist (drives the 'rec == nil' branch)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-User-ID", userID)
	req.Header.Set(middleware.HeaderIdempotencyKey, key)
	r.ServeHTTP(w, req)
	// NoMethod is expected for POST /health, but the middleware ran.

	// Seed a record so the lookup callback returns non-nil.
	seed := &domain.Idempotency{
		ID:        "idem-seed-1",
		UserID:    userID,
		Scope:     "expense",
		Key:       key,
		RefID:     "1",
		Status:    201,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	// HIT: record exists (drives the 'return true, nil' branch)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-User-ID", userID)
	req.Header.Set(middleware.HeaderIdempotencyKey, key)
	r.ServeHTTP(w, req)
	// again, 405 is fine; the goal is the middleware branch.
}

func TestRegisterRoutes_CreateExpense_IdempotentRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newRouterDB(t, "file:routerdb_replay?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, baseConfig())

	post := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses",
			bytes.NewBufferString(`{"title":"Coffee","amount":4.5}`))
		req.Header.Set("X-User-ID", "retry-u1")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderIdempotencyKey, "retry-key-1")
		r.ServeHTTP(w, req)
		return w
	}

	first := post()
	if first.Code != http.StatusCreated {
		t.Fatalf("first POST = %d body=%s", first.Code, first.Body.String())
	}
	if first.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first POST must not be a replay")
	}

	second := post()
	if second.Code != http.StatusCreated {
		t.Fatalf("retry POST = %d body=%s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry missing Idempotency-Replayed header")
	}

	// Same payload both times.
	var a, b map[string]any
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("first json: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("retry json: %v", err)
	}
	if a["id"] != b["id"] {
		t.Fatalf("retry produced a different expense: %v vs %v", a["id"], b["id"])
	}

	// One expense, one stored record.
	var expenses, records int64
	if err := db.Model(&domain.Expense{}).Where("user_id = ?", "retry-u1").Count(&expenses).Error; err != nil {
		t.Fatalf("count expenses: %v", err)
	}
	if expenses != 1 {
		t.Fatalf("expected 1 expense after retry, got %d", expenses)
	}
	if err := db.Model(&domain.Idempotency{}).Where("user_id = ?", "retry-u1").Count(&records).Error; err != nil {
		t.Fatalf("count idempotency records: %v", err)
	}
	if records != 1 {
		t.Fatalf("expected 1 idempotency record, got %d", records)
	}

	// A different key is a new operation.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses",
		bytes.NewBufferString(`{"title":"Lunch","amount":12}`))
	req.Header.Set("X-User-ID", "retry-u1")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderIdempotencyKey, "retry-key-2")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("new key: code=%d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
}

func TestRegisterRoutes_ThreadRename_Mounted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newRouterDB(t, "file:routerdb_rename?mode=memory&cache=shared")
	RegisterRoutes(r, db, nil, baseConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/threads", bytes.NewBufferString(`{}`))
	req.Header.Set("X-User-ID", "rename-u1")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create thread = %d body=%s", w.Code, w.Body.String())
	}
	var th map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &th); err != nil {
		t.Fatalf("thread json: %v", err)
	}
	id, _ := th["id"].(string)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/v1/threads/"+id, bytes.NewBufferString(`{"title":"Groceries"}`))
	req.Header.Set("X-User-ID", "rename-u1")
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("rename thread = %d body=%s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &th); err != nil {
		t.Fatalf("renamed json: %v", err)
	}
	if th["title"] != "Groceries" {
		t.Fatalf("rename not applied: %v", th["title"])
	}
}

func TestRegisterRoutes_IdempotencyCallback_ErrorBranch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newRouterDB(t, "file:routerdb_err?mode=memory&cache=shared")

	// Wire routes first...
	RegisterRoutes(r, db, nil, baseConfig())

	// ...then force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	// Any repo.GetIdempotency call now errors, driving the (err != nil) branch.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	r.ServeHTTP(w, req)

	// 405 is expected for POST /health; goal is to exercise the middleware branch.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
