package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"downtime-backend/config"
	"downtime-backend/internal/db"
	"downtime-backend/internal/lifecycle"
	"downtime-backend/internal/model"
	"downtime-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	machine model.Machine
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		RateLimitPerSec:     1000,
		RateLimitBurst:      1000,
		CacheTTLSeconds:     60,
		TenantHeader:        "X-Tenant-ID",
		AllowTenantWildcard: true,
	}
}

func newTestServer(t *testing.T, webpushOptions *webpush.Options) *testServer {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      db.MemoryDSN(uuid.NewString()),
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	machine := model.Machine{TenantID: "acme", Code: "CNC-01", Name: "Lathe"}
	require.NoError(t, gormDB.Create(&machine).Error)

	s := store.NewGormStore(gormDB)
	service := lifecycle.NewService(s, nil, zap.NewNop())
	service.Now = func() time.Time { return testNow }

	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	handler := NewHandler(service, s, webpushOptions, saoPaulo, zap.NewNop())
	return &testServer{
		router:  NewRouter(handler, testServerConfig(), zap.NewNop()),
		db:      gormDB,
		machine: machine,
	}
}

// do sends a request as tenant; body is JSON encoded unless it is a string.
func (ts *testServer) do(t *testing.T, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}
