package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"downtime-backend/config"
	"downtime-backend/internal/db"
	"downtime-backend/internal/model"
	"downtime-backend/internal/store"
	"downtime-backend/internal/tenant"
)

// mockUpserter records every upsert call.
type mockUpserter struct {
	mu    sync.Mutex
	calls []upsertCall
	err   error
}

type upsertCall struct {
	TenantID string
	Items    []store.RegistryItem
}

func (m *mockUpserter) UpsertSectionsAndMachines(ctx context.Context, tenantID string, items []store.RegistryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, upsertCall{TenantID: tenantID, Items: items})
	return m.err
}

func (m *mockUpserter) Calls() []upsertCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]upsertCall(nil), m.calls...)
}

var registryItems = []store.RegistryItem{
	{ID: "m-1", Code: "CNC-01", Name: "Lathe", Section: "Hall A"},
	{ID: "m-2", Code: "CNC-02", Name: "Mill", Section: "Hall A"},
	{ID: "m-3", Code: "PRS-01", Name: "Press", Section: "Hall B"},
}

// newRegistryServer serves registryItems two per page. failPage, when > 0,
// answers that page with a 500.
func newRegistryServer(t *testing.T, failPage int) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var mu sync.Mutex
	var requests []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var payload map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		requests = append(requests, payload)
		mu.Unlock()

		page := int(payload["page"].(float64))
		if page == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var resp ApiResponse
		resp.Data.Page = page
		resp.Data.PageSize = 2
		resp.Data.Total = len(registryItems)
		start := (page - 1) * 2
		if start < len(registryItems) {
			end := start + 2
			if end > len(registryItems) {
				end = len(registryItems)
			}
			resp.Data.Items = registryItems[start:end]
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func testConfig(url string) config.RegistryConfig {
	return config.RegistryConfig{
		Enabled:  true,
		Interval: time.Hour,
		TenantID: "acme",
		Request: config.RegistryRequest{
			URL:      url,
			Headers:  map[string]string{"X-Api-Key": "secret"},
			Payload:  map[string]any{"plant": "north"},
			PageSize: 2,
		},
	}
}

func TestSyncOncePagesThroughRegistry(t *testing.T) {
	server, requests := newRegistryServer(t, 0)
	upserter := &mockUpserter{}
	svc := NewService(testConfig(server.URL), upserter, zap.NewNop())

	n, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	calls := upserter.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "acme", calls[0].TenantID)
	assert.Equal(t, registryItems, calls[0].Items)

	require.Len(t, *requests, 2)
	assert.Equal(t, "north", (*requests)[0]["plant"])
	assert.Equal(t, float64(2), (*requests)[1]["page"])
	assert.Equal(t, float64(2), (*requests)[1]["pageSize"])
}

func TestSyncOnceAbortsOnFailedPage(t *testing.T) {
	server, _ := newRegistryServer(t, 2)
	upserter := &mockUpserter{}
	svc := NewService(testConfig(server.URL), upserter, zap.NewNop())

	_, err := svc.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2")
	assert.Empty(t, upserter.Calls(), "a partial registry must not be written")
}

func TestSyncOnceRejectsApplicationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":401,"message":"bad key"}`))
	}))
	defer server.Close()

	upserter := &mockUpserter{}
	svc := NewService(testConfig(server.URL), upserter, zap.NewNop())

	_, err := svc.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Empty(t, upserter.Calls())
}

func TestSyncOnceEmptyRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0,"data":{"page":1,"pageSize":2,"total":0,"items":[]}}`))
	}))
	defer server.Close()

	upserter := &mockUpserter{}
	svc := NewService(testConfig(server.URL), upserter, zap.NewNop())

	n, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, upserter.Calls())
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.Enabled = false
	svc := NewService(cfg, &mockUpserter{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for a disabled registry")
	}
}

func TestRunSyncsUntilCancelled(t *testing.T) {
	server, _ := newRegistryServer(t, 0)
	upserter := &mockUpserter{}
	svc := NewService(testConfig(server.URL), upserter, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(upserter.Calls()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestSyncOnceIntoStore(t *testing.T) {
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
	s := store.NewGormStore(gormDB)

	server, _ := newRegistryServer(t, 0)
	svc := NewService(testConfig(server.URL), s, zap.NewNop())

	_, err = svc.SyncOnce(context.Background())
	require.NoError(t, err)

	machines, err := s.ListMachines(context.Background(), tenant.For("acme"), store.MachineFilter{})
	require.NoError(t, err)
	require.Len(t, machines, 3)
	for _, m := range machines {
		assert.Equal(t, model.StatusRunning, m.Status)
		require.NotNil(t, m.Section)
	}

	// A second sync is idempotent.
	_, err = svc.SyncOnce(context.Background())
	require.NoError(t, err)
	var count int64
	require.NoError(t, gormDB.Model(&model.Machine{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
