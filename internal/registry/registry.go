// Package registry imports sections and machines from the upstream machine
// registry. It never touches stoppages or the cached machine status.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"downtime-backend/config"
	"downtime-backend/internal/store"
)

// Upserter persists registry items for one tenant.
type Upserter interface {
	UpsertSectionsAndMachines(ctx context.Context, tenantID string, items []store.RegistryItem) error
}

// Service periodically syncs the registry into the store.
type Service struct {
	cfg    config.RegistryConfig
	store  Upserter
	client *http.Client
	logger *zap.Logger
}

// NewService creates and initializes a new registry service.
func NewService(cfg config.RegistryConfig, s Upserter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("registry")

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy URL, registry will not use a proxy",
				zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if cfg.Request.PageSize <= 0 {
		cfg.Request.PageSize = 100
	}

	return &Service{
		cfg:   cfg,
		store: s,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		logger: logger,
	}
}

// Run syncs once and then every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("registry import is disabled")
		return
	}
	s.logger.Info("starting registry import", zap.Duration("interval", s.cfg.Interval))

	s.syncAndLog(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("registry import shutting down")
			return
		case <-timer.C:
			s.syncAndLog(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) syncAndLog(ctx context.Context) {
	n, err := s.SyncOnce(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("registry sync failed", zap.Error(err))
		}
		return
	}
	s.logger.Info("registry sync finished", zap.Int("items", n))
}

// SyncOnce fetches every page of the registry and upserts the result. A
// failed page aborts the sync without writing anything.
func (s *Service) SyncOnce(ctx context.Context) (int, error) {
	var items []store.RegistryItem
	total := 1
	pageSize := s.cfg.Request.PageSize
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		items = append(items, resp.Data.Items...)
		s.logger.Debug("fetched registry page",
			zap.Int("page", page),
			zap.Int("total", total),
			zap.Int("items", len(items)))
	}

	if len(items) == 0 {
		return 0, nil
	}
	if err := s.store.UpsertSectionsAndMachines(ctx, s.cfg.TenantID, items); err != nil {
		return 0, fmt.Errorf("failed to upsert registry items: %w", err)
	}
	return len(items), nil
}

func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any, len(s.cfg.Request.Payload)+2)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("registry returned non-zero application code %d: %s", apiResp.Code, apiResp.Message)
	}

	return &apiResp, nil
}
