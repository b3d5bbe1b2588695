package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lpgateway/internal/metrics"
)

const userAgent = "lpgateway/1.0"

var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("lpgateway/custody"))

// IdempotencyKey derives a stable key from parts, so a repeated create for the same
// inputs is recognized by the custody provider instead of producing a duplicate.
func IdempotencyKey(parts ...string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

// APIConfig configures the custody HTTP client.
type APIConfig struct {
	BaseURL   string
	AppID     string
	AppSecret string
	Timeout   time.Duration
}

// APIError is a non-2xx custody response. Message is the provider's text, unmodified.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("custody status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("custody status=%d: %s", e.Status, e.Message)
}

// API is a thin JSON client for the custody provider. It never retries.
type API struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAPI(cfg APIConfig, logger *zap.Logger) *API {
	timeout := 15 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Do sends in as JSON and decodes a 2xx response into out. endpoint labels metrics.
func (a *API) Do(ctx context.Context, method, path, endpoint string, in, out interface{}, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if a.appID != "" {
		req.SetBasicAuth(a.appID, a.appSecret)
		req.Header.Set("X-App-Id", a.appID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		metrics.CustodyRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.CustodyRequests.WithLabelValues(endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var parsed struct {
			Error   string `json:"error"`
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &parsed) == nil && (parsed.Error != "" || parsed.Message != "") {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Error
			if apiErr.Message == "" {
				apiErr.Message = parsed.Message
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		a.logger.Debug("custody request rejected",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
