package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"swapScope/internal/metrics"
	"swapScope/internal/model"
	"swapScope/internal/retry"
)

// APIConfig configures the pricing API client.
type APIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond limits outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// APIClient talks to the remote pricing and token metadata API.
type APIClient struct {
	cfg     APIConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewAPIClient builds an API client. httpClient may be nil.
func NewAPIClient(cfg APIConfig, httpClient *http.Client, logger *zap.Logger) (*APIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &APIClient{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}, nil
}

type priceResponse struct {
	UnitPrice json.RawMessage `json:"unitPrice"`
}

type erc20Response struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals *int   `json:"decimals"`
	Address  string `json:"address"`
}

// UnitPrice fetches the USD unit price for a token address.
func (c *APIClient) UnitPrice(ctx context.Context, chainID, address string) (float64, error) {
	if chainID == "" || address == "" {
		return 0, retry.Permanent(fmt.Errorf("chain id and address are required"))
	}

	var resp priceResponse
	path := fmt.Sprintf("/asset/price/%s/%s", url.PathEscape(chainID), url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		metrics.SourceRequest("price", "error")
		return 0, err
	}

	raw := strings.TrimSpace(string(resp.UnitPrice))
	if raw == "" {
		raw = "null"
	}
	var price float64
	if raw == "null" || json.Unmarshal(resp.UnitPrice, &price) != nil {
		metrics.SourceRequest("price", "invalid")
		return 0, retry.Permanent(&NonNumericPriceError{Raw: raw})
	}

	metrics.SourceRequest("price", "ok")
	return price, nil
}

// ERC20Metadata fetches token metadata for a symbol.
func (c *APIClient) ERC20Metadata(ctx context.Context, chainID, symbol string) (model.TokenMeta, error) {
	if chainID == "" || symbol == "" {
		return model.TokenMeta{}, retry.Permanent(fmt.Errorf("missing chain id or symbol"))
	}

	var resp erc20Response
	path := fmt.Sprintf("/asset/erc20/%s/%s", url.PathEscape(chainID), url.PathEscape(symbol))
	if err := c.get(ctx, path, &resp); err != nil {
		metrics.SourceRequest("metadata", "error")
		return model.TokenMeta{}, err
	}

	address, err := NormalizeAddress(resp.Address)
	if err != nil {
		metrics.SourceRequest("metadata", "invalid")
		return model.TokenMeta{}, retry.Permanent(err)
	}
	if IsNativePlaceholder(address) {
		address = ""
	}

	metrics.SourceRequest("metadata", "ok")
	return model.TokenMeta{
		ChainID:  chainID,
		Address:  address,
		Decimals: resp.Decimals,
		Symbol:   resp.Symbol,
		Name:     resp.Name,
	}, nil
}

func (c *APIClient) get(ctx context.Context, path string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	c.logger.Debug("api request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
		if isPermanentStatus(resp.StatusCode) {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

func isPermanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
