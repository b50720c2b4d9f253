// Package trading212 provides a client for the Trading 212 public API
package trading212

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
	"github.com/tobyrouse/divfolio/internal/models"
)

const (
	DefaultLiveBaseURL = "https://live.trading212.com"
	DefaultDemoBaseURL = "https://demo.trading212.com"
	DefaultTimeout     = 30 * time.Second
	DefaultRateLimit   = 1 // requests per second; the API throttles aggressively
)

// Client implements the BrokerClient interface. The API key and live/demo
// mode are read from the settings store per request, so runtime settings
// changes take effect without rebuilding the client.
type Client struct {
	liveBaseURL string
	demoBaseURL string
	settings    *common.SettingsStore
	httpClient  *http.Client
	logger      *common.Logger
	limiter     *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURLs sets the live and demo base URLs
func WithBaseURLs(live, demo string) ClientOption {
	return func(c *Client) {
		c.liveBaseURL = live
		c.demoBaseURL = demo
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Trading 212 client
func NewClient(settings *common.SettingsStore, opts ...ClientOption) *Client {
	c := &Client{
		liveBaseURL: DefaultLiveBaseURL,
		demoBaseURL: DefaultDemoBaseURL,
		settings:    settings,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Trading 212 API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// baseURL picks the API host for the current mode.
func (c *Client) baseURL() string {
	if c.settings.Current().Mode == common.ModeDemo {
		return c.demoBaseURL
	}
	return c.liveBaseURL
}

// do performs a rate-limited, authenticated request and decodes the response
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	apiKey := c.settings.Current().APIKey
	if apiKey == "" {
		return interfaces.ErrMissingCredential
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("Trading 212 API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Endpoint:   path,
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// positionResponse represents one row of the portfolio endpoint
type positionResponse struct {
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
	CurrentPrice float64 `json:"currentPrice"`
	FXPPL        float64 `json:"fxPpl"`
}

// GetOpenPositions retrieves all open positions, dropping rows with zero or
// negative quantity
func (c *Client) GetOpenPositions(ctx context.Context) ([]models.RawPosition, error) {
	var rows []positionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v0/equity/portfolio", nil, &rows); err != nil {
		return nil, err
	}

	positions := make([]models.RawPosition, 0, len(rows))
	for _, row := range rows {
		if row.Quantity <= 0 {
			continue
		}
		positions = append(positions, models.RawPosition{
			Ticker:       row.Ticker,
			Quantity:     row.Quantity,
			AveragePrice: row.AveragePrice,
			CurrentPrice: row.CurrentPrice,
			FXPPL:        row.FXPPL,
		})
	}

	c.logger.Debug().Int("positions", len(positions)).Msg("Trading 212 portfolio fetched")
	return positions, nil
}

type instrumentResponse struct {
	Ticker       string `json:"ticker"`
	CurrencyCode string `json:"currencyCode"`
}

// GetInstrumentMetadata retrieves per-instrument metadata
func (c *Client) GetInstrumentMetadata(ctx context.Context) ([]models.InstrumentMeta, error) {
	var rows []instrumentResponse
	if err := c.do(ctx, http.MethodGet, "/api/v0/equity/metadata/instruments", nil, &rows); err != nil {
		return nil, err
	}

	meta := make([]models.InstrumentMeta, len(rows))
	for i, row := range rows {
		meta[i] = models.InstrumentMeta{
			Ticker:       row.Ticker,
			CurrencyCode: row.CurrencyCode,
		}
	}
	return meta, nil
}

type exportRequest struct {
	DataIncluded exportDataIncluded `json:"dataIncluded"`
	TimeFrom     time.Time          `json:"timeFrom"`
	TimeTo       time.Time          `json:"timeTo"`
}

type exportDataIncluded struct {
	IncludeDividends    bool `json:"includeDividends"`
	IncludeInterest     bool `json:"includeInterest"`
	IncludeOrders       bool `json:"includeOrders"`
	IncludeTransactions bool `json:"includeTransactions"`
}

type exportRequestResponse struct {
	ReportID int64 `json:"reportId"`
}

// RequestExport initiates a dividend history export for the given range
func (c *Client) RequestExport(ctx context.Context, from, to time.Time) (int64, error) {
	body := exportRequest{
		DataIncluded: exportDataIncluded{IncludeDividends: true},
		TimeFrom:     from,
		TimeTo:       to,
	}

	var resp exportRequestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v0/history/exports", body, &resp); err != nil {
		return 0, err
	}

	c.logger.Debug().Int64("report_id", resp.ReportID).Msg("Trading 212 export requested")
	return resp.ReportID, nil
}

type exportStatusResponse struct {
	ReportID     int64  `json:"reportId"`
	Status       string `json:"status"`
	DownloadLink string `json:"downloadLink"`
}

// GetExportStatus polls the export list for the status of one report
func (c *Client) GetExportStatus(ctx context.Context, reportID int64) (*models.ExportStatus, error) {
	var rows []exportStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v0/history/exports", nil, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.ReportID == reportID {
			return &models.ExportStatus{
				ReportID:     row.ReportID,
				Status:       row.Status,
				DownloadLink: row.DownloadLink,
			}, nil
		}
	}
	return nil, fmt.Errorf("export report %d not found", reportID)
}

// DownloadExport fetches the finished export CSV. The download link is a
// pre-signed URL, so no Authorization header is sent.
func (c *Client) DownloadExport(ctx context.Context, downloadLink string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadLink, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   downloadLink,
		}
	}

	return io.ReadAll(resp.Body)
}

// Ensure Client implements BrokerClient
var _ interfaces.BrokerClient = (*Client)(nil)
