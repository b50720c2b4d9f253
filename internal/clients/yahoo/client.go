// Package yahoo provides a client for Yahoo Finance dividend quote facts
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
	"github.com/tobyrouse/divfolio/internal/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	historyDepth = 4
	historyRange = "2y"
)

// Client implements the QuoteClient interface
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
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

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
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
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo Finance API error: %s (status: %d, symbol: %s)", e.Message, e.StatusCode, e.Symbol)
}

// rawValue is Yahoo's number envelope: {"raw": 1.23, "fmt": "1.23"}
type rawValue struct {
	Raw *float64 `json:"raw"`
}

// rawDate is the same envelope for epoch-second dates
type rawDate struct {
	Raw *int64 `json:"raw"`
}

func (d rawDate) time() *time.Time {
	if d.Raw == nil {
		return nil
	}
	t := time.Unix(*d.Raw, 0).UTC()
	return &t
}

type quoteSummaryResult struct {
	SummaryDetail struct {
		DividendRate   rawValue `json:"dividendRate"`
		DividendYield  rawValue `json:"dividendYield"`
		Currency       string   `json:"currency"`
		ExDividendDate rawDate  `json:"exDividendDate"`
	} `json:"summaryDetail"`
	CalendarEvents struct {
		ExDividendDate rawDate `json:"exDividendDate"`
		DividendDate   rawDate `json:"dividendDate"`
	} `json:"calendarEvents"`
	Price struct {
		Currency string `json:"currency"`
	} `json:"price"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
		} `json:"result"`
	} `json:"chart"`
}

// GetQuoteFacts returns dividend facts for a symbol, or (nil, nil) when Yahoo
// has no data for it. Payment history is fetched best-effort; its absence
// never fails the whole lookup.
func (c *Client) GetQuoteFacts(ctx context.Context, symbol string) (*models.QuoteFacts, error) {
	summary, ok, err := c.getQuoteSummary(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	facts := &models.QuoteFacts{
		Symbol:  symbol,
		Updated: c.now(),
	}

	detail := summary.SummaryDetail
	facts.Currency = detail.Currency
	if facts.Currency == "" {
		facts.Currency = summary.Price.Currency
	}
	facts.TrailingRate = detail.DividendRate.Raw
	if detail.DividendYield.Raw != nil {
		// Yahoo reports yield as a fraction; callers work in percent
		pct := *detail.DividendYield.Raw * 100
		facts.TrailingYield = &pct
	}

	facts.NextExDate = summary.CalendarEvents.ExDividendDate.time()
	if facts.NextExDate == nil {
		facts.NextExDate = detail.ExDividendDate.time()
	}
	facts.NextPayDate = summary.CalendarEvents.DividendDate.time()

	history, err := c.getDividendHistory(ctx, symbol)
	if err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("Dividend history unavailable")
	} else if len(history) > 0 {
		facts.History = history
		// The latest actual payment stands in for the declared next amount
		amount := history[len(history)-1].Amount
		facts.NextAmount = &amount
	}

	return facts, nil
}

// getQuoteSummary fetches the dividend modules of the quote summary. The
// second return value is false when Yahoo has no data for the symbol.
func (c *Client) getQuoteSummary(ctx context.Context, symbol string) (*quoteSummaryResult, bool, error) {
	params := url.Values{}
	params.Set("modules", "summaryDetail,calendarEvents,price")
	path := fmt.Sprintf("/v10/finance/quoteSummary/%s", url.PathEscape(symbol))

	var resp quoteSummaryResponse
	notFound, err := c.get(ctx, symbol, path, params, &resp)
	if err != nil {
		return nil, false, err
	}
	if notFound || len(resp.QuoteSummary.Result) == 0 {
		return nil, false, nil
	}
	return &resp.QuoteSummary.Result[0], true, nil
}

// getDividendHistory fetches past dividend events and keeps the most recent
// payments, oldest first.
func (c *Client) getDividendHistory(ctx context.Context, symbol string) ([]models.PaymentRecord, error) {
	params := url.Values{}
	params.Set("range", historyRange)
	params.Set("interval", "3mo")
	params.Set("events", "div")
	path := fmt.Sprintf("/v8/finance/chart/%s", url.PathEscape(symbol))

	var resp chartResponse
	notFound, err := c.get(ctx, symbol, path, params, &resp)
	if err != nil {
		return nil, err
	}
	if notFound || len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	dividends := resp.Chart.Result[0].Events.Dividends
	records := make([]models.PaymentRecord, 0, len(dividends))
	for _, d := range dividends {
		records = append(records, models.PaymentRecord{
			Date:   time.Unix(d.Date, 0).UTC(),
			Amount: d.Amount,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })

	if len(records) > historyDepth {
		records = records[len(records)-historyDepth:]
	}
	return records, nil
}

// get performs a rate-limited GET. The first return value is true when the
// symbol is unknown to Yahoo (HTTP 404).
func (c *Client) get(ctx context.Context, symbol, path string, params url.Values, result interface{}) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	// Yahoo rejects the default Go user agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; divfolio/1.0)")

	c.logger.Debug().Str("symbol", symbol).Str("path", path).Msg("Yahoo Finance request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return true, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Symbol:     symbol,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

// Ensure Client implements QuoteClient
var _ interfaces.QuoteClient = (*Client)(nil)
