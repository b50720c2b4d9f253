package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const summaryBody = `{
	"quoteSummary": {
		"result": [{
			"summaryDetail": {
				"dividendRate": {"raw": 1.00, "fmt": "1.00"},
				"dividendYield": {"raw": 0.0044, "fmt": "0.44%"},
				"currency": "USD",
				"exDividendDate": {"raw": 1763942400}
			},
			"calendarEvents": {
				"exDividendDate": {"raw": 1763942400},
				"dividendDate": {"raw": 1765238400}
			},
			"price": {"currency": "USD"}
		}],
		"error": null
	}
}`

const chartBody = `{
	"chart": {
		"result": [{
			"events": {
				"dividends": {
					"1708000000": {"amount": 0.24, "date": 1708000000},
					"1716000000": {"amount": 0.25, "date": 1716000000},
					"1724000000": {"amount": 0.25, "date": 1724000000},
					"1732000000": {"amount": 0.25, "date": 1732000000},
					"1740000000": {"amount": 0.26, "date": 1740000000}
				}
			}
		}]
	}
}`

func newQuoteServer(t *testing.T, summary, chart string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/"):
			if got := r.URL.Query().Get("modules"); !strings.Contains(got, "summaryDetail") {
				t.Errorf("modules = %q, want summaryDetail included", got)
			}
			w.Write([]byte(summary))
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
			if got := r.URL.Query().Get("events"); got != "div" {
				t.Errorf("events = %q, want div", got)
			}
			w.Write([]byte(chart))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func TestGetQuoteFacts(t *testing.T) {
	srv := newQuoteServer(t, summaryBody, chartBody)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(100))
	facts, err := client.GetQuoteFacts(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuoteFacts returned error: %v", err)
	}
	if facts == nil {
		t.Fatal("expected facts, got nil")
	}

	if facts.Symbol != "AAPL" || facts.Currency != "USD" {
		t.Errorf("symbol/currency = %s/%s", facts.Symbol, facts.Currency)
	}
	if facts.TrailingRate == nil || *facts.TrailingRate != 1.00 {
		t.Errorf("trailing rate = %v, want 1.00", facts.TrailingRate)
	}
	if facts.TrailingYield == nil || *facts.TrailingYield != 0.44 {
		t.Errorf("trailing yield = %v, want 0.44 percent", facts.TrailingYield)
	}
	if facts.NextExDate == nil || facts.NextExDate.Unix() != 1763942400 {
		t.Errorf("next ex-date = %v", facts.NextExDate)
	}
	if facts.NextPayDate == nil || facts.NextPayDate.Unix() != 1765238400 {
		t.Errorf("next pay date = %v", facts.NextPayDate)
	}

	// History keeps the four most recent events, oldest first
	if len(facts.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(facts.History))
	}
	if facts.History[0].Amount != 0.25 || facts.History[3].Amount != 0.26 {
		t.Errorf("history = %+v", facts.History)
	}
	for i := 1; i < len(facts.History); i++ {
		if facts.History[i].Date.Before(facts.History[i-1].Date) {
			t.Errorf("history out of order at %d", i)
		}
	}

	// The latest actual payment stands in for the declared next amount
	if facts.NextAmount == nil || *facts.NextAmount != 0.26 {
		t.Errorf("next amount = %v, want 0.26", facts.NextAmount)
	}
}

func TestGetQuoteFacts_UnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(100))
	facts, err := client.GetQuoteFacts(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("unknown symbol should not error, got %v", err)
	}
	if facts != nil {
		t.Fatalf("expected nil facts for unknown symbol, got %+v", facts)
	}
}

func TestGetQuoteFacts_NoDividendData(t *testing.T) {
	empty := `{
		"quoteSummary": {
			"result": [{
				"summaryDetail": {"currency": "USD"},
				"calendarEvents": {},
				"price": {"currency": "USD"}
			}],
			"error": null
		}
	}`
	noEvents := `{"chart": {"result": [{"events": {}}]}}`

	srv := newQuoteServer(t, empty, noEvents)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(100))
	facts, err := client.GetQuoteFacts(context.Background(), "GROW")
	if err != nil {
		t.Fatalf("GetQuoteFacts returned error: %v", err)
	}
	if facts == nil {
		t.Fatal("expected facts for a known non-payer")
	}

	// Absent figures stay nil rather than zero
	if facts.TrailingRate != nil || facts.TrailingYield != nil || facts.NextAmount != nil {
		t.Errorf("absent figures not nil: %+v", facts)
	}
	if facts.NextExDate != nil || facts.NextPayDate != nil || len(facts.History) != 0 {
		t.Errorf("absent dates/history not empty: %+v", facts)
	}
}

func TestGetQuoteFacts_HistoryFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/") {
			w.Write([]byte(summaryBody))
			return
		}
		http.Error(w, "upstream error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(100))
	facts, err := client.GetQuoteFacts(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("history failure should not fail the lookup: %v", err)
	}
	if facts == nil || facts.TrailingRate == nil {
		t.Fatal("summary facts missing despite history failure")
	}
	if len(facts.History) != 0 || facts.NextAmount != nil {
		t.Errorf("history fields set despite failed fetch: %+v", facts)
	}
}

func TestQuoteFactsUpdatedTimestamp(t *testing.T) {
	srv := newQuoteServer(t, summaryBody, chartBody)
	defer srv.Close()

	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(100))
	client.now = func() time.Time { return fixed }

	facts, err := client.GetQuoteFacts(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuoteFacts returned error: %v", err)
	}
	if !facts.Updated.Equal(fixed) {
		t.Errorf("updated = %v, want %v", facts.Updated, fixed)
	}
}
