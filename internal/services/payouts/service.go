// Package payouts retrieves and summarizes historical dividend payments from
// the broker's history export.
package payouts

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
	"github.com/tobyrouse/divfolio/internal/models"
)

// exportTimeLayout is the timestamp format in the broker's export CSV.
const exportTimeLayout = "02/01/2006 15:04"

// exportWindow is how far back the payout export reaches.
const exportWindow = 365 * 24 * time.Hour

// Service implements PayoutService. Finished exports are cached; the broker
// is only asked for a new one once the cache ages out.
type Service struct {
	broker interfaces.BrokerClient
	logger *common.Logger
	now    func() time.Time

	pollInterval time.Duration
	maxPolls     int

	mu      sync.Mutex
	cached  *models.PayoutSummary
	fetched time.Time
}

// NewService creates a payout service.
func NewService(broker interfaces.BrokerClient, logger *common.Logger) *Service {
	return &Service{
		broker:       broker,
		logger:       logger,
		now:          time.Now,
		pollInterval: 10 * time.Second,
		maxPolls:     30,
	}
}

// GetPayoutSummary returns the parsed payout history, requesting a fresh
// export from the broker when the cached one has aged out.
func (s *Service) GetPayoutSummary(ctx context.Context) (*models.PayoutSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && common.IsFresh(s.fetched, common.FreshnessExport) {
		return s.cached, nil
	}

	data, err := s.downloadExport(ctx)
	if err != nil {
		// Stale-but-valid beats nothing
		if s.cached != nil {
			s.logger.Warn().Err(err).Msg("Export refresh failed, serving cached payout history")
			return s.cached, nil
		}
		return nil, err
	}

	records, err := ParseExportCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parsing export: %w", err)
	}

	s.cached = Summarize(records)
	s.fetched = s.now()
	return s.cached, nil
}

// downloadExport runs the request/poll/download flow against the broker.
func (s *Service) downloadExport(ctx context.Context) ([]byte, error) {
	to := s.now()
	from := to.Add(-exportWindow)

	reportID, err := s.broker.RequestExport(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("requesting export: %w", err)
	}

	s.logger.Info().Int64("report_id", reportID).Msg("Dividend export requested")

	for attempt := 1; attempt <= s.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		status, err := s.broker.GetExportStatus(ctx, reportID)
		if err != nil {
			return nil, fmt.Errorf("polling export %d: %w", reportID, err)
		}
		if status == nil {
			continue
		}

		switch status.Status {
		case models.ExportStatusFinished:
			if status.DownloadLink == "" {
				return nil, fmt.Errorf("export %d finished without a download link", reportID)
			}
			return s.broker.DownloadExport(ctx, status.DownloadLink)
		case models.ExportStatusFailed, models.ExportStatusCanceled:
			return nil, fmt.Errorf("export %d ended as %s", reportID, status.Status)
		}
	}

	return nil, fmt.Errorf("export %d not ready after %d attempts", reportID, s.maxPolls)
}

// ParseExportCSV parses dividend rows from the broker's history export.
// Monetary columns are parsed as exact decimals; rows that don't parse are
// skipped rather than failing the whole export.
func ParseExportCSV(data []byte) ([]models.PayoutRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	records := make([]models.PayoutRecord, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 13 {
			continue // header or malformed row
		}

		date, err := time.Parse(exportTimeLayout, row[1])
		if err != nil {
			continue
		}

		quantity, err := decimal.NewFromString(row[5])
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(row[6])
		if err != nil {
			continue
		}
		total, err := decimal.NewFromString(row[9])
		if err != nil {
			continue
		}
		wht := decimal.Zero
		if row[11] != "" {
			if w, err := decimal.NewFromString(row[11]); err == nil {
				wht = w
			}
		}

		records = append(records, models.PayoutRecord{
			Date:           date,
			ISIN:           row[2],
			Ticker:         row[3],
			Name:           row[4],
			Quantity:       quantity.InexactFloat64(),
			PricePerShare:  price.InexactFloat64(),
			Currency:       row[7],
			Total:          total.InexactFloat64(),
			WithholdingTax: wht.InexactFloat64(),
			NetAmount:      total.Sub(wht).InexactFloat64(),
		})
	}

	return records, nil
}

// Summarize rolls up payout records: grand totals and a per-ticker breakdown.
// Sums are carried as decimals so repeated small amounts don't drift.
func Summarize(records []models.PayoutRecord) *models.PayoutSummary {
	sorted := append([]models.PayoutRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})

	totalDividends := decimal.Zero
	totalWHT := decimal.Zero
	type tickerSum struct {
		total decimal.Decimal
		wht   decimal.Decimal
	}
	byTicker := make(map[string]*tickerSum)

	for _, rec := range sorted {
		total := decimal.NewFromFloat(rec.Total)
		wht := decimal.NewFromFloat(rec.WithholdingTax)

		totalDividends = totalDividends.Add(total)
		totalWHT = totalWHT.Add(wht)

		sum, ok := byTicker[rec.Ticker]
		if !ok {
			sum = &tickerSum{}
			byTicker[rec.Ticker] = sum
		}
		sum.total = sum.total.Add(total)
		sum.wht = sum.wht.Add(wht)
	}

	tickers := make([]models.TickerPayouts, 0, len(byTicker))
	for ticker, sum := range byTicker {
		tickers = append(tickers, models.TickerPayouts{
			Ticker: ticker,
			Total:  sum.total.InexactFloat64(),
			WHT:    sum.wht.InexactFloat64(),
			Net:    sum.total.Sub(sum.wht).InexactFloat64(),
		})
	}
	sort.Slice(tickers, func(i, j int) bool {
		if tickers[i].Total != tickers[j].Total {
			return tickers[i].Total > tickers[j].Total
		}
		return tickers[i].Ticker < tickers[j].Ticker
	})

	return &models.PayoutSummary{
		Records:        sorted,
		TotalDividends: totalDividends.InexactFloat64(),
		TotalWHT:       totalWHT.InexactFloat64(),
		TotalNet:       totalDividends.Sub(totalWHT).InexactFloat64(),
		ByTicker:       tickers,
	}
}

// Ensure Service implements PayoutService
var _ interfaces.PayoutService = (*Service)(nil)
