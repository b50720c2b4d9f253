// Package portfolio assembles enriched, currency-normalized portfolio
// snapshots from raw broker positions.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
	"github.com/tobyrouse/divfolio/internal/models"
	"github.com/tobyrouse/divfolio/internal/services/currency"
	"github.com/tobyrouse/divfolio/internal/services/dividend"
	"github.com/tobyrouse/divfolio/internal/symbols"
)

// ErrNoPositions is returned when the broker reports an empty portfolio.
// Reported, not fatal: the previous snapshot stays authoritative.
var ErrNoPositions = errors.New("no positions are available")

// Service implements PortfolioService. One Assemble call produces one
// self-consistent snapshot; the service itself keeps no cross-cycle state.
type Service struct {
	resolver  *symbols.Resolver
	converter interfaces.CurrencyService
	quotes    interfaces.QuoteClient
	logger    *common.Logger
	now       func() time.Time // injectable clock for testing
}

// NewService creates a portfolio assembler. The converter's base currency is
// the currency all price and value fields are normalized to.
func NewService(
	resolver *symbols.Resolver,
	converter interfaces.CurrencyService,
	quotes interfaces.QuoteClient,
	logger *common.Logger,
) *Service {
	return &Service{
		resolver:  resolver,
		converter: converter,
		quotes:    quotes,
		logger:    logger,
		now:       time.Now,
	}
}

// Assemble builds one enriched snapshot from raw positions and instrument
// metadata. Per-position enrichment failures (unsupported currency, missing
// quote facts) degrade only that position and never abort the rest.
func (s *Service) Assemble(ctx context.Context, raw []models.RawPosition, meta []models.InstrumentMeta) (*models.Portfolio, error) {
	if len(raw) == 0 {
		return nil, ErrNoPositions
	}

	currencies := make(map[string]string, len(meta))
	for _, m := range meta {
		currencies[m.Ticker] = m.CurrencyCode
	}

	base := s.converter.Base()
	positions := make([]models.Position, 0, len(raw))
	for _, r := range raw {
		positions = append(positions, s.buildPosition(ctx, r, currencies, base))
	}

	pf := &models.Portfolio{
		Positions:   positions,
		LastUpdated: s.now(),
	}
	pf.Recalculate()
	return pf, nil
}

// buildPosition resolves, normalizes and enriches one raw position.
func (s *Service) buildPosition(ctx context.Context, raw models.RawPosition, currencies map[string]string, base string) models.Position {
	res := s.resolver.Resolve(raw.Ticker)

	// Metadata currency wins; the broker-reported code is the fallback
	code := currencies[raw.Ticker]
	if code == "" {
		code = raw.Currency
	}

	pos := models.Position{
		Ticker:         raw.Ticker,
		Symbol:         res.Symbol,
		Quantity:       raw.Quantity,
		AveragePrice:   raw.AveragePrice,
		CurrentPrice:   raw.CurrentPrice,
		Currency:       code,
		WithholdingTax: float64(res.WithholdingTax),
	}

	factsFactor := s.normalize(ctx, &pos, raw.FXPPL, base)
	s.enrich(ctx, &pos, factsFactor, base)
	return pos
}

// normalize converts the position's price fields into the base currency and
// derives P/L. It returns the factor that converts quote-currency per-share
// amounts into base, for reuse on the dividend facts.
func (s *Service) normalize(ctx context.Context, pos *models.Position, fxPPL float64, base string) float64 {
	factsFactor := 1.0
	converted := false

	// Minor-unit variants scale by a fixed factor, not a market rate
	code := pos.Currency
	if major, scale, ok := currency.MinorUnit(code); ok {
		pos.AveragePrice /= scale
		pos.CurrentPrice /= scale
		code = major
		pos.Currency = code
	}

	if !strings.EqualFold(code, base) {
		factor, err := s.converter.ConversionFactorAllowStale(ctx, code, base)
		if err != nil {
			// Unsupported currency: report it and keep the position unconverted
			s.logger.Warn().
				Str("ticker", pos.Ticker).
				Str("currency", pos.Currency).
				Err(err).
				Msg("Currency not supported, position left unconverted")
			s.finalize(pos, 0, false)
			return factsFactor
		}
		pos.AveragePrice *= factor
		pos.CurrentPrice *= factor
		factsFactor = factor
		code = base
		converted = true
	}
	pos.Currency = code

	s.finalize(pos, fxPPL, converted)
	return factsFactor
}

// finalize computes value and P/L from the normalized prices. The broker's FX
// P/L component is added only when a market-rate conversion happened and the
// base P/L is non-zero.
func (s *Service) finalize(pos *models.Position, fxPPL float64, converted bool) {
	pos.Value = pos.Quantity * pos.CurrentPrice
	pos.PPL = pos.Quantity * (pos.CurrentPrice - pos.AveragePrice)

	var basePct float64
	if pos.AveragePrice != 0 {
		basePct = (pos.CurrentPrice/pos.AveragePrice - 1) * 100
	}
	pos.PPLPercent = basePct

	if converted && basePct != 0 && fxPPL != 0 {
		cost := pos.Quantity * pos.AveragePrice
		if cost != 0 {
			fxPct := fxPPL / cost * 100
			pos.FXPPLPercent = fxPct
			pos.PPLPercent = basePct + fxPct
			pos.PPL += fxPPL
		}
	}
}

// enrich looks up dividend facts for the position's symbol and delegates to
// the analytics engine. A missing lookup leaves the dividend fields unset.
func (s *Service) enrich(ctx context.Context, pos *models.Position, factsFactor float64, base string) {
	facts, err := s.quotes.GetQuoteFacts(ctx, pos.Symbol)
	if err != nil {
		s.logger.Warn().
			Str("ticker", pos.Ticker).
			Str("symbol", pos.Symbol).
			Err(err).
			Msg("Quote facts lookup failed, dividend fields left unset")
		return
	}
	if facts == nil {
		s.logger.Debug().
			Str("symbol", pos.Symbol).
			Msg("No quote facts for symbol")
		return
	}

	normalized, err := s.normalizeFacts(ctx, *facts, factsFactor, base)
	if err != nil {
		s.logger.Warn().
			Str("symbol", pos.Symbol).
			Err(err).
			Msg("Quote facts currency not supported, dividend fields left unset")
		return
	}

	pos.DividendInfo, pos.DividendPrediction = dividend.Compute(*pos, normalized)
}

// normalizeFacts converts the facts' monetary per-share figures into the base
// currency. Yields are percentages and pass through unchanged.
func (s *Service) normalizeFacts(ctx context.Context, facts models.QuoteFacts, positionFactor float64, base string) (*models.QuoteFacts, error) {
	factor := positionFactor
	if facts.Currency != "" {
		code := facts.Currency
		scale := 1.0
		if major, sc, ok := currency.MinorUnit(code); ok {
			code, scale = major, sc
		}
		f, err := s.converter.ConversionFactorAllowStale(ctx, code, base)
		if err != nil {
			return nil, fmt.Errorf("converting facts from %s: %w", facts.Currency, err)
		}
		factor = f / scale
	}

	if factor == 1.0 {
		return &facts, nil
	}

	if facts.TrailingRate != nil {
		v := *facts.TrailingRate * factor
		facts.TrailingRate = &v
	}
	if facts.NextAmount != nil {
		v := *facts.NextAmount * factor
		facts.NextAmount = &v
	}
	if len(facts.History) > 0 {
		scaled := make([]models.PaymentRecord, len(facts.History))
		for i, rec := range facts.History {
			rec.Amount *= factor
			scaled[i] = rec
		}
		facts.History = scaled
	}
	return &facts, nil
}

// Ensure Service implements PortfolioService
var _ interfaces.PortfolioService = (*Service)(nil)
