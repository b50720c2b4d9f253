package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/models"
	"github.com/tobyrouse/divfolio/internal/services/portfolio"
)

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	snap := s.snapshots.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"mode":         s.settings.Current().Mode,
		"update_count": snap.UpdateCount,
		"last_updated": snap.LastUpdated,
		"positions":    len(snap.Positions),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GitCommit,
	})
}

// handlePortfolio handles GET /api/portfolio.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, s.snapshots.Snapshot())
}

// dividendDetails collects the per-position dividend summaries of a snapshot.
func dividendDetails(snap models.Portfolio) []models.DividendInfo {
	details := make([]models.DividendInfo, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		if pos.DividendInfo != nil {
			details = append(details, *pos.DividendInfo)
		}
	}
	return details
}

// handleDividends handles GET /api/dividends.
func (s *Server) handleDividends(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	summary := models.DividendSummary{Details: dividendDetails(s.snapshots.Snapshot())}
	for _, d := range summary.Details {
		summary.TotalAnnualDividend += d.AnnualDividend
		summary.TotalAnnualWHT += d.AnnualWHT
		summary.TotalIncomeAfterWHT += d.AnnualIncomeAfterWHT
	}

	WriteJSON(w, http.StatusOK, summary)
}

// handleDividendsChart handles GET /api/dividends/chart.
func (s *Server) handleDividendsChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	details := dividendDetails(s.snapshots.Snapshot())
	if len(details) == 0 {
		WriteError(w, http.StatusNotFound, "No dividend-paying positions to chart")
		return
	}

	png, err := portfolio.RenderIncomeChart(details)
	if err != nil {
		s.logger.Error().Err(err).Msg("Rendering dividend chart failed")
		WriteError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handlePayouts handles GET /api/payouts.
func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	summary, err := s.payouts.GetPayoutSummary(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Fetching payout summary failed")
		WriteError(w, http.StatusBadGateway, "Failed to fetch payout history")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// handleRefresh handles POST /api/refresh. The refresh itself runs in the
// scheduler; the request only queues it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	s.snapshots.TriggerRefresh()
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// settingsResponse is the wire form of the runtime settings. The API key is
// never echoed back.
type settingsResponse struct {
	Mode              string `json:"mode"`
	APIKeySet         bool   `json:"api_key_set"`
	ReferenceCurrency string `json:"reference_currency"`
	RefreshInterval   string `json:"refresh_interval"`
}

// settingsRequest is a partial settings update; nil fields stay unchanged.
type settingsRequest struct {
	Mode              *string `json:"mode"`
	APIKey            *string `json:"api_key"`
	ReferenceCurrency *string `json:"reference_currency"`
	RefreshInterval   *string `json:"refresh_interval"`
}

func toSettingsResponse(s common.Settings) settingsResponse {
	return settingsResponse{
		Mode:              s.Mode,
		APIKeySet:         s.APIKey != "",
		ReferenceCurrency: s.ReferenceCurrency,
		RefreshInterval:   s.RefreshInterval.String(),
	}
}

// handleSettings handles GET and PUT /api/settings.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, toSettingsResponse(s.settings.Current()))
	case http.MethodPut:
		s.handleSettingsUpdate(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut)
	}
}

func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	next := s.settings.Current()

	if req.Mode != nil {
		mode := strings.ToLower(strings.TrimSpace(*req.Mode))
		if mode != common.ModeLive && mode != common.ModeDemo {
			WriteError(w, http.StatusBadRequest, "Mode must be \"live\" or \"demo\"")
			return
		}
		next.Mode = mode
	}

	if req.APIKey != nil {
		next.APIKey = strings.TrimSpace(*req.APIKey)
	}

	if req.ReferenceCurrency != nil {
		cur := strings.ToUpper(strings.TrimSpace(*req.ReferenceCurrency))
		if !isCurrencyCode(cur) {
			WriteError(w, http.StatusBadRequest, "Reference currency must be a three-letter ISO code")
			return
		}
		next.ReferenceCurrency = cur
	}

	if req.RefreshInterval != nil {
		d, err := time.ParseDuration(*req.RefreshInterval)
		if err != nil || d < 0 {
			WriteError(w, http.StatusBadRequest, "Refresh interval must be a non-negative duration, e.g. \"30m\" or \"0\"")
			return
		}
		next.RefreshInterval = d
	}

	s.settings.Update(next)
	s.logger.Info().
		Str("mode", next.Mode).
		Str("reference_currency", next.ReferenceCurrency).
		Dur("refresh_interval", next.RefreshInterval).
		Msg("Settings updated")

	// The new settings take effect on the next cycle; queue one now
	s.snapshots.TriggerRefresh()

	WriteJSON(w, http.StatusOK, toSettingsResponse(next))
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
