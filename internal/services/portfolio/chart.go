package portfolio

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/tobyrouse/divfolio/internal/models"
)

// RenderIncomeChart renders a PNG bar chart of annual after-tax dividend
// income per position. Returns raw PNG bytes.
func RenderIncomeChart(details []models.DividendInfo) ([]byte, error) {
	if len(details) == 0 {
		return nil, fmt.Errorf("no dividend-paying positions to chart")
	}

	bars := make([]chart.Value, 0, len(details))
	for _, d := range details {
		bars = append(bars, chart.Value{
			Label: d.Symbol,
			Value: d.AnnualIncomeAfterWHT,
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex("2563eb"), // blue-600
				StrokeColor: drawing.ColorFromHex("1e40af"), // blue-800
				StrokeWidth: 1,
			},
		})
	}

	graph := chart.BarChart{
		Title:    "Annual Dividend Income (after WHT)",
		Width:    80*len(bars) + 120,
		Height:   400,
		BarWidth: 48,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
