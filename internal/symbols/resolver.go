// Package symbols maps broker instrument tickers to canonical quote symbols
// and withholding tax rates.
package symbols

import "strings"

// DefaultWithholdingTax is assumed for instruments not in the override table.
// Unknown instruments are treated as taxable.
const DefaultWithholdingTax = 15

// Resolution is the outcome of resolving one broker ticker.
type Resolution struct {
	Symbol         string
	WithholdingTax int // percent, 0-100
}

// exchangeMarkers maps a trailing lowercase run on an otherwise uppercase
// root to the quote-symbol exchange suffix it denotes.
var exchangeMarkers = map[string]string{
	"l": ".L", // London Stock Exchange
}

// builtin covers instruments whose quote symbol cannot be derived from the
// broker ticker, plus common UK listings where no withholding tax applies.
var builtin = map[string]Resolution{
	"FB_US_EQ":    {Symbol: "META", WithholdingTax: 15},
	"VACQ_US_EQ":  {Symbol: "RKLB", WithholdingTax: 15},
	"BRK_B_US_EQ": {Symbol: "BRK-B", WithholdingTax: 15},
	"BTl_EQ":      {Symbol: "BT-A.L", WithholdingTax: 0},
	"LLOYl_EQ":    {Symbol: "LLOY.L", WithholdingTax: 0},
	"LGENl_EQ":    {Symbol: "LGEN.L", WithholdingTax: 0},
	"SHELl_EQ":    {Symbol: "SHEL.L", WithholdingTax: 0},
	"BPl_EQ":      {Symbol: "BP.L", WithholdingTax: 0},
	"HSBAl_EQ":    {Symbol: "HSBA.L", WithholdingTax: 0},
	"BATSl_EQ":    {Symbol: "BATS.L", WithholdingTax: 0},
	"BARCl_EQ":    {Symbol: "BARC.L", WithholdingTax: 0},
	"IMBl_EQ":     {Symbol: "IMB.L", WithholdingTax: 0},
	"NGl_EQ":      {Symbol: "NG.L", WithholdingTax: 0},
	"RRl_EQ":      {Symbol: "RR.L", WithholdingTax: 0},
	"RIOl_EQ":     {Symbol: "RIO.L", WithholdingTax: 0},
	"VHYLl_EQ":    {Symbol: "VHYL.L", WithholdingTax: 0},
	"VUKGl_EQ":    {Symbol: "VUKG.L", WithholdingTax: 0},
	"VWRPl_EQ":    {Symbol: "VWRP.L", WithholdingTax: 0},
	"IUKDl_EQ":    {Symbol: "IUKD.L", WithholdingTax: 0},
}

// Resolver holds the immutable lookup table. Built once at startup; Resolve
// performs no I/O and no mutation.
type Resolver struct {
	table map[string]Resolution
}

// NewResolver builds a resolver from the built-in table merged with
// config-supplied overrides. Overrides win on conflict.
func NewResolver(overrides map[string]Resolution) *Resolver {
	table := make(map[string]Resolution, len(builtin)+len(overrides))
	for ticker, res := range builtin {
		table[ticker] = res
	}
	for ticker, res := range overrides {
		table[ticker] = res
	}
	return &Resolver{table: table}
}

// Resolve maps a broker ticker to its quote symbol and withholding tax rate.
// Tickers not in the table fall back to heuristic derivation with the default
// tax rate.
func (r *Resolver) Resolve(brokerTicker string) Resolution {
	if res, ok := r.table[brokerTicker]; ok {
		return res
	}

	return Resolution{
		Symbol:         deriveSymbol(brokerTicker),
		WithholdingTax: DefaultWithholdingTax,
	}
}

// deriveSymbol strips the broker's ticker decorations: everything after the
// first underscore goes, then a trailing run of lowercase letters. When the
// lowercase run is a known exchange marker the matching suffix is appended
// (e.g. "ULVRl" -> "ULVR.L").
func deriveSymbol(ticker string) string {
	base := ticker
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}

	cut := len(base)
	for cut > 0 && base[cut-1] >= 'a' && base[cut-1] <= 'z' {
		cut--
	}
	root, run := base[:cut], base[cut:]
	if root == "" {
		return base
	}

	if suffix, ok := exchangeMarkers[run]; ok {
		return root + suffix
	}
	return root
}
