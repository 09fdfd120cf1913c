package markets

import "strings"

// DefaultSymbols are the dashboard series when none are requested.
const DefaultSymbols = "RBRTE,RWTC"

// seriesAliases maps common commodity names to EIA spot price series ids.
// RBRTE is Europe Brent Spot, RWTC is Cushing WTI Spot.
var seriesAliases = map[string]string{
	"BRENT":   "RBRTE",
	"BRET":    "RBRTE",
	"BREN":    "RBRTE",
	"RBRTE":   "RBRTE",
	"WTI":     "RWTC",
	"WTIC":    "RWTC",
	"WTICUSH": "RWTC",
	"RWTC":    "RWTC",
}

// NormalizeSeriesID maps user input ("brent", "EIA.RBRTE", "wti") to an EIA
// series id. Unknown ids pass through upper-cased.
func NormalizeSeriesID(sym string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	if s == "" {
		return ""
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	if id, ok := seriesAliases[s]; ok {
		return id
	}
	return s
}

// SplitSymbols splits a comma separated list into trimmed, non-empty entries.
func SplitSymbols(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
