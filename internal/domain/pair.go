package domain

import "strings"

// Venue names as they appear in decisions, results and log events.
const (
	VenueJupiter = "jupiter"
	VenueGMGN    = "gmgn"
)

// TradingPair is an ordered pair of token mint addresses. Base is what the
// bot accumulates between legs; Quote is the asset it is priced in.
type TradingPair struct {
	Name  string `json:"name"`
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Key returns a stable identifier usable as a map or lock key.
func (p TradingPair) Key() string {
	if p.Name != "" {
		return strings.ToLower(p.Name)
	}
	return p.Base + "-" + p.Quote
}

// String implements fmt.Stringer.
func (p TradingPair) String() string {
	if p.Name != "" {
		return p.Name
	}
	return shortMint(p.Base) + "/" + shortMint(p.Quote)
}

func shortMint(m string) string {
	if len(m) <= 8 {
		return m
	}
	return m[:4] + ".." + m[len(m)-4:]
}
