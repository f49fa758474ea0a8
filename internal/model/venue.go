package model

// Venue identifies a connected perpetual-futures venue. The set is
// closed and ordered: the ordering is used as the final tie-break when
// two venues quote an identical best bid or ask (see marketdata).
type Venue string

const (
	VenueHyperliquid Venue = "hyperliquid"
	VenueLighter     Venue = "lighter"
	VenueTradeXYZ    Venue = "tradexyz"
)

// Venues lists the closed venue set in tie-break order.
var Venues = []Venue{VenueHyperliquid, VenueLighter, VenueTradeXYZ}

// Ordinal returns the venue's position in the closed set, used as the
// last tie-break for best-bid/best-ask selection. Unknown venues sort
// last.
func (v Venue) Ordinal() int {
	for i, known := range Venues {
		if known == v {
			return i
		}
	}
	return len(Venues)
}

func (v Venue) Valid() bool {
	for _, known := range Venues {
		if known == v {
			return true
		}
	}
	return false
}

func (v Venue) String() string { return string(v) }

// Symbol is an opaque venue-local instrument identifier, e.g.
// "BTC-PERP". Venues may disagree on spelling; the owning adapter is
// authoritative for normalization to/from this form.
type Symbol string
