package schema

import "fmt"

// SecurityID is the numeric identifier for a security.
type SecurityID uint32

// Security describes a tradable instrument and the time zones its data
// and exchange operate in. Time zones are IANA names; loading them is the
// caller's concern.
type Security struct {
	ID            SecurityID
	Ticker        string
	ExchangeTZ    string
	DataTZ        string
	PriceScale    int
	QuantityScale int
}

// Registry stores security mappings in a compact form.
type Registry struct {
	securities []Security
	byTicker   map[string]SecurityID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTicker: make(map[string]SecurityID),
	}
}

// Add registers a new security and returns its ID.
func (r *Registry) Add(sec Security) (SecurityID, error) {
	if sec.Ticker == "" {
		return 0, fmt.Errorf("security ticker is empty")
	}
	if sec.ExchangeTZ == "" {
		return 0, fmt.Errorf("security exchange time zone is empty: %s", sec.Ticker)
	}
	if sec.DataTZ == "" {
		sec.DataTZ = sec.ExchangeTZ
	}
	if sec.PriceScale < 0 || sec.QuantityScale < 0 {
		return 0, fmt.Errorf("security scale must be >= 0: %s", sec.Ticker)
	}
	if id, ok := r.byTicker[sec.Ticker]; ok {
		return id, fmt.Errorf("security already exists: %s", sec.Ticker)
	}
	sec.ID = SecurityID(len(r.securities) + 1)
	r.securities = append(r.securities, sec)
	r.byTicker[sec.Ticker] = sec.ID
	return sec.ID, nil
}

// Security returns the security by ID.
func (r *Registry) Security(id SecurityID) (Security, bool) {
	if id == 0 || int(id) > len(r.securities) {
		return Security{}, false
	}
	return r.securities[id-1], true
}

// ByTicker returns the security for a ticker.
func (r *Registry) ByTicker(ticker string) (Security, bool) {
	id, ok := r.byTicker[ticker]
	if !ok {
		return Security{}, false
	}
	return r.Security(id)
}

// Count returns the number of securities in the registry.
func (r *Registry) Count() int {
	return len(r.securities)
}

// At returns the security by zero-based index.
func (r *Registry) At(index int) (Security, bool) {
	if index < 0 || index >= len(r.securities) {
		return Security{}, false
	}
	return r.securities[index], true
}
