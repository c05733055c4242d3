// Package ops loads and resolves the JSON run configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/titisda/trading-algorithum/internal/feed"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/session"
)

// Source types selectable in the config file.
const (
	SourceBarLog    = "barlog"
	SourcePostgres  = "postgres"
	SourceSynthetic = "synthetic"
)

const defaultEventQueueSize = 256

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Securities    []SecurityConfig     `json:"securities"`
	Window        WindowConfig         `json:"window"`
	Subscriptions []SubscriptionConfig `json:"subscriptions"`
	Source        SourceConfig         `json:"source"`
	Events        EventsConfig         `json:"events"`
}

// SecurityConfig describes one registry entry.
type SecurityConfig struct {
	Ticker        string `json:"ticker"`
	ExchangeTZ    string `json:"exchangeTz"`
	DataTZ        string `json:"dataTz"`
	PriceScale    int    `json:"priceScale"`
	QuantityScale int    `json:"quantityScale"`
	// Session selects the tradable-hours template: "equity" or "always".
	// Empty means always open.
	Session string `json:"session"`
}

// WindowConfig bounds the query in UTC, RFC 3339.
type WindowConfig struct {
	StartUTC string `json:"startUtc"`
	EndUTC   string `json:"endUtc"`
}

// SubscriptionConfig describes one requested stream.
type SubscriptionConfig struct {
	Ticker        string          `json:"ticker"`
	Resolution    string          `json:"resolution"`
	Kind          string          `json:"kind"`
	FillForward   bool            `json:"fillForward"`
	ExtendedHours bool            `json:"extendedHours"`
	Normalization string          `json:"normalization"`
	PriceFactor   decimal.Decimal `json:"priceFactor"`
}

// SourceConfig selects and parameterizes the record producer.
type SourceConfig struct {
	Type      string          `json:"type"`
	Path      string          `json:"path"`
	Postgres  PostgresConfig  `json:"postgres"`
	Synthetic SyntheticConfig `json:"synthetic"`
}

// PostgresConfig describes the bars database connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// SyntheticConfig parameterizes the deterministic generator. Prices are
// decimal strings resolved against each security's scale.
type SyntheticConfig struct {
	BasePrice decimal.Decimal `json:"basePrice"`
	Amplitude decimal.Decimal `json:"amplitude"`
	Spread    decimal.Decimal `json:"spread"`
	BaseSize  decimal.Decimal `json:"baseSize"`
}

// EventsConfig tunes the side channel.
type EventsConfig struct {
	QueueSize int `json:"queueSize"`
}

// Subscription is one resolved stream request: the immutable feed config
// plus the session template the security trades under and, for synthetic
// runs, the generator parameters at the security's scale.
type Subscription struct {
	Feed    feed.Config
	Session session.Hours

	SyntheticBasePrice schema.Price
	SyntheticAmplitude schema.Price
	SyntheticSpread    schema.Price
	SyntheticBaseSize  schema.Quantity
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry      *schema.Registry
	StartUTC      time.Time
	EndUTC        time.Time
	Subscriptions []Subscription
	Source        SourceConfig
	QueueSize     int
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a file config and builds the registry, window, and
// subscription list.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, sessions, err := buildRegistry(cfg.Securities)
	if err != nil {
		return Loaded{}, err
	}

	start, end, err := resolveWindow(cfg.Window)
	if err != nil {
		return Loaded{}, err
	}

	if err := validateSource(cfg.Source); err != nil {
		return Loaded{}, err
	}

	if len(cfg.Subscriptions) == 0 {
		return Loaded{}, fmt.Errorf("no subscriptions configured")
	}
	subs := make([]Subscription, 0, len(cfg.Subscriptions))
	for i, sc := range cfg.Subscriptions {
		sub, err := resolveSubscription(sc, registry, sessions, start, end, cfg.Source)
		if err != nil {
			return Loaded{}, fmt.Errorf("subscription %d (%s): %w", i, sc.Ticker, err)
		}
		subs = append(subs, sub)
	}

	queueSize := cfg.Events.QueueSize
	if queueSize <= 0 {
		queueSize = defaultEventQueueSize
	}

	return Loaded{
		Registry:      registry,
		StartUTC:      start,
		EndUTC:        end,
		Subscriptions: subs,
		Source:        cfg.Source,
		QueueSize:     queueSize,
	}, nil
}

func buildRegistry(secs []SecurityConfig) (*schema.Registry, map[schema.SecurityID]session.Hours, error) {
	if len(secs) == 0 {
		return nil, nil, fmt.Errorf("no securities configured")
	}
	reg := schema.NewRegistry()
	sessions := make(map[schema.SecurityID]session.Hours, len(secs))
	for _, sc := range secs {
		id, err := reg.Add(schema.Security{
			Ticker:        sc.Ticker,
			ExchangeTZ:    sc.ExchangeTZ,
			DataTZ:        sc.DataTZ,
			PriceScale:    sc.PriceScale,
			QuantityScale: sc.QuantityScale,
		})
		if err != nil {
			return nil, nil, err
		}
		hours, err := resolveSession(sc.Session)
		if err != nil {
			return nil, nil, fmt.Errorf("security %s: %w", sc.Ticker, err)
		}
		sessions[id] = hours
	}
	return reg, sessions, nil
}

func resolveSession(name string) (session.Hours, error) {
	switch name {
	case "", "always":
		return session.AlwaysOpen(), nil
	case "equity":
		return session.Equity(), nil
	default:
		return nil, fmt.Errorf("unknown session template: %q", name)
	}
}

func resolveWindow(cfg WindowConfig) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, cfg.StartUTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, cfg.EndUTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s before start %s", end, start)
	}
	return start.UTC(), end.UTC(), nil
}

func validateSource(cfg SourceConfig) error {
	switch cfg.Type {
	case SourceBarLog:
		if cfg.Path == "" {
			return fmt.Errorf("barlog source needs a path")
		}
	case SourcePostgres:
		if cfg.Postgres.Database == "" {
			return fmt.Errorf("postgres source needs a database")
		}
	case SourceSynthetic:
	default:
		return fmt.Errorf("unknown source type: %q", cfg.Type)
	}
	return nil
}

func resolveSubscription(
	sc SubscriptionConfig,
	reg *schema.Registry,
	sessions map[schema.SecurityID]session.Hours,
	start, end time.Time,
	src SourceConfig,
) (Subscription, error) {
	sec, ok := reg.ByTicker(sc.Ticker)
	if !ok {
		return Subscription{}, fmt.Errorf("security not found: %s", sc.Ticker)
	}

	resolution, err := schema.ParseResolution(sc.Resolution)
	if err != nil {
		return Subscription{}, err
	}
	kind, err := schema.ParseRecordKind(sc.Kind)
	if err != nil {
		return Subscription{}, err
	}
	normalization, err := feed.ParseNormalizationMode(sc.Normalization)
	if err != nil {
		return Subscription{}, err
	}

	factor, err := parsePrice(sc.PriceFactor, sec.PriceScale)
	if err != nil {
		return Subscription{}, fmt.Errorf("invalid price factor: %w", err)
	}
	if normalization == feed.NormalizationAdjusted && factor <= 0 {
		return Subscription{}, fmt.Errorf("adjusted normalization needs a price factor > 0")
	}

	fc := feed.Config{
		Security:      sec,
		Resolution:    resolution,
		Kind:          kind,
		FillForward:   sc.FillForward,
		ExtendedHours: sc.ExtendedHours,
		Normalization: normalization,
		PriceFactor:   factor,
		StartUTC:      start,
		EndUTC:        end,
	}
	if err := fc.Validate(); err != nil {
		return Subscription{}, err
	}

	sub := Subscription{Feed: fc, Session: sessions[sec.ID]}

	if src.Type == SourceSynthetic {
		if sub.SyntheticBasePrice, err = parsePrice(src.Synthetic.BasePrice, sec.PriceScale); err != nil {
			return Subscription{}, fmt.Errorf("invalid synthetic base price: %w", err)
		}
		if sub.SyntheticBasePrice <= 0 {
			return Subscription{}, fmt.Errorf("synthetic base price must be > 0")
		}
		if sub.SyntheticAmplitude, err = parsePrice(src.Synthetic.Amplitude, sec.PriceScale); err != nil {
			return Subscription{}, fmt.Errorf("invalid synthetic amplitude: %w", err)
		}
		if sub.SyntheticSpread, err = parsePrice(src.Synthetic.Spread, sec.PriceScale); err != nil {
			return Subscription{}, fmt.Errorf("invalid synthetic spread: %w", err)
		}
		size, err := parseQuantity(src.Synthetic.BaseSize, sec.QuantityScale)
		if err != nil {
			return Subscription{}, fmt.Errorf("invalid synthetic base size: %w", err)
		}
		sub.SyntheticBaseSize = size
	}

	return sub, nil
}

func parsePrice(d decimal.Decimal, scale int) (schema.Price, error) {
	s := fmt.Sprint(d)
	if s == "" {
		return 0, nil
	}
	return schema.ParsePrice(s, scale)
}

func parseQuantity(d decimal.Decimal, scale int) (schema.Quantity, error) {
	s := fmt.Sprint(d)
	if s == "" {
		return 0, nil
	}
	return schema.ParseQuantity(s, scale)
}
